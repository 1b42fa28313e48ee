package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Institution is an organisational record owned by the record store.
type Institution struct {
	ID               uuid.UUID     `json:"id"`
	Name             string        `json:"name"`
	Type             string        `json:"type"`
	AccountingNumber string        `json:"accountingNumber,omitempty"`
	Street           string        `json:"street"`
	City             string        `json:"city"`
	State            string        `json:"state"`
	ZipCode          string        `json:"zipCode"`
	Country          string        `json:"country"`
	Phone            string        `json:"phone,omitempty"`
	Email            string        `json:"email,omitempty"`
	Website          string        `json:"website,omitempty"`
	Tags             []string      `json:"tags,omitempty"`
	Notes            string        `json:"notes,omitempty"`
	ExternalRef      string        `json:"externalRef,omitempty"`
	OwnerID          uuid.NullUUID `json:"ownerId"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// Profile holds the medical and compliance attributes of an institution.
// Nil pointers mean the value was never supplied.
type Profile struct {
	InstitutionID            uuid.UUID  `json:"institutionId"`
	BedCapacity              *int       `json:"bedCapacity,omitempty"`
	SurgicalRooms            *int       `json:"surgicalRooms,omitempty"`
	Specialties              []string   `json:"specialties,omitempty"`
	Departments              []string   `json:"departments,omitempty"`
	LastAuditDate            *time.Time `json:"lastAuditDate,omitempty"`
	ComplianceStatus         string     `json:"complianceStatus,omitempty"`
	ComplianceExpirationDate *time.Time `json:"complianceExpirationDate,omitempty"`
}

// Contact is a person attached to an institution.
type Contact struct {
	ID            uuid.UUID `json:"id"`
	InstitutionID uuid.UUID `json:"institutionId"`
	Name          string    `json:"name,omitempty"`
	Title         string    `json:"title,omitempty"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
}

// ContactIdentity identifies a contact within one institution.
// Email wins when present (compared case-insensitively); otherwise
// name and phone must both match. A name with neither email nor phone
// identifies the contact of that name that has neither either.
type ContactIdentity struct {
	Email string
	Name  string
	Phone string
}

// IsZero reports whether the identity carries nothing to look up by.
func (c ContactIdentity) IsZero() bool {
	return c.Email == "" && c.Name == ""
}

// Repository is the record store consumed by the matching engine and the
// importer. Find* methods return (nil, nil) when nothing matches; Get*
// methods return ErrNotFound.
type Repository interface {
	// FindInstitutionByAccountingNumber performs a case-insensitive exact lookup.
	FindInstitutionByAccountingNumber(ctx context.Context, code string) (*Institution, error)
	// FindInstitutionsByNameAndCity returns at most limit institutions in the
	// given city (trimmed, case-insensitive), best name candidates first.
	FindInstitutionsByNameAndCity(ctx context.Context, name, city string, limit int) ([]Institution, error)
	// FindInstitutionsByAddress returns institutions whose street, city and
	// zip code equal the arguments (trimmed, case-insensitive).
	FindInstitutionsByAddress(ctx context.Context, street, city, zipCode string) ([]Institution, error)
	GetInstitution(ctx context.Context, id uuid.UUID) (*Institution, error)
	// CreateInstitution assigns ID and timestamps on inst.
	CreateInstitution(ctx context.Context, inst *Institution) error
	UpdateInstitution(ctx context.Context, inst *Institution) error

	GetProfile(ctx context.Context, institutionID uuid.UUID) (*Profile, error)
	CreateOrUpdateProfile(ctx context.Context, p *Profile) error

	FindContact(ctx context.Context, institutionID uuid.UUID, identity ContactIdentity) (*Contact, error)
	// CreateContact assigns ID on c.
	CreateContact(ctx context.Context, c *Contact) error
	UpdateContact(ctx context.Context, c *Contact) error
}

// RowTransactor is implemented by stores that can apply all writes of one
// import row atomically. fn receives a Repository bound to the transaction;
// returning an error rolls the row back.
type RowTransactor interface {
	InRowTx(ctx context.Context, fn func(Repository) error) error
}

// ExternalRef is a hit from the external reference lookup.
type ExternalRef struct {
	ID               string `json:"id"`
	AccountingNumber string `json:"accountingNumber,omitempty"`
	Name             string `json:"name,omitempty"`
}

// ReferenceLookup resolves rows against an external registry before the
// local store is consulted. Both methods return (nil, nil) on a miss.
type ReferenceLookup interface {
	SearchByAccountingNumber(ctx context.Context, code string) (*ExternalRef, error)
	SearchByName(ctx context.Context, name, city string) (*ExternalRef, error)
}

// Address groups the optional location attributes of a MatchInput.
type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	Country string `json:"country,omitempty"`
}

// MatchInput holds the identifying attributes of a validated row.
type MatchInput struct {
	Name             string  `json:"name"`
	AccountingNumber string  `json:"accountingNumber,omitempty"`
	Address          Address `json:"address"`
}

// MatchType names the cascade stage that produced a decision.
type MatchType string

const (
	MatchAccountingNumber MatchType = "ACCOUNTING_NUMBER"
	MatchExactNameAddress MatchType = "EXACT_NAME_ADDRESS"
	MatchFuzzyNameCity    MatchType = "FUZZY_NAME_CITY"
	MatchNone             MatchType = "NO_MATCH"
)

// MatchDetails explains a MatchResult.
type MatchDetails struct {
	NameSimilarity *float64     `json:"nameSimilarity,omitempty"`
	AddressMatch   *bool        `json:"addressMatch,omitempty"`
	CityMatch      *bool        `json:"cityMatch,omitempty"`
	ExternalRef    *ExternalRef `json:"externalRef,omitempty"`
	Reason         string       `json:"reason"`
}

// MatchResult is the decision of the matching engine for one input.
type MatchResult struct {
	Matched       bool         `json:"matched"`
	MatchType     MatchType    `json:"matchType"`
	Confidence    int          `json:"confidence"`
	InstitutionID *uuid.UUID   `json:"institutionRef,omitempty"`
	Details       MatchDetails `json:"details"`
	Suggestions   []uuid.UUID  `json:"suggestions,omitempty"`
}

// ImportOptions control how matched rows are handled.
type ImportOptions struct {
	ValidateOnly    bool          `json:"validateOnly"`
	SkipDuplicates  bool          `json:"skipDuplicates"`
	MergeDuplicates bool          `json:"mergeDuplicates"`
	AssignedOwnerID uuid.NullUUID `json:"assignedOwnerId"`
}

// RowError reports one problem with one input row.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// RowStatus is the final disposition of an input row.
type RowStatus string

const (
	RowValid     RowStatus = "valid" // validate-only runs
	RowInvalid   RowStatus = "invalid"
	RowCreated   RowStatus = "created"
	RowMerged    RowStatus = "merged"
	RowSkipped   RowStatus = "skipped"
	RowRejected  RowStatus = "rejected"
	RowFailed    RowStatus = "failed"
	RowCancelled RowStatus = "cancelled"
)

// RowOutcome records what happened to a single input row.
type RowOutcome struct {
	Row           int          `json:"row"`
	Status        RowStatus    `json:"status"`
	InstitutionID *uuid.UUID   `json:"institutionRef,omitempty"`
	Match         *MatchResult `json:"match,omitempty"`
}

// ImportResult aggregates an import (or validation) run over a whole file.
//
// Skipped duplicates count toward neither SuccessfulImports nor
// FailedImports, so SuccessfulImports+FailedImports may be less than
// TotalRows.
type ImportResult struct {
	ImportID           uuid.UUID     `json:"importId"`
	TotalRows          int           `json:"totalRows"`
	SuccessfulImports  int           `json:"successfulImports"`
	FailedImports      int           `json:"failedImports"`
	DuplicatesFound    int           `json:"duplicatesFound"`
	DuplicatesMerged   int           `json:"duplicatesMerged"`
	DuplicatesSkipped  int           `json:"duplicatesSkipped"`
	ImportedRecordRefs []uuid.UUID   `json:"importedRecordRefs"`
	Errors             []RowError    `json:"errors"`
	Warnings           []string      `json:"warnings,omitempty"`
	Rows               []RowOutcome  `json:"rows"`
	ValidateOnly       bool          `json:"validateOnly"`
	Cancelled          bool          `json:"cancelled"`
	Success            bool          `json:"success"`
	Duration           time.Duration `json:"-"`
}

// ValidationReport is the result of a read-only dry run.
type ValidationReport struct {
	TotalRows       int        `json:"totalRows"`
	ValidRows       int        `json:"validRows"`
	DuplicatesFound int        `json:"duplicatesFound"`
	Errors          []RowError `json:"errors"`
	Warnings        []string   `json:"warnings,omitempty"`
}
