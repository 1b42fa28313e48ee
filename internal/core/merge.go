package core

// merge.go builds records from validated rows and folds rows into existing
// records. Non-empty incoming values overwrite; empty cells never erase
// stored data; list fields are unioned.

import (
	"strings"

	"github.com/google/uuid"
)

// institutionFromRow builds a new institution from a valid row.
func institutionFromRow(row CanonicalRow, owner uuid.NullUUID, ext *ExternalRef) *Institution {
	inst := &Institution{OwnerID: owner}
	applyInstitutionFields(inst, row)
	if ext != nil {
		inst.ExternalRef = ext.ID
		if inst.AccountingNumber == "" {
			inst.AccountingNumber = strings.TrimSpace(ext.AccountingNumber)
		}
	}
	return inst
}

// mergeInstitution folds row into existing.
func mergeInstitution(existing *Institution, row CanonicalRow, owner uuid.NullUUID, ext *ExternalRef) {
	applyInstitutionFields(existing, row)
	if !existing.OwnerID.Valid && owner.Valid {
		existing.OwnerID = owner
	}
	if ext != nil && existing.ExternalRef == "" {
		existing.ExternalRef = ext.ID
	}
}

func applyInstitutionFields(inst *Institution, row CanonicalRow) {
	setIf(&inst.Name, row.Get(FieldName))
	if t, ok := NormalizeEnum(row.Get(FieldType), InstitutionTypes); ok {
		inst.Type = t
	}
	setIf(&inst.AccountingNumber, row.Get(FieldAccountingNumber))
	setIf(&inst.Street, row.Get(FieldStreet))
	setIf(&inst.City, row.Get(FieldCity))
	setIf(&inst.State, row.Get(FieldState))
	setIf(&inst.ZipCode, row.Get(FieldZipCode))
	setIf(&inst.Country, row.Get(FieldCountry))
	setIf(&inst.Phone, row.Get(FieldPhone))
	setIf(&inst.Email, row.Get(FieldEmail))
	setIf(&inst.Website, row.Get(FieldWebsite))
	setIf(&inst.Notes, row.Get(FieldNotes))
	inst.Tags = unionFold(inst.Tags, SplitList(row.Get(FieldTags)))
}

// profileFromRow returns the profile carried by row, or nil when the row
// has no profile field.
func profileFromRow(row CanonicalRow, institutionID uuid.UUID) *Profile {
	if !row.HasAny(profileFields...) {
		return nil
	}
	p := &Profile{InstitutionID: institutionID}
	mergeProfile(p, row)
	return p
}

// mergeProfile folds the profile fields of row into p.
func mergeProfile(p *Profile, row CanonicalRow) {
	if n, ok := ParseInt(row.Get(FieldBedCapacity)); ok {
		p.BedCapacity = &n
	}
	if n, ok := ParseInt(row.Get(FieldSurgicalRooms)); ok {
		p.SurgicalRooms = &n
	}
	p.Specialties = unionFold(p.Specialties, SplitList(row.Get(FieldSpecialties)))
	p.Departments = unionFold(p.Departments, SplitList(row.Get(FieldDepartments)))
	if t, ok := ParseDate(row.Get(FieldLastAuditDate)); ok {
		p.LastAuditDate = &t
	}
	if s, ok := NormalizeEnum(row.Get(FieldComplianceStatus), ComplianceStatuses); ok {
		p.ComplianceStatus = s
	}
	if t, ok := ParseDate(row.Get(FieldComplianceExpirationDate)); ok {
		p.ComplianceExpirationDate = &t
	}
}

// contactFromRow returns the contact carried by row, or nil when the row
// has no contact field.
func contactFromRow(row CanonicalRow, institutionID uuid.UUID) *Contact {
	if !row.HasAny(contactFields...) {
		return nil
	}
	return &Contact{
		InstitutionID: institutionID,
		Name:          row.Get(FieldContactName),
		Title:         row.Get(FieldContactTitle),
		Email:         row.Get(FieldContactEmail),
		Phone:         row.Get(FieldContactPhone),
	}
}

// mergeContact copies the non-empty fields of incoming onto existing.
func mergeContact(existing, incoming *Contact) {
	setIf(&existing.Name, incoming.Name)
	setIf(&existing.Title, incoming.Title)
	setIf(&existing.Email, incoming.Email)
	setIf(&existing.Phone, incoming.Phone)
}

func (c *Contact) identity() ContactIdentity {
	return ContactIdentity{Email: c.Email, Name: c.Name, Phone: c.Phone}
}

// MatchesIdentity reports whether c is the contact identified by id.
func (c *Contact) MatchesIdentity(id ContactIdentity) bool {
	if id.Email != "" {
		return foldEqual(c.Email, id.Email)
	}
	if id.Name == "" {
		return false
	}
	if id.Phone == "" {
		return foldEqual(c.Name, id.Name) && strings.TrimSpace(c.Email) == "" && strings.TrimSpace(c.Phone) == ""
	}
	return foldEqual(c.Name, id.Name) && strings.TrimSpace(c.Phone) == strings.TrimSpace(id.Phone)
}

func setIf(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
