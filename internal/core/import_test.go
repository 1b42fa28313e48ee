package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/institution-import/internal/core"
	"github.com/JonMunkholm/institution-import/internal/memstore"
)

const scenarioCSV = "name,type,street,city,state,zipCode,country\nGeneral Hospital,hospital,123 Main,Healthcare City,CA,90210,US"

func newImporter(store *memstore.Store, opts ...core.EngineOption) *core.Importer {
	return core.NewImporter(store, core.NewEngine(store, opts...))
}

func csvOf(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestImportRecords_Scenario(t *testing.T) {
	store := memstore.New()
	res, err := newImporter(store).ImportRecords(context.Background(), scenarioCSV, core.ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.TotalRows)
	assert.Equal(t, 1, res.SuccessfulImports)
	assert.Equal(t, 0, res.FailedImports)
	assert.Equal(t, 0, res.DuplicatesFound)
	assert.True(t, res.Success)
	assert.Empty(t, res.Errors)
	require.Len(t, res.ImportedRecordRefs, 1)

	insts := store.Institutions()
	require.Len(t, insts, 1)
	assert.Equal(t, "General Hospital", insts[0].Name)
	assert.Equal(t, res.ImportedRecordRefs[0], insts[0].ID)
	assert.Equal(t, []core.RowOutcome{{
		Row:           2,
		Status:        core.RowCreated,
		InstitutionID: &insts[0].ID,
		Match:         res.Rows[0].Match,
	}}, res.Rows)
}

func TestImportRecords_StructuralFailure(t *testing.T) {
	store := memstore.New()
	res, err := newImporter(store).ImportRecords(context.Background(), "foo,bar\n1,2\n", core.ImportOptions{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrMalformedCSV)
	assert.Empty(t, store.Institutions())
}

func TestImportRecords_HeaderOnly(t *testing.T) {
	res, err := newImporter(memstore.New()).ImportRecords(context.Background(), "name,type,city\n", core.ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalRows)
	assert.True(t, res.Success)
}

func TestImportRecords_SkipDuplicatesTwice(t *testing.T) {
	store := memstore.New()
	im := newImporter(store)
	text := csvOf(
		"name,type,street,city,state,zipCode,country",
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US",
		"Clinique du Parc,clinic,4 Rue Verte,Lyon,ARA,69003,FR",
	)
	opts := core.ImportOptions{SkipDuplicates: true}

	first, err := im.ImportRecords(context.Background(), text, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, first.SuccessfulImports)
	assert.Equal(t, 0, first.DuplicatesFound)

	second, err := im.ImportRecords(context.Background(), text, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, second.DuplicatesFound)
	assert.Equal(t, 2, second.DuplicatesSkipped)
	assert.Equal(t, 0, second.SuccessfulImports)
	assert.Equal(t, 0, second.FailedImports)
	assert.True(t, second.Success)
	assert.Empty(t, second.ImportedRecordRefs)

	assert.Len(t, store.Institutions(), 2)
}

func TestImportRecords_DuplicateWithinFile(t *testing.T) {
	store := memstore.New()
	text := csvOf(
		"name,type,street,city,state,zipCode,country",
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US",
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US",
	)

	res, err := newImporter(store).ImportRecords(context.Background(), text, core.ImportOptions{SkipDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessfulImports)
	assert.Equal(t, 1, res.DuplicatesFound)
	assert.Equal(t, core.MatchExactNameAddress, res.Rows[1].Match.MatchType)
	assert.Len(t, store.Institutions(), 1)
}

func TestImportRecords_MergeUnionsLists(t *testing.T) {
	store := memstore.New()
	im := newImporter(store)
	header := "name,type,street,city,state,zipCode,country,specialties,tags,phone"

	_, err := im.ImportRecords(context.Background(), csvOf(header,
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US,cardiology,public,+1 555 0100",
	), core.ImportOptions{})
	require.NoError(t, err)

	res, err := im.ImportRecords(context.Background(), csvOf(header,
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US,oncology;Cardiology,teaching,",
	), core.ImportOptions{MergeDuplicates: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.DuplicatesFound)
	assert.Equal(t, 1, res.DuplicatesMerged)
	assert.Equal(t, 1, res.SuccessfulImports)
	assert.Equal(t, core.RowMerged, res.Rows[0].Status)

	insts := store.Institutions()
	require.Len(t, insts, 1)
	assert.Equal(t, []string{"public", "teaching"}, insts[0].Tags)
	assert.Equal(t, "+1 555 0100", insts[0].Phone, "empty cells never erase stored values")
	assert.Equal(t, []uuid.UUID{insts[0].ID}, res.ImportedRecordRefs)

	profile, err := store.GetProfile(context.Background(), insts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cardiology", "oncology"}, profile.Specialties)
}

func TestImportRecords_MergeCreatesMissingProfile(t *testing.T) {
	store := memstore.New()
	id := seedInstitution(store, "General Hospital", "123 Main", "Healthcare City", "90210", "")

	res, err := newImporter(store).ImportRecords(context.Background(), csvOf(
		"name,type,street,city,state,zipCode,country,bedCapacity,lastAuditDate",
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US,250,15/03/2024",
	), core.ImportOptions{MergeDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DuplicatesMerged)

	profile, err := store.GetProfile(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, profile.BedCapacity)
	assert.Equal(t, 250, *profile.BedCapacity)
	assert.Equal(t, "2024-03-15", profile.LastAuditDate.Format("2006-01-02"))
}

func TestImportRecords_MergeWinsOverSkip(t *testing.T) {
	store := memstore.New()
	id := seedInstitution(store, "General Hospital", "123 Main", "Healthcare City", "90210", "")

	res, err := newImporter(store).ImportRecords(context.Background(), csvOf(
		"name,type,street,city,state,zipCode,country,website",
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US,https://general.example.org",
	), core.ImportOptions{SkipDuplicates: true, MergeDuplicates: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.DuplicatesFound)
	assert.Equal(t, 1, res.DuplicatesMerged)
	assert.Equal(t, 0, res.DuplicatesSkipped)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, core.RowMerged, res.Rows[0].Status)
	assert.Equal(t, id, *res.Rows[0].InstitutionID)

	insts := store.Institutions()
	require.Len(t, insts, 1)
	assert.Equal(t, "https://general.example.org", insts[0].Website)
}

func TestImportRecords_DuplicateWithoutPolicyIsRejected(t *testing.T) {
	store := memstore.New()
	id := seedInstitution(store, "General Hospital", "123 Main", "Healthcare City", "90210", "")

	res, err := newImporter(store).ImportRecords(context.Background(), scenarioCSV, core.ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.DuplicatesFound)
	assert.Equal(t, 1, res.FailedImports)
	assert.Equal(t, 0, res.SuccessfulImports)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Message, core.ErrDuplicateRejected.Error())
	assert.Equal(t, core.RowRejected, res.Rows[0].Status)
	assert.Equal(t, id, *res.Rows[0].InstitutionID)

	assert.Len(t, store.Institutions(), 1)
}

func TestImportRecords_InvalidRowsReportedPerIssue(t *testing.T) {
	store := memstore.New()
	text := csvOf(
		"name,type,street,city,state,zipCode,country,bedCapacity",
		"General Hospital,hospital,123 Main,,CA,,US,",
		"Clinique du Parc,clinic,4 Rue Verte,Lyon,ARA,69003,FR,lots",
		"Good Clinic,clinic,9 Oak,Nice,PAC,06000,FR,12",
	)

	res, err := newImporter(store).ImportRecords(context.Background(), text, core.ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, 2, res.FailedImports)
	assert.Equal(t, 1, res.SuccessfulImports)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, core.RowError{Row: 2, Field: "city", Message: "required field is empty"}, res.Errors[0])
	assert.Equal(t, core.RowError{Row: 2, Field: "zipCode", Message: "required field is empty"}, res.Errors[1])
	assert.Equal(t, 3, res.Errors[2].Row)
	assert.Equal(t, "bedCapacity", res.Errors[2].Field)

	statuses := []core.RowStatus{res.Rows[0].Status, res.Rows[1].Status, res.Rows[2].Status}
	assert.Equal(t, []core.RowStatus{core.RowInvalid, core.RowInvalid, core.RowCreated}, statuses)
	assert.Len(t, store.Institutions(), 1)
}

func TestImportRecords_ValidateOnlyHasNoSideEffects(t *testing.T) {
	store := memstore.New()
	text := csvOf(
		"name,type,street,city,state,zipCode,country",
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US",
		"Broken,castle,1 Elm,Paris,IDF,75001,FR",
	)

	res, err := newImporter(store).ImportRecords(context.Background(), text, core.ImportOptions{ValidateOnly: true})
	require.NoError(t, err)

	assert.True(t, res.ValidateOnly)
	assert.Equal(t, 2, res.TotalRows)
	assert.Equal(t, 1, res.FailedImports)
	assert.Equal(t, 0, res.SuccessfulImports)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "type", res.Errors[0].Field)
	assert.Equal(t, core.RowValid, res.Rows[0].Status)
	assert.Equal(t, core.RowInvalid, res.Rows[1].Status)
	assert.Empty(t, store.Institutions())
}

func TestImportRecords_TemplateValidatesCleanly(t *testing.T) {
	res, err := newImporter(memstore.New()).ImportRecords(context.Background(), core.GenerateTemplate(), core.ImportOptions{ValidateOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalRows)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.Success)
}

func TestImportRecords_PersistenceFailureRollsBackRow(t *testing.T) {
	store := memstore.New()
	store.FailOn("CreateContact", errors.New("connection reset by peer"))
	text := csvOf(
		"name,type,street,city,state,zipCode,country,contactName",
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US,Jane Doe",
		"Clinique du Parc,clinic,4 Rue Verte,Lyon,ARA,69003,FR,",
	)

	res, err := newImporter(store).ImportRecords(context.Background(), text, core.ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.FailedImports)
	assert.Equal(t, 1, res.SuccessfulImports)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Message, "DB005")
	assert.Equal(t, core.RowFailed, res.Rows[0].Status)
	assert.Nil(t, res.Rows[0].InstitutionID)

	// the institution created before the contact failure is rolled back
	insts := store.Institutions()
	require.Len(t, insts, 1)
	assert.Equal(t, "Clinique du Parc", insts[0].Name)
}

func TestImportRecords_SkipUpsertsContact(t *testing.T) {
	store := memstore.New()
	im := newImporter(store)
	header := "name,type,street,city,state,zipCode,country,contactName,contactTitle,contactEmail"
	opts := core.ImportOptions{SkipDuplicates: true}

	_, err := im.ImportRecords(context.Background(), csvOf(header,
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US,Jane Doe,Buyer,jane@example.org",
	), opts)
	require.NoError(t, err)

	res, err := im.ImportRecords(context.Background(), csvOf(header,
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US,Jane Doe,Head of Procurement,JANE@example.org",
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US,John Roe,Surgeon,john@example.org",
	), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.DuplicatesSkipped)

	insts := store.Institutions()
	require.Len(t, insts, 1)
	contacts := store.Contacts(insts[0].ID)
	require.Len(t, contacts, 2)
	assert.Equal(t, "Head of Procurement", contacts[0].Title)
	assert.Equal(t, "jane@example.org", strings.ToLower(contacts[0].Email))
	assert.Equal(t, "John Roe", contacts[1].Name)
}

func TestImportRecords_NameOnlyContactNotDuplicated(t *testing.T) {
	store := memstore.New()
	im := newImporter(store)
	text := csvOf(
		"name,type,street,city,state,zipCode,country,contactName,contactTitle",
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US,Jane Doe,Buyer",
	)
	opts := core.ImportOptions{SkipDuplicates: true}

	for i := 0; i < 3; i++ {
		_, err := im.ImportRecords(context.Background(), text, opts)
		require.NoError(t, err)
	}

	insts := store.Institutions()
	require.Len(t, insts, 1)
	contacts := store.Contacts(insts[0].ID)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Jane Doe", contacts[0].Name)
	assert.Equal(t, "Buyer", contacts[0].Title)
}

func TestImportRecords_AssignsOwner(t *testing.T) {
	store := memstore.New()
	owner := uuid.New()

	_, err := newImporter(store).ImportRecords(context.Background(), scenarioCSV, core.ImportOptions{
		AssignedOwnerID: uuid.NullUUID{UUID: owner, Valid: true},
	})
	require.NoError(t, err)

	insts := store.Institutions()
	require.Len(t, insts, 1)
	assert.True(t, insts[0].OwnerID.Valid)
	assert.Equal(t, owner, insts[0].OwnerID.UUID)
}

func TestImportRecords_MergeKeepsExistingOwner(t *testing.T) {
	store := memstore.New()
	first := uuid.New()
	id := store.Seed(core.Institution{
		Name: "General Hospital", Type: "hospital", Street: "123 Main", City: "Healthcare City",
		State: "CA", ZipCode: "90210", Country: "US",
		OwnerID: uuid.NullUUID{UUID: first, Valid: true},
	})

	_, err := newImporter(store).ImportRecords(context.Background(), scenarioCSV, core.ImportOptions{
		MergeDuplicates: true,
		AssignedOwnerID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
	})
	require.NoError(t, err)

	inst, err := store.GetInstitution(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, first, inst.OwnerID.UUID)
}

func TestImportRecords_ReferenceRecordedOnCreate(t *testing.T) {
	store := memstore.New()
	ref := &stubReference{byName: &core.ExternalRef{ID: "ext-42", AccountingNumber: "ACCT-42"}}

	res, err := newImporter(store, core.WithReference(ref)).ImportRecords(context.Background(), scenarioCSV, core.ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessfulImports)

	insts := store.Institutions()
	require.Len(t, insts, 1)
	assert.Equal(t, "ext-42", insts[0].ExternalRef)
	assert.Equal(t, "ACCT-42", insts[0].AccountingNumber)
}

// cancelOnFirstCall cancels the import context the first time the cascade
// runs, so the current row completes and the rest are cancelled.
type cancelOnFirstCall struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancelOnFirstCall) Name() string { return "cancel" }

func (c *cancelOnFirstCall) Match(context.Context, core.MatchInput, core.Repository) (*core.MatchResult, error) {
	c.calls++
	if c.calls == 1 {
		c.cancel()
	}
	return nil, nil
}

func TestImportRecords_CancellationStopsRemainingRows(t *testing.T) {
	store := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trip := &cancelOnFirstCall{cancel: cancel}
	engine := core.NewEngine(store, core.WithStrategies(trip))
	im := core.NewImporter(store, engine)

	text := csvOf(
		"name,type,street,city,state,zipCode,country",
		"A,clinic,1 Elm,Paris,IDF,75001,FR",
		"B,clinic,2 Elm,Paris,IDF,75001,FR",
		"C,clinic,3 Elm,Paris,IDF,75001,FR",
	)
	res, err := im.ImportRecords(ctx, text, core.ImportOptions{})
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.SuccessfulImports)
	assert.Equal(t, 2, res.FailedImports)
	assert.Equal(t, core.RowCreated, res.Rows[0].Status)
	assert.Equal(t, core.RowCancelled, res.Rows[1].Status)
	assert.Equal(t, core.RowCancelled, res.Rows[2].Status)
	assert.Len(t, store.Institutions(), 1)
}

func TestImportRecords_WarnsOnUnknownHeaders(t *testing.T) {
	text := csvOf(
		"name,type,street,city,state,zipcod,country,favourite colour",
		"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US,blue",
	)
	res, err := newImporter(memstore.New()).ImportRecords(context.Background(), text, core.ImportOptions{ValidateOnly: true})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "zipCode")
	// zip code column ignored, so the required field is missing
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "zipCode", res.Errors[0].Field)
}
