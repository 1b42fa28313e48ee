package core

// import.go composes parsing, validation, matching and persistence into a
// single import run.
//
// Rows are processed strictly in file order, one at a time, so every
// create/merge/skip decision sees the writes of all earlier rows. The batch
// is best-effort: a failed row is reported and the loop moves on. When the
// store implements RowTransactor, each row's writes are atomic.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/institution-import/internal/logging"
)

// ErrDuplicateRejected marks a matched row imported with neither
// skipDuplicates nor mergeDuplicates.
var ErrDuplicateRejected = errors.New("duplicate of existing institution")

// Importer runs imports against a repository.
type Importer struct {
	store             Repository
	engine            *Engine
	validationWorkers int
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithValidationWorkers validates rows on up to n goroutines.
func WithValidationWorkers(n int) ImporterOption {
	return func(im *Importer) { im.validationWorkers = n }
}

// NewImporter creates an importer. engine must read from the same store.
func NewImporter(store Repository, engine *Engine, opts ...ImporterOption) *Importer {
	im := &Importer{store: store, engine: engine, validationWorkers: 1}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// prepared is a parsed and validated file.
type prepared struct {
	parsed *ParseResult
	rows   []ValidatedRow
}

func (im *Importer) prepare(ctx context.Context, text string) (*prepared, error) {
	parsed, err := Parse(text)
	if err != nil {
		return nil, err
	}
	rows, err := ValidateRowsConcurrent(ctx, parsed.Rows, im.validationWorkers)
	if err != nil {
		return nil, fmt.Errorf("validate rows: %w", err)
	}
	return &prepared{parsed: parsed, rows: rows}, nil
}

// ImportRecords parses, validates and imports text. The only error
// returned is a structural parse failure or a cancelled validation; every
// row-level problem is reported in the result.
func (im *Importer) ImportRecords(ctx context.Context, text string, opts ImportOptions) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{
		ImportID:           uuid.New(),
		ValidateOnly:       opts.ValidateOnly,
		ImportedRecordRefs: []uuid.UUID{},
		Errors:             []RowError{},
	}
	logger := logging.ForImport(ctx, result.ImportID)

	p, err := im.prepare(ctx, text)
	if err != nil {
		logger.Warn("import rejected", "error", err)
		return nil, err
	}

	result.TotalRows = len(p.rows)
	result.Warnings = p.parsed.Warnings()
	result.Rows = make([]RowOutcome, 0, len(p.rows))

	logger.Info("import started",
		"rows", result.TotalRows,
		"validate_only", opts.ValidateOnly,
		"skip_duplicates", opts.SkipDuplicates,
		"merge_duplicates", opts.MergeDuplicates,
	)

	// invalid rows are reported up front; valid ones keep their slot so
	// outcomes stay in file order
	for _, vr := range p.rows {
		if vr.Valid() {
			continue
		}
		result.FailedImports++
		for _, issue := range vr.Issues {
			result.Errors = append(result.Errors, RowError{Row: vr.Row.Line, Field: string(issue.Field), Message: issue.Message})
		}
	}

	if opts.ValidateOnly {
		for _, vr := range p.rows {
			status := RowValid
			if !vr.Valid() {
				status = RowInvalid
			}
			result.Rows = append(result.Rows, RowOutcome{Row: vr.Row.Line, Status: status})
		}
		return im.finish(logger, result, start), nil
	}

	for i, vr := range p.rows {
		if !vr.Valid() {
			result.Rows = append(result.Rows, RowOutcome{Row: vr.Row.Line, Status: RowInvalid})
			recordRowOutcome(RowInvalid)
			continue
		}
		if err := ctx.Err(); err != nil {
			im.cancelRemaining(result, p.rows[i:], err)
			break
		}

		out := im.importRow(ctx, logger, vr.Row, opts)
		im.apply(result, vr.Row, out)
	}

	return im.finish(logger, result, start), nil
}

// rowResult is what importRow decided and did for one valid row.
type rowResult struct {
	status RowStatus
	match  *MatchResult
	id     uuid.UUID
	err    error
}

func (im *Importer) importRow(ctx context.Context, logger *slog.Logger, row CanonicalRow, opts ImportOptions) rowResult {
	var out rowResult

	run := func(repo Repository) error {
		out = rowResult{}
		match, err := im.engine.WithStore(repo).FindBestMatch(ctx, MatchInputFromRow(row))
		if err != nil {
			return fmt.Errorf("lookup: %w", err)
		}
		out.match = &match

		switch {
		case !match.Matched:
			out.status = RowCreated
			out.id, err = createFromRow(ctx, repo, row, opts.AssignedOwnerID, match.Details.ExternalRef)
		case opts.MergeDuplicates:
			out.status = RowMerged
			out.id = *match.InstitutionID
			err = mergeIntoExisting(ctx, repo, out.id, row, opts.AssignedOwnerID, match.Details.ExternalRef)
		case opts.SkipDuplicates:
			out.status = RowSkipped
			out.id = *match.InstitutionID
			err = upsertContact(ctx, repo, out.id, row)
		default:
			out.status = RowRejected
			out.id = *match.InstitutionID
			return nil
		}
		return err
	}

	var err error
	if tx, ok := im.store.(RowTransactor); ok {
		err = tx.InRowTx(ctx, run)
	} else {
		err = run(im.store)
	}
	if err != nil {
		logger.Warn("row import failed", "row", row.Line, "status", out.status, "error", err)
		out.status = RowFailed
		out.id = uuid.Nil
		out.err = err
		return out
	}
	logger.Debug("row imported", "row", row.Line, "status", out.status, "institution_id", out.id)
	return out
}

// apply folds one row's result into the aggregate.
func (im *Importer) apply(result *ImportResult, row CanonicalRow, out rowResult) {
	outcome := RowOutcome{Row: row.Line, Status: out.status, Match: out.match}
	if out.id != uuid.Nil {
		outcome.InstitutionID = idPtr(out.id)
	}
	if out.match != nil {
		recordMatch(out.match.MatchType)
		if out.match.Matched {
			result.DuplicatesFound++
		}
	}

	switch out.status {
	case RowCreated:
		result.SuccessfulImports++
		result.ImportedRecordRefs = append(result.ImportedRecordRefs, out.id)
	case RowMerged:
		result.SuccessfulImports++
		result.DuplicatesMerged++
		result.ImportedRecordRefs = append(result.ImportedRecordRefs, out.id)
	case RowSkipped:
		result.DuplicatesSkipped++
	case RowRejected:
		msg := fmt.Sprintf("%s: %s (%s, confidence %d); enable skipDuplicates or mergeDuplicates",
			ErrDuplicateRejected, out.id, out.match.MatchType, out.match.Confidence)
		result.FailedImports++
		result.Errors = append(result.Errors, RowError{Row: row.Line, Message: msg})
	case RowFailed:
		result.FailedImports++
		result.Errors = append(result.Errors, RowError{
			Row:     row.Line,
			Message: "persistence failed: " + FormatUserError(out.err),
		})
	}

	recordRowOutcome(out.status)
	result.Rows = append(result.Rows, outcome)
}

// cancelRemaining marks every valid row not yet processed as failed.
func (im *Importer) cancelRemaining(result *ImportResult, rows []ValidatedRow, cause error) {
	result.Cancelled = true
	for _, vr := range rows {
		if !vr.Valid() {
			result.Rows = append(result.Rows, RowOutcome{Row: vr.Row.Line, Status: RowInvalid})
			continue
		}
		result.FailedImports++
		result.Errors = append(result.Errors, RowError{Row: vr.Row.Line, Message: "import cancelled: " + FormatUserError(cause)})
		result.Rows = append(result.Rows, RowOutcome{Row: vr.Row.Line, Status: RowCancelled})
		recordRowOutcome(RowCancelled)
	}
}

func (im *Importer) finish(logger *slog.Logger, result *ImportResult, start time.Time) *ImportResult {
	result.Success = len(result.Errors) == 0
	result.Duration = time.Since(start)
	recordImportDuration(result.ValidateOnly, result.Duration)

	logger.Info("import finished",
		"rows", result.TotalRows,
		"imported", result.SuccessfulImports,
		"failed", result.FailedImports,
		"duplicates", result.DuplicatesFound,
		"merged", result.DuplicatesMerged,
		"skipped", result.DuplicatesSkipped,
		"cancelled", result.Cancelled,
		"duration", result.Duration,
	)
	return result
}

func createFromRow(ctx context.Context, repo Repository, row CanonicalRow, owner uuid.NullUUID, ext *ExternalRef) (uuid.UUID, error) {
	inst := institutionFromRow(row, owner, ext)
	if err := repo.CreateInstitution(ctx, inst); err != nil {
		return uuid.Nil, fmt.Errorf("create institution: %w", err)
	}
	if p := profileFromRow(row, inst.ID); p != nil {
		if err := repo.CreateOrUpdateProfile(ctx, p); err != nil {
			return inst.ID, fmt.Errorf("create profile: %w", err)
		}
	}
	if c := contactFromRow(row, inst.ID); c != nil {
		if err := repo.CreateContact(ctx, c); err != nil {
			return inst.ID, fmt.Errorf("create contact: %w", err)
		}
	}
	return inst.ID, nil
}

func mergeIntoExisting(ctx context.Context, repo Repository, id uuid.UUID, row CanonicalRow, owner uuid.NullUUID, ext *ExternalRef) error {
	inst, err := repo.GetInstitution(ctx, id)
	if err != nil {
		return fmt.Errorf("load institution: %w", err)
	}
	mergeInstitution(inst, row, owner, ext)
	if err := repo.UpdateInstitution(ctx, inst); err != nil {
		return fmt.Errorf("update institution: %w", err)
	}

	if row.HasAny(profileFields...) {
		p, err := repo.GetProfile(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("load profile: %w", err)
		}
		if p == nil {
			p = &Profile{InstitutionID: id}
		}
		mergeProfile(p, row)
		if err := repo.CreateOrUpdateProfile(ctx, p); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
	}

	return upsertContact(ctx, repo, id, row)
}

// upsertContact updates the contact sharing the row's identity, or
// creates one. Rows without contact data are a no-op.
func upsertContact(ctx context.Context, repo Repository, institutionID uuid.UUID, row CanonicalRow) error {
	incoming := contactFromRow(row, institutionID)
	if incoming == nil {
		return nil
	}
	if id := incoming.identity(); !id.IsZero() {
		existing, err := repo.FindContact(ctx, institutionID, id)
		if err != nil {
			return fmt.Errorf("find contact: %w", err)
		}
		if existing != nil {
			mergeContact(existing, incoming)
			if err := repo.UpdateContact(ctx, existing); err != nil {
				return fmt.Errorf("update contact: %w", err)
			}
			return nil
		}
	}
	if err := repo.CreateContact(ctx, incoming); err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}
