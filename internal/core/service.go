package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/institution-import/internal/logging"
)

// DefaultImportTimeout bounds a single import run.
const DefaultImportTimeout = 10 * time.Minute

// ServiceConfig tunes a Service. Zero values select defaults.
type ServiceConfig struct {
	MaxConcurrentImports int
	MaxWaitTime          time.Duration
	ImportTimeout        time.Duration
	CandidateLimit       int
	ValidationWorkers    int
	Reference            ReferenceLookup
}

// Service is the public surface of the import subsystem.
type Service struct {
	store    Repository
	engine   *Engine
	importer *Importer
	limiter  *ImportLimiter
	timeout  time.Duration
}

// NewService wires the engine, importer and limiter over store.
func NewService(store Repository, cfg ServiceConfig) *Service {
	opts := []EngineOption{WithCandidateLimit(cfg.CandidateLimit)}
	if cfg.Reference != nil {
		opts = append(opts, WithReference(cfg.Reference))
	}
	engine := NewEngine(store, opts...)

	timeout := cfg.ImportTimeout
	if timeout <= 0 {
		timeout = DefaultImportTimeout
	}

	return &Service{
		store:    store,
		engine:   engine,
		importer: NewImporter(store, engine, WithValidationWorkers(cfg.ValidationWorkers)),
		limiter:  NewImportLimiter(cfg.MaxConcurrentImports, cfg.MaxWaitTime),
		timeout:  timeout,
	}
}

// GenerateTemplate returns the downloadable CSV template.
func (s *Service) GenerateTemplate() string {
	return GenerateTemplate()
}

// Validate is a read-only dry run: it parses and validates text and counts
// the valid rows that would match an existing institution.
func (s *Service) Validate(ctx context.Context, text string) (*ValidationReport, error) {
	parsed, err := Parse(text)
	if err != nil {
		return nil, err
	}
	rows, err := ValidateRowsConcurrent(ctx, parsed.Rows, s.importer.validationWorkers)
	if err != nil {
		return nil, fmt.Errorf("validate rows: %w", err)
	}

	report := &ValidationReport{
		TotalRows: len(rows),
		Errors:    []RowError{},
		Warnings:  parsed.Warnings(),
	}
	for _, vr := range rows {
		if !vr.Valid() {
			for _, issue := range vr.Issues {
				report.Errors = append(report.Errors, RowError{Row: vr.Row.Line, Field: string(issue.Field), Message: issue.Message})
			}
			continue
		}
		report.ValidRows++

		match, err := s.engine.FindBestMatch(ctx, MatchInputFromRow(vr.Row))
		if err != nil {
			logging.FromContext(ctx).Warn("dry-run match failed", "row", vr.Row.Line, "error", err)
			report.Errors = append(report.Errors, RowError{Row: vr.Row.Line, Message: "duplicate check failed: " + FormatUserError(err)})
			continue
		}
		if match.Matched {
			report.DuplicatesFound++
		}
	}
	return report, nil
}

// Import runs a full import. Only one import per slot runs at a time; the
// run is bounded by the configured timeout.
func (s *Service) Import(ctx context.Context, text string, opts ImportOptions) (*ImportResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.importer.ImportRecords(ctx, text, opts)
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForDrain blocks until running imports finish or ctx is done.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
