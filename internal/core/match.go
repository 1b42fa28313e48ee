package core

// match.go implements the matching engine: an ordered list of strategies
// evaluated against the record store, stopping at the first definitive
// match. Matching never writes to the store.

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/institution-import/internal/logging"
)

const (
	// FuzzyMatchThreshold is the minimum name similarity for a fuzzy match.
	FuzzyMatchThreshold = 0.80
	// SuggestionThreshold is the minimum similarity for a near-miss suggestion.
	SuggestionThreshold = 0.60
	// MaxSuggestions caps the suggestions returned with a result.
	MaxSuggestions = 3
	// DefaultCandidateLimit bounds the per-city candidate set.
	DefaultCandidateLimit = 500

	ConfidenceAccountingNumber = 100
	ConfidenceExactNameAddress = 95
	MaxFuzzyConfidence         = 85
)

// Strategy is one tier of the matching cascade.
//
// Match returns nil when the strategy does not apply to the input. A
// result with Matched=false ends nothing: the engine moves on to the next
// strategy but keeps its Suggestions.
type Strategy interface {
	Name() string
	Match(ctx context.Context, in MatchInput, store Repository) (*MatchResult, error)
}

// Engine runs the strategy cascade.
type Engine struct {
	store          Repository
	strategies     []Strategy
	reference      ReferenceLookup
	similarity     SimilarityFunc
	candidateLimit int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStrategies replaces the default cascade.
func WithStrategies(s ...Strategy) EngineOption {
	return func(e *Engine) { e.strategies = s }
}

// WithReference enables the external reference lookup.
func WithReference(r ReferenceLookup) EngineOption {
	return func(e *Engine) { e.reference = r }
}

// WithSimilarity replaces the name similarity used by the default fuzzy tier.
func WithSimilarity(f SimilarityFunc) EngineOption {
	return func(e *Engine) { e.similarity = f }
}

// WithCandidateLimit bounds the number of same-city candidates scored.
func WithCandidateLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.candidateLimit = n
		}
	}
}

// NewEngine creates a matching engine reading from store.
func NewEngine(store Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		store:          store,
		similarity:     DiceSimilarity,
		candidateLimit: DefaultCandidateLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.strategies == nil {
		e.strategies = DefaultStrategies(e.similarity, e.candidateLimit)
	}
	return e
}

// DefaultStrategies returns the standard cascade: accounting number,
// exact name and address, fuzzy name within a city.
func DefaultStrategies(sim SimilarityFunc, candidateLimit int) []Strategy {
	return []Strategy{
		AccountingNumberStrategy{},
		ExactNameAddressStrategy{},
		FuzzyNameCityStrategy{Similarity: sim, CandidateLimit: candidateLimit},
	}
}

// WithStore returns a copy of e reading from store. Used to match inside a
// row transaction.
func (e *Engine) WithStore(store Repository) *Engine {
	cp := *e
	cp.store = store
	return &cp
}

// FindBestMatch evaluates the cascade for one input.
func (e *Engine) FindBestMatch(ctx context.Context, in MatchInput) (MatchResult, error) {
	in = trimInput(in)

	ext := e.lookupReference(ctx, in)
	if ext != nil && in.AccountingNumber == "" && ext.AccountingNumber != "" {
		in.AccountingNumber = strings.TrimSpace(ext.AccountingNumber)
	}

	var suggestions []MatchResult
	for _, s := range e.strategies {
		res, err := s.Match(ctx, in, e.store)
		if err != nil {
			return MatchResult{}, fmt.Errorf("%s match: %w", s.Name(), err)
		}
		if res == nil {
			continue
		}
		if res.Matched {
			res.Details.ExternalRef = ext
			return *res, nil
		}
		suggestions = append(suggestions, *res)
	}

	res := MatchResult{
		Matched:    false,
		MatchType:  MatchNone,
		Confidence: 0,
		Details: MatchDetails{
			Reason:      "no existing institution matched",
			ExternalRef: ext,
		},
	}
	for _, s := range suggestions {
		for _, id := range s.Suggestions {
			if len(res.Suggestions) < MaxSuggestions {
				res.Suggestions = append(res.Suggestions, id)
			}
		}
		if s.Details.NameSimilarity != nil && res.Details.NameSimilarity == nil {
			res.Details.NameSimilarity = s.Details.NameSimilarity
		}
	}
	return res, nil
}

// FindBatchMatches matches each input independently, in order.
func (e *Engine) FindBatchMatches(ctx context.Context, inputs []MatchInput) ([]MatchResult, error) {
	out := make([]MatchResult, 0, len(inputs))
	for i, in := range inputs {
		res, err := e.FindBestMatch(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// lookupReference consults the external collaborator. Failures are logged
// and treated as a miss.
func (e *Engine) lookupReference(ctx context.Context, in MatchInput) *ExternalRef {
	if e.reference == nil {
		return nil
	}
	logger := logging.FromContext(ctx)

	if in.AccountingNumber != "" {
		ref, err := e.reference.SearchByAccountingNumber(ctx, in.AccountingNumber)
		if err != nil {
			recordReferenceFailure("accounting_number")
			logger.Warn("reference lookup failed", "op", "accounting_number", "error", err)
		} else if ref != nil {
			return ref
		}
	}

	if in.Name != "" && in.Address.City != "" {
		ref, err := e.reference.SearchByName(ctx, in.Name, in.Address.City)
		if err != nil {
			recordReferenceFailure("name")
			logger.Warn("reference lookup failed", "op", "name", "error", err)
			return nil
		}
		if ref != nil {
			logger.Debug("reference hit", slog.String("ref", ref.ID))
		}
		return ref
	}
	return nil
}

func trimInput(in MatchInput) MatchInput {
	in.Name = strings.TrimSpace(in.Name)
	in.AccountingNumber = strings.TrimSpace(in.AccountingNumber)
	in.Address.Street = strings.TrimSpace(in.Address.Street)
	in.Address.City = strings.TrimSpace(in.Address.City)
	in.Address.State = strings.TrimSpace(in.Address.State)
	in.Address.ZipCode = strings.TrimSpace(in.Address.ZipCode)
	in.Address.Country = strings.TrimSpace(in.Address.Country)
	return in
}

// MatchInputFromRow extracts the identifying attributes of a row.
func MatchInputFromRow(row CanonicalRow) MatchInput {
	return MatchInput{
		Name:             row.Get(FieldName),
		AccountingNumber: row.Get(FieldAccountingNumber),
		Address: Address{
			Street:  row.Get(FieldStreet),
			City:    row.Get(FieldCity),
			State:   row.Get(FieldState),
			ZipCode: row.Get(FieldZipCode),
			Country: row.Get(FieldCountry),
		},
	}
}
