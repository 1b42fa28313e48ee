package core

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// AccountingNumberStrategy matches on the externally governed accounting
// number. A hit is authoritative whatever the name or address says.
type AccountingNumberStrategy struct{}

func (AccountingNumberStrategy) Name() string { return "accounting_number" }

func (AccountingNumberStrategy) Match(ctx context.Context, in MatchInput, store Repository) (*MatchResult, error) {
	if in.AccountingNumber == "" {
		return nil, nil
	}
	inst, err := store.FindInstitutionByAccountingNumber(ctx, in.AccountingNumber)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, nil
	}
	id := inst.ID
	return &MatchResult{
		Matched:       true,
		MatchType:     MatchAccountingNumber,
		Confidence:    ConfidenceAccountingNumber,
		InstitutionID: &id,
		Details: MatchDetails{
			Reason: fmt.Sprintf("accounting number %q matches %q", in.AccountingNumber, inst.Name),
		},
	}, nil
}

// ExactNameAddressStrategy requires street, city and zip code to equal an
// existing record's, and the normalised names to be identical.
type ExactNameAddressStrategy struct{}

func (ExactNameAddressStrategy) Name() string { return "exact_name_address" }

func (ExactNameAddressStrategy) Match(ctx context.Context, in MatchInput, store Repository) (*MatchResult, error) {
	a := in.Address
	want := NormalizeName(in.Name)
	if want == "" || a.Street == "" || a.City == "" || a.ZipCode == "" {
		return nil, nil
	}
	candidates, err := store.FindInstitutionsByAddress(ctx, a.Street, a.City, a.ZipCode)
	if err != nil {
		return nil, err
	}
	sortByID(candidates)

	for _, c := range candidates {
		if !foldEqual(c.Street, a.Street) || !foldEqual(c.City, a.City) || !foldEqual(c.ZipCode, a.ZipCode) {
			continue
		}
		if NormalizeName(c.Name) != want {
			continue
		}
		id := c.ID
		return &MatchResult{
			Matched:       true,
			MatchType:     MatchExactNameAddress,
			Confidence:    ConfidenceExactNameAddress,
			InstitutionID: &id,
			Details: MatchDetails{
				NameSimilarity: ptr(1.0),
				AddressMatch:   ptr(true),
				CityMatch:      ptr(true),
				Reason:         fmt.Sprintf("name and address match %q", c.Name),
			},
		}, nil
	}
	return nil, nil
}

// FuzzyNameCityStrategy scores every institution in the input's city and
// accepts the best one at or above FuzzyMatchThreshold. Institutions in
// other cities are never considered.
type FuzzyNameCityStrategy struct {
	Similarity     SimilarityFunc
	CandidateLimit int
}

func (FuzzyNameCityStrategy) Name() string { return "fuzzy_name_city" }

type scoredCandidate struct {
	inst  Institution
	score float64
}

func (s FuzzyNameCityStrategy) Match(ctx context.Context, in MatchInput, store Repository) (*MatchResult, error) {
	city := in.Address.City
	want := NormalizeName(in.Name)
	if city == "" || want == "" {
		return nil, nil
	}
	sim := s.Similarity
	if sim == nil {
		sim = DiceSimilarity
	}
	limit := s.CandidateLimit
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	candidates, err := store.FindInstitutionsByNameAndCity(ctx, in.Name, city, limit)
	if err != nil {
		return nil, err
	}

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !foldEqual(c.City, city) {
			continue
		}
		scored = append(scored, scoredCandidate{inst: c, score: sim(want, NormalizeName(c.Name))})
	}
	if len(scored) == 0 {
		return nil, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].inst.ID.String() < scored[j].inst.ID.String()
	})

	best := scored[0]
	res := &MatchResult{
		MatchType: MatchNone,
		Details: MatchDetails{
			NameSimilarity: ptr(best.score),
			CityMatch:      ptr(true),
		},
	}

	rest := scored
	if best.score >= FuzzyMatchThreshold {
		id := best.inst.ID
		res.Matched = true
		res.MatchType = MatchFuzzyNameCity
		res.Confidence = fuzzyConfidence(best.score)
		res.InstitutionID = &id
		res.Details.Reason = fmt.Sprintf("name similar to %q (%.2f) in %s", best.inst.Name, best.score, city)
		rest = scored[1:]
	} else {
		res.Details.Reason = fmt.Sprintf("best name similarity %.2f in %s is below %.2f", best.score, city, FuzzyMatchThreshold)
	}

	for _, c := range rest {
		if c.score < SuggestionThreshold || len(res.Suggestions) == MaxSuggestions {
			break
		}
		res.Suggestions = append(res.Suggestions, c.inst.ID)
	}
	return res, nil
}

// fuzzyConfidence maps a similarity to the 0-100 scale, capped.
func fuzzyConfidence(score float64) int {
	c := int(math.Round(score * 100))
	if c > MaxFuzzyConfidence {
		return MaxFuzzyConfidence
	}
	return c
}

func sortByID(list []Institution) {
	sort.Slice(list, func(i, j int) bool {
		return strings.Compare(list[i].ID.String(), list[j].ID.String()) < 0
	})
}

func ptr[T any](v T) *T { return &v }

// idPtr returns a pointer to a copy of id.
func idPtr(id uuid.UUID) *uuid.UUID { return &id }
