package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// orgTypeTokens are generic institution-type words stripped from either
// end of a name before comparison, so "Clinique Saint-Jean" and
// "Saint Jean" compare equal.
var orgTypeTokens = map[string]bool{
	"hospital":     true,
	"hôpital":      true,
	"hopital":      true,
	"hospitalier":  true,
	"hospitalière": true,
	"clinic":       true,
	"clinique":     true,
	"polyclinic":   true,
	"polyclinique": true,
	"center":       true,
	"centre":       true,
	"medical":      true,
	"médical":      true,
	"chu":          true,
	"chr":          true,
	"ch":           true,
}

// connectorTokens are dropped when they become leading or trailing after
// type tokens were stripped ("Centre de la Loire" -> "loire").
var connectorTokens = map[string]bool{
	"de": true, "du": true, "des": true, "la": true, "le": true, "les": true,
	"d": true, "l": true, "of": true, "the": true,
}

// NormalizeName lowercases a name, strips punctuation (keeping every
// Unicode letter and digit), collapses whitespace and removes generic
// institution-type words from both ends. A name made only of such words
// is returned without stripping.
func NormalizeName(s string) string {
	s = strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	if len(tokens) == 0 {
		return ""
	}

	stripped := trimTokens(tokens)
	if len(stripped) == 0 {
		return strings.Join(tokens, " ")
	}
	return strings.Join(stripped, " ")
}

func trimTokens(tokens []string) []string {
	start, end := 0, len(tokens)
	for {
		changed := false
		for start < end && orgTypeTokens[tokens[start]] {
			start++
			changed = true
		}
		for start < end && orgTypeTokens[tokens[end-1]] {
			end--
			changed = true
		}
		if !changed {
			break
		}
		for start < end && connectorTokens[tokens[start]] {
			start++
		}
		for start < end && connectorTokens[tokens[end-1]] {
			end--
		}
	}
	return tokens[start:end]
}

// foldEqual compares two attribute values trimmed and case-insensitively.
func foldEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
