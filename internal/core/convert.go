package core

// convert.go interprets the raw strings of a CanonicalRow.
//
// The parser never coerces values; validation and row building use these
// helpers so that a value accepted by the validator is always convertible.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// emailRegex accepts the basic local@domain.tld shape.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// integerRegex accepts an optional sign followed by digits.
var integerRegex = regexp.MustCompile(`^[+-]?\d+$`)

// dateLayouts are tried in order. Slashed and dashed numeric dates are
// read day-first.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// InstitutionTypes is the institution-type enumeration.
var InstitutionTypes = []string{
	"hospital",
	"clinic",
	"medical_center",
	"surgical_center",
	"specialty_clinic",
	"diagnostic_center",
	"rehabilitation_center",
	"nursing_home",
}

// ComplianceStatuses is the compliance-status enumeration.
var ComplianceStatuses = []string{
	"compliant",
	"non_compliant",
	"pending_review",
	"expired",
	"not_assessed",
}

// ParseDate parses s with the accepted layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseInt parses a whole number. Thousands separators are rejected.
func ParseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if !integerRegex.MatchString(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool {
	return emailRegex.MatchString(strings.TrimSpace(s))
}

// NormalizeEnum returns the canonical member of allowed equal to value,
// ignoring case and treating spaces and hyphens as underscores.
func NormalizeEnum(value string, allowed []string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.NewReplacer(" ", "_", "-", "_").Replace(v)
	for _, a := range allowed {
		if a == v {
			return a, true
		}
	}
	return "", false
}

// SplitList splits a multi-valued cell on ';', '|' or ','. Entries are
// trimmed, empties dropped and case-insensitive duplicates removed
// keeping the first spelling.
func SplitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == '|' || r == ','
	})
	return unionFold(nil, parts)
}

// unionFold appends the entries of extra missing from base, comparing
// case-insensitively and preserving order.
func unionFold(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			key := strings.ToLower(v)
			if v == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, v)
		}
	}
	return out
}
