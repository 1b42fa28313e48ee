package core

// validation.go checks canonical rows before anything touches the store.
//
// Every rule runs for every row; a row reports all of its problems at once
// so a user can fix the file in a single pass. Validation is pure and may
// run concurrently across rows.

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// requiredFields must be non-empty on every row.
var requiredFields = []Field{
	FieldName, FieldType, FieldStreet, FieldCity, FieldState, FieldZipCode, FieldCountry,
}

// ValidationIssue is a single problem found on a row.
type ValidationIssue struct {
	Field   Field  `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e ValidationIssue) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidatedRow pairs a row with the issues found on it.
type ValidatedRow struct {
	Row    CanonicalRow
	Issues []ValidationIssue
}

// Valid reports whether the row is importable.
func (v ValidatedRow) Valid() bool {
	return len(v.Issues) == 0
}

// ValidateRow applies every rule to row and returns all issues found.
func ValidateRow(row CanonicalRow) []ValidationIssue {
	var issues []ValidationIssue

	for _, f := range requiredFields {
		if !row.Has(f) {
			issues = append(issues, ValidationIssue{Field: f, Message: "required field is empty"})
		}
	}

	if v := row.Get(FieldType); v != "" {
		if _, ok := NormalizeEnum(v, InstitutionTypes); !ok {
			issues = append(issues, enumIssue(FieldType, v, InstitutionTypes))
		}
	}

	for _, f := range []Field{FieldBedCapacity, FieldSurgicalRooms} {
		if v := row.Get(f); v != "" {
			if _, ok := ParseInt(v); !ok {
				issues = append(issues, ValidationIssue{Field: f, Value: v, Message: "invalid number format (must be a whole number)"})
			}
		}
	}

	for _, f := range []Field{FieldLastAuditDate, FieldComplianceExpirationDate} {
		if v := row.Get(f); v != "" {
			if _, ok := ParseDate(v); !ok {
				issues = append(issues, ValidationIssue{Field: f, Value: v, Message: "invalid date format (use YYYY-MM-DD or DD/MM/YYYY)"})
			}
		}
	}

	if v := row.Get(FieldContactEmail); v != "" && !IsEmail(v) {
		issues = append(issues, ValidationIssue{Field: FieldContactEmail, Value: v, Message: "invalid email address"})
	}

	if v := row.Get(FieldComplianceStatus); v != "" {
		if _, ok := NormalizeEnum(v, ComplianceStatuses); !ok {
			issues = append(issues, enumIssue(FieldComplianceStatus, v, ComplianceStatuses))
		}
	}

	return issues
}

func enumIssue(f Field, v string, allowed []string) ValidationIssue {
	return ValidationIssue{
		Field:   f,
		Value:   v,
		Message: fmt.Sprintf("invalid enum value, must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateRows validates rows in order.
func ValidateRows(rows []CanonicalRow) []ValidatedRow {
	out := make([]ValidatedRow, len(rows))
	for i, r := range rows {
		out[i] = ValidatedRow{Row: r, Issues: ValidateRow(r)}
	}
	return out
}

// ValidateRowsConcurrent validates rows using up to workers goroutines.
// The output preserves input order.
func ValidateRowsConcurrent(ctx context.Context, rows []CanonicalRow, workers int) ([]ValidatedRow, error) {
	if workers <= 1 || len(rows) < 2*workers {
		return ValidateRows(rows), nil
	}

	out := make([]ValidatedRow, len(rows))
	chunk := (len(rows) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(rows); start += chunk {
		start, end := start, min(start+chunk, len(rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				out[i] = ValidatedRow{Row: rows[i], Issues: ValidateRow(rows[i])}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
