// Package core provides the business logic for institution CSV imports.
//
// It contains all domain logic independent of transport and storage, and
// is used by the HTTP server, the CLI and tests alike.
//
// # Pipeline
//
//  1. [Parse] maps headers through the field mapper ([MapHeader]) and splits
//     each physical line into a [CanonicalRow].
//  2. [ValidateRows] checks required fields, enumerations, numbers, dates
//     and email shape, collecting every issue per row.
//  3. The [Engine] runs an ordered list of [Strategy] values against the
//     [Repository]: accounting number (100), exact name and address (95),
//     fuzzy name within the same city (80-85). Near misses scoring 0.60 or
//     more are returned as suggestions.
//  4. The [Importer] creates, merges, skips or rejects each valid row,
//     one row at a time, and aggregates an [ImportResult].
//
// # Duplicates
//
// A row matching an existing institution is merged when
// ImportOptions.MergeDuplicates is set, skipped (contacts still upserted)
// when SkipDuplicates is set, and rejected as a row failure otherwise.
//
// # Error Handling
//
// Only a structural parse failure ([ErrMalformedCSV]) fails a whole call.
// Everything else is reported per row. Technical errors are mapped to
// user-facing messages with support codes by [MapError].
package core
