// Package templates renders the HTML views of the import server as templ
// components.
package templates

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/institution-import/internal/core"
)

// html writes escaped fragments and keeps the first write error.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *html) rawf(format string, args ...any) {
	h.raw(fmt.Sprintf(format, args...))
}

// ErrorAlert renders a user-facing error with its support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<div class="alert alert-error" role="alert"><p class="alert-message">`)
		h.text(message)
		h.raw(`</p>`)
		if action != "" {
			h.raw(`<p class="alert-action">`)
			h.text(action)
			h.raw(`</p>`)
		}
		h.raw(`<p class="alert-code">Code: `)
		h.text(code)
		h.raw(`</p></div>`)
		return h.err
	})
}

// ImportReport renders the counters, errors and per-row outcomes of an
// import run.
func ImportReport(result *core.ImportResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}

		title := "Import report"
		if result.ValidateOnly {
			title = "Validation report"
		}
		status := "success"
		if !result.Success {
			status = "failed"
		}

		h.rawf(`<section class="import-report" data-import-id="%s" data-status="%s">`,
			templ.EscapeString(result.ImportID.String()), status)
		h.raw(`<h2>`)
		h.text(title)
		h.raw(`</h2>`)
		if result.Cancelled {
			h.raw(`<p class="import-cancelled">The import was interrupted; remaining rows were not processed.</p>`)
		}

		h.raw(`<dl class="import-counters">`)
		counter(h, "Total rows", result.TotalRows)
		counter(h, "Successful", result.SuccessfulImports)
		counter(h, "Failed", result.FailedImports)
		counter(h, "Duplicates found", result.DuplicatesFound)
		counter(h, "Duplicates merged", result.DuplicatesMerged)
		counter(h, "Duplicates skipped", result.DuplicatesSkipped)
		h.raw(`</dl>`)

		warnings(h, result.Warnings)
		rowErrors(h, result.Errors)

		if len(result.Rows) > 0 {
			h.raw(`<table class="import-rows"><thead><tr><th>Row</th><th>Status</th><th>Institution</th><th>Match</th></tr></thead><tbody>`)
			for _, row := range result.Rows {
				h.rawf(`<tr class="row-%s"><td>%d</td><td>`, templ.EscapeString(string(row.Status)), row.Row)
				h.text(string(row.Status))
				h.raw(`</td><td>`)
				if row.InstitutionID != nil {
					h.text(row.InstitutionID.String())
				}
				h.raw(`</td><td>`)
				if row.Match != nil && row.Match.Matched {
					h.text(string(row.Match.MatchType))
					h.raw(` (`)
					h.text(strconv.Itoa(row.Match.Confidence))
					h.raw(`%)`)
				}
				h.raw(`</td></tr>`)
			}
			h.raw(`</tbody></table>`)
		}

		h.raw(`</section>`)
		return h.err
	})
}

// ValidationSummary renders the result of a read-only dry run.
func ValidationSummary(report *core.ValidationReport) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<section class="validation-report"><h2>Validation report</h2><dl class="import-counters">`)
		counter(h, "Total rows", report.TotalRows)
		counter(h, "Valid rows", report.ValidRows)
		counter(h, "Duplicates found", report.DuplicatesFound)
		h.raw(`</dl>`)
		warnings(h, report.Warnings)
		rowErrors(h, report.Errors)
		h.raw(`</section>`)
		return h.err
	})
}

func counter(h *html, label string, n int) {
	h.raw(`<dt>`)
	h.text(label)
	h.rawf(`</dt><dd>%d</dd>`, n)
}

func warnings(h *html, list []string) {
	if len(list) == 0 {
		return
	}
	h.raw(`<ul class="import-warnings">`)
	for _, w := range list {
		h.raw(`<li>`)
		h.text(w)
		h.raw(`</li>`)
	}
	h.raw(`</ul>`)
}

func rowErrors(h *html, list []core.RowError) {
	if len(list) == 0 {
		return
	}
	h.raw(`<table class="import-errors"><thead><tr><th>Row</th><th>Field</th><th>Message</th></tr></thead><tbody>`)
	for _, e := range list {
		h.rawf(`<tr><td>%d</td><td>`, e.Row)
		h.text(e.Field)
		h.raw(`</td><td>`)
		h.text(e.Message)
		h.raw(`</td></tr>`)
	}
	h.raw(`</tbody></table>`)
}
