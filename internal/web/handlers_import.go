package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/google/uuid"

	"github.com/JonMunkholm/institution-import/internal/core"
	"github.com/JonMunkholm/institution-import/internal/logging"
	"github.com/JonMunkholm/institution-import/internal/web/templates"
)

const templateFilename = "institution-import-template.csv"

// multipartMemory is how much of a multipart upload is buffered in memory
// before spilling to temp files.
const multipartMemory = 8 << 20

var (
	errNoFile        = errors.New("no file provided")
	errBadUpload     = errors.New("invalid csv upload")
	errInvalidOption = errors.New("invalid import option")
)

// handleTemplate serves the CSV template as a download.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": templateFilename}))
	if _, err := io.WriteString(w, s.service.GenerateTemplate()); err != nil {
		logging.FromContext(r.Context()).Warn("write template", "error", err)
	}
}

// handleValidate runs a read-only dry run over the uploaded file.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	text, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	report, err := s.service.Validate(r.Context(), text)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	if wantsHTML(r) {
		s.renderHTML(w, r, templates.ValidationSummary(report))
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// handleImport imports the uploaded file. Row-level failures are part of
// a 200 response; only whole-request failures map to error statuses.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	text, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	opts, err := importOptions(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	logger := logging.FromContext(r.Context())
	logger.Info("import requested",
		"bytes", len(text),
		"validate_only", opts.ValidateOnly,
		"skip_duplicates", opts.SkipDuplicates,
		"merge_duplicates", opts.MergeDuplicates,
	)

	result, err := s.service.Import(r.Context(), text, opts)
	if err != nil {
		if errors.Is(err, core.ErrTooManyImports) {
			w.Header().Set("Retry-After", "30")
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}

	if wantsHTML(r) {
		s.renderHTML(w, r, templates.ImportReport(result))
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// readUpload returns the CSV text from a multipart "file" field or, for
// any other content type, from the raw request body. The body is capped at
// the configured maximum file size. An empty body is passed through; the
// parser treats it as a file with zero rows.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)

	var data []byte
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return "", fmt.Errorf("%w: %w", errBadUpload, err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return "", errNoFile
		}
		defer file.Close()

		data, err = io.ReadAll(file)
		if err != nil {
			return "", fmt.Errorf("read upload: %w", err)
		}
	} else {
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			return "", fmt.Errorf("read upload: %w", err)
		}
	}
	return string(data), nil
}

// importOptions reads the flags from form or query values.
func importOptions(r *http.Request) (core.ImportOptions, error) {
	var opts core.ImportOptions
	var err error

	if opts.ValidateOnly, err = boolOption(r, "validateOnly"); err != nil {
		return opts, err
	}
	if opts.SkipDuplicates, err = boolOption(r, "skipDuplicates"); err != nil {
		return opts, err
	}
	if opts.MergeDuplicates, err = boolOption(r, "mergeDuplicates"); err != nil {
		return opts, err
	}

	if raw := strings.TrimSpace(optionValue(r, "assignedOwnerId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return opts, fmt.Errorf("%w assignedOwnerId: %q", errInvalidOption, raw)
		}
		opts.AssignedOwnerID = uuid.NullUUID{UUID: id, Valid: true}
	}
	return opts, nil
}

func boolOption(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(optionValue(r, name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w %s: %q", errInvalidOption, name, raw)
	}
	return v, nil
}

// optionValue prefers multipart form fields over the query string.
func optionValue(r *http.Request, name string) string {
	if r.MultipartForm != nil {
		if vs := r.MultipartForm.Value[name]; len(vs) > 0 {
			return vs[0]
		}
	}
	return r.URL.Query().Get(name)
}

func (s *Server) renderHTML(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render html", "error", err)
	}
}
