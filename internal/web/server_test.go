package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/institution-import/internal/config"
	"github.com/JonMunkholm/institution-import/internal/core"
	"github.com/JonMunkholm/institution-import/internal/memstore"
)

const scenarioCSV = "name,type,street,city,state,zipCode,country\n" +
	"General Hospital,hospital,123 Main,Healthcare City,CA,90210,US"

func testConfig() *config.Config {
	return &config.Config{
		Import: config.ImportConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 1,
		},
		Rate: config.RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 100,
			ImportLimit:       10,
		},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config), opts ...Option) (*Server, *memstore.Store) {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	store := memstore.New()
	svc := core.NewService(store, core.ServiceConfig{MaxConcurrentImports: cfg.Import.MaxConcurrent})
	return NewServer(svc, cfg, opts...), store
}

func seed(store *memstore.Store) uuid.UUID {
	return store.Seed(core.Institution{
		Name:    "General Hospital",
		Type:    "hospital",
		Street:  "123 Main",
		City:    "Healthcare City",
		State:   "CA",
		ZipCode: "90210",
		Country: "US",
	})
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func postCSV(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	return req
}

func postMultipart(t *testing.T, target string, file *string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "institutions.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(*file))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) core.ImportResult {
	t.Helper()
	var result core.ImportResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result), rec.Body.String())
	return result
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp), rec.Body.String())
	return resp
}

func TestTemplateDownload(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/import/template", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), templateFilename)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "name,"), rec.Body.String())
}

func TestImport_RawBody(t *testing.T) {
	s, store := newTestServer(t, nil)

	rec := do(s, postCSV("/api/import", scenarioCSV))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeResult(t, rec)
	assert.Equal(t, 1, result.TotalRows)
	assert.Equal(t, 1, result.SuccessfulImports)
	assert.Equal(t, 0, result.FailedImports)
	assert.Equal(t, 0, result.DuplicatesFound)
	assert.True(t, result.Success)

	insts := store.Institutions()
	require.Len(t, insts, 1)
	assert.Equal(t, "General Hospital", insts[0].Name)
}

func TestImport_MultipartWithFormOptions(t *testing.T) {
	s, store := newTestServer(t, nil)
	seed(store)
	body := scenarioCSV

	rec := do(s, postMultipart(t, "/api/import", &body, map[string]string{"skipDuplicates": "true"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeResult(t, rec)
	assert.Equal(t, 1, result.DuplicatesFound)
	assert.Equal(t, 1, result.DuplicatesSkipped)
	assert.Len(t, store.Institutions(), 1)
}

func TestImport_QueryOptions(t *testing.T) {
	s, store := newTestServer(t, nil)
	owner := uuid.New()

	rec := do(s, postCSV("/api/import?validateOnly=true&assignedOwnerId="+owner.String(), scenarioCSV))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeResult(t, rec)
	assert.True(t, result.ValidateOnly)
	assert.Empty(t, store.Institutions(), "validateOnly must not write")
}

func TestImport_AssignsOwner(t *testing.T) {
	s, store := newTestServer(t, nil)
	owner := uuid.New()

	rec := do(s, postCSV("/api/import?assignedOwnerId="+owner.String(), scenarioCSV))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	insts := store.Institutions()
	require.Len(t, insts, 1)
	require.True(t, insts[0].OwnerID.Valid)
	assert.Equal(t, owner, insts[0].OwnerID.UUID)
}

func TestImport_EmptyBodyHasNoRows(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, postCSV("/api/import", ""))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeResult(t, rec)
	assert.Equal(t, 0, result.TotalRows)
}

func TestImport_RequestErrors(t *testing.T) {
	noFile := (*string)(nil)

	tests := []struct {
		name       string
		maxSize    int64
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid boolean option",
			req:        func(*testing.T) *http.Request { return postCSV("/api/import?skipDuplicates=maybe", scenarioCSV) },
			wantStatus: http.StatusBadRequest,
			wantCode:   "IMP005",
		},
		{
			name:       "invalid owner",
			req:        func(*testing.T) *http.Request { return postCSV("/api/import?assignedOwnerId=bob", scenarioCSV) },
			wantStatus: http.StatusBadRequest,
			wantCode:   "IMP005",
		},
		{
			name:       "header without recognised columns",
			req:        func(*testing.T) *http.Request { return postCSV("/api/import", "foo,bar\n1,2") },
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE003",
		},
		{
			name:       "binary upload",
			req:        func(*testing.T) *http.Request { return postCSV("/api/import", "name\x00type\n") },
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE002",
		},
		{
			name:       "multipart without file",
			req:        func(t *testing.T) *http.Request { return postMultipart(t, "/api/import", noFile, map[string]string{"a": "b"}) },
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE004",
		},
		{
			name:       "body over the limit",
			maxSize:    16,
			req:        func(*testing.T) *http.Request { return postCSV("/api/import", scenarioCSV) },
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "FILE001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := newTestServer(t, func(c *config.Config) {
				if tt.maxSize > 0 {
					c.Import.MaxFileSize = tt.maxSize
				}
			})

			rec := do(s, tt.req(t))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Message)
			assert.Empty(t, store.Institutions())
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	s, store := newTestServer(t, nil)
	seed(store)

	rec := do(s, postCSV("/api/import/validate", scenarioCSV+"\n,clinic,9 Oak,Nice,PAC,06000,FR"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report core.ValidationReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, 2, report.TotalRows)
	assert.Equal(t, 1, report.ValidRows)
	assert.Equal(t, 1, report.DuplicatesFound)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "name", report.Errors[0].Field)
	assert.Len(t, store.Institutions(), 1)
}

func TestImport_HTMLReport(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := postCSV("/api/import", scenarioCSV+"\nBad <Clinic>,castle,1 Rd,Nice,PAC,06000,FR")
	req.Header.Set("Accept", "text/html")

	rec := do(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Import report")
	assert.Contains(t, body, `data-status="failed"`)
	assert.Contains(t, body, "<dd>1</dd>")
	assert.NotContains(t, body, "<Clinic>", "user content must be escaped")
}

func TestImport_HTMLErrorForHTMX(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := postCSV("/api/import", "foo,bar\n1,2")
	req.Header.Set("HX-Request", "true")

	rec := do(s, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "FILE003")
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantStatus int
		wantBody   string
	}{
		{name: "no database", wantStatus: http.StatusOK, wantBody: `"status":"ok"`},
		{name: "database up", opts: []Option{WithHealthCheck(stubPinger{})}, wantStatus: http.StatusOK, wantBody: `"database":"ok"`},
		{name: "database down", opts: []Option{WithHealthCheck(stubPinger{err: errors.New("connection refused")})}, wantStatus: http.StatusServiceUnavailable, wantBody: `"status":"degraded"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, nil, tt.opts...)
			rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.Contains(t, rec.Body.String(), `"maxConcurrent":1`)
		})
	}
}

func TestMetricsExposeImportCounters(t *testing.T) {
	s, _ := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, do(s, postCSV("/api/import", scenarioCSV)).Code)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "institution_import_rows_total")
	assert.Contains(t, rec.Body.String(), "institution_import_duration_seconds")
}

func TestAPIKeyAuth(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"first", "second"}
	})

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "wrong", header: "X-API-Key", value: "nope", wantStatus: http.StatusForbidden},
		{name: "x-api-key", header: "X-API-Key", value: "second", wantStatus: http.StatusOK},
		{name: "bearer", header: "Authorization", value: "Bearer first", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/import/template", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			assert.Equal(t, tt.wantStatus, do(s, req).Code)
		})
	}

	t.Run("health stays open", func(t *testing.T) {
		rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestImportRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Rate.Enabled = true
		c.Rate.ImportLimit = 1
	})

	first := do(s, postCSV("/api/import?validateOnly=true", scenarioCSV))
	require.Equal(t, http.StatusOK, first.Code)

	second := do(s, postCSV("/api/import?validateOnly=true", scenarioCSV))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeError(t, second).Code)

	// the template route is only under the general limit
	assert.Equal(t, http.StatusOK, do(s, httptest.NewRequest(http.MethodGet, "/api/import/template", nil)).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrMalformedCSV, http.StatusBadRequest},
		{core.ErrTooManyImports, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
