package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", res.Body.String(), err)
	}
	return out
}

func TestHealthzAndRequestID(t *testing.T) {
	env := newTestEnv(Options{})
	res := do(t, env.handler, http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestSaveSettingsRejectsBadWeights(t *testing.T) {
	env := newTestEnv(Options{})
	settings := validSettings()
	settings.EssaiWeight = 60

	res := do(t, env.handler, http.MethodPut, "/v1/settings", settings)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
	}
	if env.settings.saved != nil {
		t.Fatalf("invalid settings must not be saved")
	}
}

func TestSaveSettingsPersists(t *testing.T) {
	env := newTestEnv(Options{})
	settings := validSettings()
	settings.CurrentBatch = "Mock Exams Mar 2025"

	res := do(t, env.handler, http.MethodPut, "/v1/settings", settings)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	got := decode[domain.Settings](t, res)
	if got.CurrentBatch != "Mock Exams Mar 2025" {
		t.Fatalf("unexpected settings %+v", got)
	}
}

func TestLoadSettingsMapsNotFound(t *testing.T) {
	env := newTestEnv(Options{})
	res := do(t, env.handler, http.MethodPost, "/v1/settings/load", map[string]string{"file_name": "missing.json"})
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestUnknownJSONFieldsAreRejected(t *testing.T) {
	env := newTestEnv(Options{})
	res := do(t, env.handler, http.MethodPost, "/v1/settings/load", map[string]string{"file": "x.json"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(Options{})

	res := do(t, env.handler, http.MethodPost, "/v1/sessions", nil)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.Code)
	}
	session := decode[sessionResponse](t, res)
	if session.ID == "" || session.Settings.EssaiWeight != 50 {
		t.Fatalf("unexpected session %+v", session)
	}
	base := "/v1/sessions/" + session.ID

	res = do(t, env.handler, http.MethodPost, base+"/normalize", map[string]any{
		"batch": "Mock Exams Feb 2025",
		"files": []map[string]string{{"id": "att-1", "name": "Alice.docx"}},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("normalize expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(env.pipeline.normalize.Files) != 1 || env.pipeline.normalize.Files[0].ID != "att-1" {
		t.Fatalf("unexpected normalize request %+v", env.pipeline.normalize)
	}

	res = do(t, env.handler, http.MethodPost, base+"/split", map[string]any{"files": []string{"Alice.md"}})
	if res.Code != http.StatusOK {
		t.Fatalf("split expected 200, got %d", res.Code)
	}

	res = do(t, env.handler, http.MethodGet, base+"/exams", nil)
	if got := decode[sessionResponse](t, res); len(got.Exams) != 1 || got.Exams[0] != "Alice.md" {
		t.Fatalf("unexpected exams %+v", got)
	}

	res = do(t, env.handler, http.MethodPost, base+"/grade", map[string]any{"batch": "Other Batch", "exams": []string{"Alice.md"}})
	if res.Code != http.StatusOK || len(env.pipeline.grade.Exams) != 1 || env.pipeline.grade.Batch != "Other Batch" {
		t.Fatalf("grade expected 200 with selection, got %d %+v", res.Code, env.pipeline.grade)
	}

	res = do(t, env.handler, http.MethodPost, base+"/deliver", map[string]any{"exams": []string{"Alice.md"}})
	if got := decode[map[string]any](t, res); got["warnings"] != float64(1) {
		t.Fatalf("expected warnings in deliver report, got %v", got)
	}

	res = do(t, env.handler, http.MethodDelete, base, nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("close expected 204, got %d", res.Code)
	}
	res = do(t, env.handler, http.MethodGet, base+"/exams", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("closed session expected 404, got %d", res.Code)
	}
}

func TestSessionSettingsValidates(t *testing.T) {
	env := newTestEnv(Options{})
	session := decode[sessionResponse](t, do(t, env.handler, http.MethodPost, "/v1/sessions", nil))

	bad := validSettings()
	bad.SyntheseAssistantID = ""
	res := do(t, env.handler, http.MethodPut, "/v1/sessions/"+session.ID+"/settings", bad)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestStageErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid", err: domain.NewValidationError("grade", domain.FieldError{Field: "selection", Message: "no items selected"}), want: http.StatusBadRequest},
		{name: "not found", err: domain.WrapError(domain.ErrNotFound, "batch", errors.New("x")), want: http.StatusNotFound},
		{name: "temporary", err: domain.WrapError(domain.ErrTemporary, "openai", errors.New("x")), want: http.StatusServiceUnavailable},
		{name: "timeout", err: domain.WrapError(domain.ErrTimeout, "grade", errors.New("x")), want: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(Options{})
			env.pipeline.err = tc.err
			session := decode[sessionResponse](t, do(t, env.handler, http.MethodPost, "/v1/sessions", nil))
			res := do(t, env.handler, http.MethodPost, "/v1/sessions/"+session.ID+"/grade", map[string]any{"exams": []string{}})
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
			if body := decode[map[string]string](t, res); body["request_id"] == "" {
				t.Fatalf("expected request id in error body")
			}
		})
	}
}

func TestBatchJournalParsesLimit(t *testing.T) {
	env := newTestEnv(Options{})
	res := do(t, env.handler, http.MethodGet, "/v1/batches/Mock%20Exams%20Feb%202025/journal?limit=5", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if env.journal.batch != "Mock Exams Feb 2025" || env.journal.limit != 5 {
		t.Fatalf("unexpected journal query %q %d", env.journal.batch, env.journal.limit)
	}

	res = do(t, env.handler, http.MethodGet, "/v1/batches/B/journal?limit=-1", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", res.Code)
	}
}

func multipartUpload(t *testing.T, fields map[string]string, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = part.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSubmitUploadAccepted(t *testing.T) {
	env := newTestEnv(Options{})
	req := multipartUpload(t, map[string]string{
		"batch": "Mock Exams Feb 2025",
		"name":  "Alice",
		"email": "alice@example.com",
	}, "Alice.docx", []byte("DOCX"))
	res := httptest.NewRecorder()
	env.handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if env.uploads.submitted == nil || string(env.uploads.submitted.Data) != "DOCX" {
		t.Fatalf("unexpected submitted upload %+v", env.uploads.submitted)
	}
}

func TestSubmitUploadRequiresFile(t *testing.T) {
	env := newTestEnv(Options{})
	req := multipartUpload(t, map[string]string{"batch": "B", "name": "A", "email": "a@example.com"}, "", nil)
	res := httptest.NewRecorder()
	env.handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSubmitUploadTooLarge(t *testing.T) {
	env := newTestEnv(Options{MaxUploadBytes: 1024})
	req := multipartUpload(t, map[string]string{"batch": "B", "name": "A", "email": "a@example.com"}, "A.pdf", bytes.Repeat([]byte("x"), 4096))
	res := httptest.NewRecorder()
	env.handler.ServeHTTP(res, req)
	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestDownloadBlob(t *testing.T) {
	env := newTestEnv(Options{})
	res := do(t, env.handler, http.MethodGet, "/v1/blobs?id=r-1", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Body.String() != "DOCX" {
		t.Fatalf("unexpected body %q", res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); !strings.Contains(ct, "wordprocessingml") {
		t.Fatalf("unexpected content type %q", ct)
	}

	if res := do(t, env.handler, http.MethodGet, "/v1/blobs?id=missing", nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing blob, got %d", res.Code)
	}
	if res := do(t, env.handler, http.MethodGet, "/v1/blobs", nil); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without id, got %d", res.Code)
	}
}
