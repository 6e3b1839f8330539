package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"optiflow/internal/config"
	"optiflow/internal/jobstore"
	"optiflow/internal/models"
)

func newTestServer(t *testing.T, delay time.Duration) (*Server, *jobstore.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.Stub.JobDelay = delay

	store := jobstore.New()
	srv, err := New(cfg, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv, store
}

func doRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(config.Default(), nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestHealthAndPing(t *testing.T) {
	srv, _ := newTestServer(t, time.Millisecond)

	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/ping", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ping status = %d", rec.Code)
	}
	var ping models.PingResult
	if err := json.Unmarshal(rec.Body.Bytes(), &ping); err != nil {
		t.Fatalf("decode ping: %v", err)
	}
	if ping.Message == "" {
		t.Error("ping message is empty")
	}
	if _, err := time.Parse(time.RFC3339Nano, ping.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", ping.Timestamp, err)
	}
}

func TestCompletion(t *testing.T) {
	srv, _ := newTestServer(t, time.Millisecond)

	tests := []struct {
		name       string
		body       string
		wantText   string
		wantTokens int
		wantModel  string
	}{
		{"defaults", `{"prompt":"write a short poem"}`, "write a short poem", 4, "stub-echo"},
		{"truncated", `{"prompt":"write a short poem","model":"gpt-3.5-turbo","max_tokens":2}`, "write a", 2, "gpt-3.5-turbo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/v1/completion", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
			}
			var res models.CompletionResult
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if res.Completion != tt.wantText || res.TokensUsed != tt.wantTokens || res.Model != tt.wantModel {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestRequestValidation(t *testing.T) {
	srv, _ := newTestServer(t, time.Millisecond)

	tests := []struct {
		name   string
		path   string
		body   string
		expect string
	}{
		{"missing prompt", "/api/v1/completion", `{"model":"m"}`, "prompt: required"},
		{"negative max tokens", "/api/v1/completion", `{"prompt":"p","max_tokens":-1}`, "max_tokens: gte"},
		{"missing problem type", "/api/v1/optimize", `{"constraints_json":"{}"}`, "problem_type: required"},
		{"empty body", "/api/v1/optimize", ``, "request body is required"},
		{"malformed", "/api/v1/optimize", `{"problem_type":`, "invalid JSON payload"},
		{"trailing data", "/api/v1/optimize", `{"problem_type":"linear"} {}`, "single JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if msg := decodeError(t, rec); !strings.Contains(msg, tt.expect) {
				t.Errorf("error %q does not contain %q", msg, tt.expect)
			}
		})
	}
}

func TestUnknownJobIs404(t *testing.T) {
	srv, _ := newTestServer(t, time.Millisecond)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/job/does-not-exist", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "job not found" {
		t.Errorf("error = %q", msg)
	}
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	srv, _ := newTestServer(t, time.Millisecond)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if msg := decodeError(t, rec); msg == "" {
		t.Error("expected error message")
	}
}

func TestOptimizeJobLifecycle(t *testing.T) {
	srv, store := newTestServer(t, 20*time.Millisecond)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/optimize", `{"problem_type":"linear","constraints_json":"{}","objectives_json":"{}"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	var submitted models.OptimizeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submitted.JobID == "" || submitted.Status != models.StatusQueued {
		t.Fatalf("unexpected submission %+v", submitted)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := store.Get(submitted.JobID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Status == models.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job still %q after deadline", job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/job/"+submitted.JobID, "")
	var status models.JobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.JobID != submitted.JobID || status.Status != models.StatusCompleted {
		t.Errorf("unexpected status %+v", status)
	}
	if status.CompletedAt == 0 || status.CompletedAt < status.CreatedAt {
		t.Errorf("timestamps created=%d completed=%d", status.CreatedAt, status.CompletedAt)
	}
	if !strings.Contains(status.Result, `"optimal"`) {
		t.Errorf("result = %q", status.Result)
	}
}

func TestCloseFailsPendingJobs(t *testing.T) {
	cfg := config.Default()
	cfg.Stub.JobDelay = time.Hour
	store := jobstore.New()
	srv, err := New(cfg, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/optimize", `{"problem_type":"linear"}`)
	var submitted models.OptimizeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}

	srv.Close()

	job, err := store.Get(submitted.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != models.StatusFailed {
		t.Errorf("Status = %q, want failed", job.Status)
	}
}
