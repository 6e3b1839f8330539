package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"optiflow/internal/client"
	"optiflow/internal/config"
	"optiflow/internal/jobstore"
	"optiflow/internal/jobwatch"
	"optiflow/internal/models"
	"optiflow/internal/server"
)

// setup starts a stub backend and captures command output.
func setup(t *testing.T) (string, *bytes.Buffer) {
	t.Helper()
	chdirForTest(t, t.TempDir())
	t.Setenv(config.EnvAPIBase, "")
	t.Setenv(config.EnvPublicAPIBase, "")
	t.Setenv(config.EnvLogLevel, "error")

	cfg := config.Default()
	cfg.Stub.JobDelay = 20 * time.Millisecond
	srv, err := server.New(cfg, jobstore.New())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})

	var out bytes.Buffer
	prev := stdout
	stdout = &out
	t.Cleanup(func() { stdout = prev })

	return ts.URL, &out
}

func TestUnknownCommand(t *testing.T) {
	err := Execute(context.Background(), []string{"frobnicate"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestPingCommand(t *testing.T) {
	base, out := setup(t)

	if err := Execute(context.Background(), []string{"ping", "--base-url", base}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	var res models.PingResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if !strings.HasPrefix(res.Message, "pong") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestPingCommandUsesEnvironment(t *testing.T) {
	base, out := setup(t)
	t.Setenv(config.EnvPublicAPIBase, base)

	if err := Execute(context.Background(), []string{"ping"}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !strings.Contains(out.String(), "pong") {
		t.Errorf("output = %q", out.String())
	}
}

func TestPingCommandTransportFailure(t *testing.T) {
	setup(t)

	err := Execute(context.Background(), []string{"ping", "--base-url", "http://127.0.0.1:1"})
	if !client.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestCompleteCommand(t *testing.T) {
	base, out := setup(t)

	args := []string{"complete", "--base-url", base, "--prompt", "write a short poem", "--max-tokens", "2"}
	if err := Execute(context.Background(), args); err != nil {
		t.Fatalf("complete: %v", err)
	}
	var res models.CompletionResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if res.Completion != "write a" || res.TokensUsed != 2 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestCompleteRequiresPrompt(t *testing.T) {
	setup(t)
	if err := Execute(context.Background(), []string{"complete"}); err == nil {
		t.Fatal("expected error without --prompt")
	}
}

func TestOptimizeThenJobCommands(t *testing.T) {
	base, out := setup(t)

	if err := Execute(context.Background(), []string{"optimize", "--base-url", base, "--type", "linear"}); err != nil {
		t.Fatalf("optimize: %v", err)
	}
	var submitted models.OptimizeResult
	if err := json.Unmarshal(out.Bytes(), &submitted); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if submitted.JobID == "" {
		t.Fatal("empty job id")
	}

	out.Reset()
	if err := Execute(context.Background(), []string{"job", "--base-url", base, submitted.JobID}); err != nil {
		t.Fatalf("job: %v", err)
	}
	var status models.JobStatus
	if err := json.Unmarshal(out.Bytes(), &status); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if status.JobID != submitted.JobID {
		t.Errorf("JobID = %q, want %q", status.JobID, submitted.JobID)
	}

	out.Reset()
	args := []string{"wait", "--base-url", base, "--interval", "5ms", "--timeout", "5s", submitted.JobID}
	if err := Execute(context.Background(), args); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if err := json.Unmarshal(out.Bytes(), &status); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if status.Status != models.StatusCompleted {
		t.Errorf("Status = %q, want completed", status.Status)
	}
}

func TestJobCommandNotFound(t *testing.T) {
	base, _ := setup(t)

	err := Execute(context.Background(), []string{"job", "--base-url", base, "missing"})
	if !errors.Is(err, client.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestWaitCommandNotFound(t *testing.T) {
	base, _ := setup(t)

	err := Execute(context.Background(), []string{"wait", "--base-url", base, "--interval", "5ms", "missing"})
	if !errors.Is(err, jobwatch.ErrJobNotFound) {
		t.Fatalf("expected jobwatch.ErrJobNotFound, got %v", err)
	}
}

func TestJobCommandRequiresID(t *testing.T) {
	setup(t)
	if err := Execute(context.Background(), []string{"job"}); err == nil {
		t.Fatal("expected error without job id")
	}
}

func TestInvalidBaseURLFlag(t *testing.T) {
	setup(t)
	err := Execute(context.Background(), []string{"ping", "--base-url", "localhost:8080"})
	if err == nil || !strings.Contains(err.Error(), "--base-url") {
		t.Fatalf("expected --base-url error, got %v", err)
	}
}
