package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"optiflow/internal/jobstore"
	"optiflow/internal/models"
)

const defaultCompletionModel = "stub-echo"

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"jobs":      s.store.Len(),
	})
}

func (s *Server) handlePing(c echo.Context) error {
	return c.JSON(http.StatusOK, models.PingResult{
		Message:   "pong from optiflow stub",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleCompletion(c echo.Context) error {
	var req models.CompletionRequest
	if err := s.decodeRequestBody(c, &req); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, fakeCompletion(req))
}

// fakeCompletion echoes the prompt back, truncated to max_tokens words.
func fakeCompletion(req models.CompletionRequest) models.CompletionResult {
	words := strings.Fields(req.Prompt)
	if req.MaxTokens != nil && *req.MaxTokens < len(words) {
		words = words[:*req.MaxTokens]
	}

	model := req.Model
	if model == "" {
		model = defaultCompletionModel
	}

	return models.CompletionResult{
		Completion: strings.Join(words, " "),
		TokensUsed: len(words),
		Model:      model,
	}
}

func (s *Server) handleOptimize(c echo.Context) error {
	var req models.OptimizeRequest
	if err := s.decodeRequestBody(c, &req); err != nil {
		return err
	}

	job := s.store.Create(req)
	slog.Info("queued optimization job", "job_id", job.ID, "problem_type", job.ProblemType)

	s.workers.Add(1)
	go s.process(job)

	return c.JSON(http.StatusOK, models.OptimizeResult{
		JobID:  job.ID,
		Status: job.Status,
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	id := c.Param("id")
	if unescaped, err := url.PathUnescape(id); err == nil {
		id = unescaped
	}

	job, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, jobstore.ErrUnknownJob) {
			return requestError{Status: http.StatusNotFound, Message: "job not found"}
		}
		return err
	}

	return c.JSON(http.StatusOK, job.ToStatus())
}

// process moves a job through running to a terminal state after the
// configured delay. A delay longer than the job's own timeout fails it.
func (s *Server) process(job jobstore.Job) {
	defer s.workers.Done()

	if err := s.store.Start(job.ID); err != nil {
		slog.Error("start job", "job_id", job.ID, "err", err)
		return
	}

	delay := s.cfg.Stub.JobDelay
	timedOut := job.Timeout > 0 && delay > job.Timeout
	if timedOut {
		delay = job.Timeout
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-s.jobCtx.Done():
		_ = s.store.Fail(job.ID, "backend shutting down")
		return
	case <-timer.C:
	}

	if timedOut {
		msg := fmt.Sprintf("optimization exceeded timeout of %s", job.Timeout)
		if err := s.store.Fail(job.ID, msg); err != nil {
			slog.Error("fail job", "job_id", job.ID, "err", err)
		}
		slog.Info("optimization job timed out", "job_id", job.ID)
		return
	}

	result, err := json.Marshal(map[string]any{
		"job_id":       job.ID,
		"problem_type": job.ProblemType,
		"solver":       "stub",
		"status":       "optimal",
	})
	if err != nil {
		_ = s.store.Fail(job.ID, err.Error())
		return
	}

	if err := s.store.Complete(job.ID, string(result)); err != nil {
		slog.Error("complete job", "job_id", job.ID, "err", err)
		return
	}
	slog.Info("optimization job completed", "job_id", job.ID)
}

func (s *Server) decodeRequestBody(c echo.Context, target any) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
		}
	}

	if err := s.validate.Struct(target); err != nil {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: validationMessage(err),
		}
	}
	return nil
}
