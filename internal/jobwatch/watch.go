// Package jobwatch polls an optimization job until it reaches a terminal
// status.
package jobwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"optiflow/internal/client"
	"optiflow/internal/models"
)

const (
	DefaultInterval = time.Second
	DefaultTimeout  = 5 * time.Minute
)

var (
	// ErrJobFailed is returned alongside the final status of a failed or
	// cancelled job.
	ErrJobFailed = errors.New("job failed")
	// ErrJobNotFound is returned when the backend does not know the job.
	ErrJobNotFound = errors.New("job not found")
	// ErrTimeout is returned when the job is still running after Options.Timeout.
	ErrTimeout = errors.New("timed out waiting for job")
)

// StatusFetcher is satisfied by *client.Client.
type StatusFetcher interface {
	GetJobStatus(ctx context.Context, jobID string) (*models.JobStatus, error)
}

// Options controls the polling loop.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnUpdate is called whenever the observed status changes.
	OnUpdate func(models.JobStatus)
}

// IsTerminal reports whether a job in this status will not change again.
func IsTerminal(status string) bool {
	switch status {
	case models.StatusCompleted, models.StatusFailed, models.StatusCancelled, models.StatusNotFound:
		return true
	default:
		return false
	}
}

// Wait polls fetcher until jobID is terminal. The last observed status is
// returned with any error, when one was observed.
func Wait(ctx context.Context, fetcher StatusFetcher, jobID string, opts Options) (*models.JobStatus, error) {
	if fetcher == nil {
		return nil, errors.New("status fetcher must not be nil")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)

	var last *models.JobStatus
	for {
		if err := limiter.Wait(ctx); err != nil {
			return last, waitError(ctx, jobID, err)
		}

		status, err := fetcher.GetJobStatus(ctx, jobID)
		switch {
		case errors.Is(err, client.ErrJobNotFound):
			return last, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		case client.IsTransport(err):
			if ctx.Err() != nil {
				return last, waitError(ctx, jobID, ctx.Err())
			}
			slog.Warn("job status poll failed, retrying", "job_id", jobID, "err", err)
			continue
		case err != nil:
			return last, fmt.Errorf("poll job %s: %w", jobID, err)
		}

		if last == nil || last.Status != status.Status {
			slog.Debug("job status changed", "job_id", jobID, "status", status.Status)
			if opts.OnUpdate != nil {
				opts.OnUpdate(*status)
			}
		}
		last = status

		if !IsTerminal(status.Status) {
			continue
		}

		switch status.Status {
		case models.StatusCompleted:
			return status, nil
		case models.StatusNotFound:
			return status, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		default:
			if status.Error != "" {
				return status, fmt.Errorf("%w: %s: %s", ErrJobFailed, status.Status, status.Error)
			}
			return status, fmt.Errorf("%w: %s", ErrJobFailed, status.Status)
		}
	}
}

// waitError classifies a stopped wait. The limiter refuses to sleep past the
// deadline, so a nil ctx.Err() still means the timeout is about to expire.
func waitError(ctx context.Context, jobID string, err error) error {
	if ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, jobID)
	}
	return fmt.Errorf("wait for job %s: %w", jobID, ctx.Err())
}
