package jobstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"optiflow/internal/models"
)

// ErrUnknownJob indicates the job ID is not registered.
var ErrUnknownJob = errors.New("unknown job")

// ErrJobFinished indicates an attempt to move a job out of a terminal state.
var ErrJobFinished = errors.New("job already finished")

// Job is a stored optimization job.
type Job struct {
	ID          string
	ProblemType string
	Constraints string
	Objectives  string
	Timeout     time.Duration
	Status      string
	Result      string
	Error       string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// ToStatus converts the job to its wire representation.
func (j Job) ToStatus() models.JobStatus {
	status := models.JobStatus{
		JobID:     j.ID,
		Status:    j.Status,
		Result:    j.Result,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Unix(),
	}
	if !j.CompletedAt.IsZero() {
		status.CompletedAt = j.CompletedAt.Unix()
	}
	return status
}

// Store keeps jobs in memory, keyed by ID.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Create registers a queued job for req and returns a copy of it.
func (s *Store) Create(req models.OptimizeRequest) Job {
	job := &Job{
		ID:          uuid.NewString(),
		ProblemType: req.ProblemType,
		Constraints: req.ConstraintsJSON,
		Objectives:  req.ObjectivesJSON,
		Status:      models.StatusQueued,
		CreatedAt:   s.now(),
	}
	if req.TimeoutSeconds != nil && *req.TimeoutSeconds > 0 {
		job.Timeout = time.Duration(*req.TimeoutSeconds) * time.Second
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return *job
}

// Get returns a copy of the job with the given ID.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return *job, nil
}

// Start marks the job as running.
func (s *Store) Start(id string) error {
	return s.update(id, func(j *Job) {
		j.Status = models.StatusRunning
	})
}

// Complete records a successful result.
func (s *Store) Complete(id, result string) error {
	return s.update(id, func(j *Job) {
		j.Status = models.StatusCompleted
		j.Result = result
		j.CompletedAt = s.now()
	})
}

// Fail records a failure message.
func (s *Store) Fail(id, message string) error {
	return s.update(id, func(j *Job) {
		j.Status = models.StatusFailed
		j.Error = message
		j.CompletedAt = s.now()
	})
}

// Len reports the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Store) update(id string, apply func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	if !job.CompletedAt.IsZero() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, id, job.Status)
	}
	apply(job)
	return nil
}
