package schedule

import (
	"context"
	"time"
)

// RunFunc performs one job run and returns a one-line summary for the run log.
type RunFunc func(ctx context.Context) (string, error)

// Job is a named unit of work. An empty Pattern registers the job for
// manual runs only.
type Job struct {
	Name    string
	Pattern string
	// Timeout bounds one run; zero means no limit.
	Timeout time.Duration
	Run     RunFunc
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name    string    `json:"name"`
	Pattern string    `json:"pattern,omitempty"`
	Enabled bool      `json:"enabled"`
	Next    time.Time `json:"next,omitzero"`
}
