package schedule

import "errors"

// Trigger names what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerWebhook  Trigger = "webhook"
)

var (
	// ErrBusy is returned when another run holds the run lock.
	ErrBusy = errors.New("another run is in progress")
	// ErrUnknownJob is returned for a job name that was never registered.
	ErrUnknownJob = errors.New("unknown job")
)
