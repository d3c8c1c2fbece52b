package models

import "time"

// RunState holds the persisted timestamp of the last daily run.
type RunState struct {
	LastRunAt time.Time
	UpdatedAt time.Time
}
