package models

import "time"

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusStarting RunStatus = "starting"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
)

// Run is one end-to-end crawl execution. Rows are append-only history; the
// newest row is the active run for the database.
type Run struct {
	RunGUID   string    `json:"run_guid"`
	Status    RunStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
