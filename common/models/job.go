package models

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// JobStatus is the state of one unit of scrape work. Transitions are
// monotonic along pending -> published -> processing -> complete|failed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusPublished  JobStatus = "published"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
)

// Job is a row in the to-process catalog (urls_to_process).
type Job struct {
	ID                 int64              `json:"id"`
	RunGUID            string             `json:"run_guid"`
	URL                string             `json:"url"`
	Status             JobStatus          `json:"status"`
	Source             string             `json:"source"`
	WorkerID           pgtype.Text        `json:"worker_id"`
	CheckHash          bool               `json:"check_hash"`
	ContextualPatterns pgtype.Text        `json:"contextual_patterns"`
	ProcessedAt        pgtype.Timestamptz `json:"processed_at"`
	ErrorMessage       pgtype.Text        `json:"error_message"`
	CreatedAt          time.Time          `json:"created_at"`
}

// NewJob is the insert shape for jobs discovered by workers or seeded by the
// queue preparer.
type NewJob struct {
	RunGUID            string
	URL                string
	Source             string
	CheckHash          bool
	ContextualPatterns string
}
