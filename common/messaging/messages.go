package messaging

// JetStream stream and subject names for the scrape work channel.
const (
	StreamScrapeJobs   = "SCRAPE_JOBS"
	SubjectScrapeJobs  = "scrape.jobs"
	ConsumerScrapeJobs = "scrape-workers"
)

// JobMessage is the payload published once per job onto the work channel.
type JobMessage struct {
	JobID              int64  `json:"job_id"`
	URL                string `json:"url"`
	RunGUID            string `json:"run_guid"`
	CheckHash          bool   `json:"check_hash"`
	ContextualPatterns string `json:"contextual_patterns"`
}
