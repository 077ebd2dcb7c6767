package job

import (
	"encoding/json"
	"time"
)

// HandlerIngestSite names the worker stage that produced a failed job.
const HandlerIngestSite = "ingest_site"

// Job is an ingest task that failed in the worker and can be replayed.
// URL is read from the payload so operators see what failed without decoding it.
type Job struct {
	ID        string          `json:"id"`
	SiteID    string          `json:"site_id,omitempty"`
	URL       string          `json:"url"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}
