package worker

import (
	"context"

	"webchat/features/job"
)

// IngestTask is the body of an ingest.site message.
type IngestTask struct {
	URL           string `json:"url"`
	SiteID        string `json:"site_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// SiteIngester scrapes and indexes one URL, recording the outcome on the site.
type SiteIngester interface {
	IngestSite(ctx context.Context, siteID, url string) error
}

type FailedJobSaver interface {
	Save(ctx context.Context, j *job.Job) error
}
