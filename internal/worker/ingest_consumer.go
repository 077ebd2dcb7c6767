package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"webchat/features/job"
	"webchat/internal/middleware"
)

type IngestConsumer struct {
	ingester SiteIngester
	jobs     FailedJobSaver
	timeout  time.Duration
}

func NewIngestConsumer(i SiteIngester, j FailedJobSaver, timeout time.Duration) *IngestConsumer {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &IngestConsumer{ingester: i, jobs: j, timeout: timeout}
}

// HandleMessage never asks NSQ to requeue. Failed tasks are parked in
// failed_jobs and replayed on demand.
func (c *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task IngestTask
	err := json.Unmarshal(m.Body, &task)

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", err)
		return nil
	}
	if task.URL == "" {
		slog.ErrorContext(ctx, "missing url, dropping", "site_id", task.SiteID)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	slog.InfoContext(ctx, "ingest task received", "url", task.URL, "site_id", task.SiteID, "attempt", m.Attempts)

	if err := c.ingester.IngestSite(ctx, task.SiteID, task.URL); err != nil {
		slog.ErrorContext(ctx, "ingest task failed", "url", task.URL, "error", err)
		c.park(ctx, task, m.Body, err)
		return nil
	}
	return nil
}

func (c *IngestConsumer) park(ctx context.Context, task IngestTask, body []byte, cause error) {
	if c.jobs == nil {
		return
	}
	failed := &job.Job{
		SiteID:  task.SiteID,
		Handler: job.HandlerIngestSite,
		Payload: json.RawMessage(body),
		Error:   cause.Error(),
	}
	// The task context may already be past its deadline.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.jobs.Save(saveCtx, failed); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "error", err)
		return
	}
	slog.InfoContext(ctx, "saved failed job for retry", "job_id", failed.ID)
}
