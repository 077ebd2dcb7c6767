package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"webchat/internal/apperr"
	"webchat/internal/config"
)

const publishTimeout = 5 * time.Second

var ErrTimeout = errors.New("timeout waiting for NSQ publish")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo   Repository
	pub    EventPublisher
	logger *slog.Logger
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

func (s *Service) Save(ctx context.Context, j *Job) error {
	return s.repo.Save(ctx, j)
}

// Retry republishes the stored payload on the ingest topic and drops the record.
func (s *Service) Retry(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: job %s has an unreadable payload: %v", apperr.ErrInvalidInput, id, err)
	}
	if payload.URL == "" {
		return fmt.Errorf("%w: job %s has no url", apperr.ErrInvalidInput, id)
	}

	if s.pub == nil {
		return fmt.Errorf("%w: no task publisher configured", apperr.ErrBackendUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicIngestSite, job.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}

	s.logger.InfoContext(ctx, "job requeued", "id", id, "url", payload.URL)
	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
