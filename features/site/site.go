package site

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"webchat/internal/adapter/scraper"
	"webchat/internal/apperr"
	"webchat/internal/collection"
	"webchat/internal/config"
	"webchat/internal/ingest"
	"webchat/internal/middleware"
	"webchat/internal/worker"
)

const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Site is the registry record of one ingested URL.
type Site struct {
	ID             string     `json:"id"`
	URL            string     `json:"url"`
	CollectionName string     `json:"collection_name"`
	Title          string     `json:"title"`
	NumChunks      int        `json:"num_chunks"`
	TokenCount     int        `json:"token_count"`
	Status         string     `json:"status"`
	Error          string     `json:"error,omitempty"`
	LastIngestedAt *time.Time `json:"last_ingested_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Repository interface {
	// Upsert inserts or revives the row for s.URL and fills in ID and timestamps.
	Upsert(ctx context.Context, s *Site) error
	Get(ctx context.Context, id string) (*Site, error)
	GetByURL(ctx context.Context, url string) (*Site, error)
	List(ctx context.Context) ([]Site, error)
	UpdateStatus(ctx context.Context, id, status, errMsg string) error
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type Scraper interface {
	Scrape(ctx context.Context, url string) (*scraper.Page, error)
}

type Ingester interface {
	Ingest(ctx context.Context, url, text string) (ingest.Result, error)
}

type CollectionDeleter interface {
	DeleteCollection(ctx context.Context, id string) error
}

// SessionInvalidator drops chat state bound to a URL.
type SessionInvalidator interface {
	Invalidate(ctx context.Context, url string)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// IngestResult is the synchronous outcome of POST /ingest.
type IngestResult struct {
	URL            string `json:"url"`
	CollectionName string `json:"collection_name"`
	NumChunks      int    `json:"num_chunks"`
}

type Service struct {
	repo        Repository
	scraper     Scraper
	pipeline    Ingester
	store       CollectionDeleter
	invalidator SessionInvalidator
	pub         EventPublisher
}

func NewService(repo Repository, sc Scraper, p Ingester, store CollectionDeleter, inv SessionInvalidator, pub EventPublisher) *Service {
	return &Service{repo: repo, scraper: sc, pipeline: p, store: store, invalidator: inv, pub: pub}
}

// Validate normalizes raw and rejects anything that is not an absolute http(s) URL.
func Validate(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: url is required", apperr.ErrInvalidInput)
	}
	normalized := collection.Normalize(raw)
	u, err := url.Parse(normalized)
	if err != nil || u.Hostname() == "" || strings.HasSuffix(u.Host, ":") {
		return "", fmt.Errorf("%w: malformed url %q", apperr.ErrInvalidInput, raw)
	}
	return normalized, nil
}

// Ingest scrapes and indexes raw synchronously, then drops any chat session bound to it.
func (s *Service) Ingest(ctx context.Context, raw string) (*IngestResult, error) {
	normalized, err := Validate(raw)
	if err != nil {
		return nil, err
	}

	rec := &Site{URL: normalized, CollectionName: collection.Name(normalized), Status: StatusInProgress}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("record site: %w", err)
	}

	res, err := s.run(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &IngestResult{URL: normalized, CollectionName: res.CollectionName, NumChunks: res.NumChunks}, nil
}

// IngestSite is the worker entry point for a queued task.
func (s *Service) IngestSite(ctx context.Context, siteID, raw string) error {
	normalized, err := Validate(raw)
	if err != nil {
		return err
	}

	var rec *Site
	if siteID != "" {
		rec, err = s.repo.Get(ctx, siteID)
		if errors.Is(err, sql.ErrNoRows) {
			rec, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("load site: %w", err)
		}
	}
	if rec == nil {
		rec = &Site{URL: normalized, CollectionName: collection.Name(normalized), Status: StatusInProgress}
		if err := s.repo.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("record site: %w", err)
		}
	} else if err := s.repo.UpdateStatus(ctx, rec.ID, StatusInProgress, ""); err != nil {
		slog.WarnContext(ctx, "failed to mark site in progress", "id", rec.ID, "error", err)
	}

	_, err = s.run(ctx, rec)
	return err
}

func (s *Service) run(ctx context.Context, rec *Site) (ingest.Result, error) {
	page, err := s.scraper.Scrape(ctx, rec.URL)
	if err != nil {
		s.fail(ctx, rec, err)
		return ingest.Result{}, err
	}

	res, err := s.pipeline.Ingest(ctx, rec.URL, page.Text)
	if err != nil {
		s.fail(ctx, rec, err)
		return ingest.Result{}, err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, rec.URL)
	}

	now := time.Now().UTC()
	rec.Title = page.Title
	rec.CollectionName = res.CollectionName
	rec.NumChunks = res.NumChunks
	rec.TokenCount = res.TextSize
	rec.Status = StatusCompleted
	rec.Error = ""
	rec.LastIngestedAt = &now
	if err := s.repo.Upsert(ctx, rec); err != nil {
		slog.WarnContext(ctx, "failed to record ingested site", "url", rec.URL, "error", err)
	}
	return res, nil
}

func (s *Service) fail(ctx context.Context, rec *Site, cause error) {
	if rec.ID == "" {
		return
	}
	if err := s.repo.UpdateStatus(ctx, rec.ID, StatusFailed, cause.Error()); err != nil {
		slog.WarnContext(ctx, "failed to mark site failed", "id", rec.ID, "error", err)
	}
}

// Enqueue records raw as queued and hands it to the ingest worker.
func (s *Service) Enqueue(ctx context.Context, raw string) (*Site, error) {
	normalized, err := Validate(raw)
	if err != nil {
		return nil, err
	}

	rec := &Site{URL: normalized, CollectionName: collection.Name(normalized), Status: StatusQueued}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("record site: %w", err)
	}
	if err := s.publish(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) publish(ctx context.Context, rec *Site) error {
	if s.pub == nil {
		return fmt.Errorf("async ingestion is not configured")
	}
	payload, _ := json.Marshal(worker.IngestTask{
		URL:           rec.URL,
		SiteID:        rec.ID,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicIngestSite, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest task", "error", err, "url", rec.URL)
		return err
	}
	slog.InfoContext(ctx, "published ingest task", "url", rec.URL, "id", rec.ID)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Site, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Site, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Delete drops the collection and the chat session, then soft-deletes the record.
func (s *Service) Delete(ctx context.Context, id string) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCollection(ctx, rec.CollectionName); err != nil {
		return err
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, rec.URL)
	}
	return s.repo.SoftDelete(ctx, id)
}

// Resync queues a fresh ingestion of an existing site.
func (s *Service) Resync(ctx context.Context, id string) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusQueued, ""); err != nil {
		return err
	}
	return s.publish(ctx, rec)
}
