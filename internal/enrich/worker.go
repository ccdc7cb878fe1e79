// Package enrich builds memory rows for filed notes in the background.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/fetcher"
	"github.com/pbaille/leaknote/internal/logging"
	"github.com/pbaille/leaknote/internal/metrics"
)

const (
	defaultQueueSize    = 64
	defaultRelatedLimit = 5
	defaultMinScore     = 0.7
	maxLinkText         = 2000
)

// Job describes a freshly filed record
type Job struct {
	RecordID string
	Category domain.Category
	Text     string
}

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
}

// LinkFetcher returns the readable text behind a URL
type LinkFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Store persists memories
type Store interface {
	SaveMemory(ctx context.Context, m *domain.Memory) (string, error)
	FindSimilar(ctx context.Context, vector []float64, limit int, excludeRecordID string) ([]domain.SimilarMemory, error)
}

// Options tune the worker
type Options struct {
	QueueSize    int
	RelatedLimit int
	MinScore     float64
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Worker drains enrichment jobs on a single goroutine. Embedder and fetcher
// are optional; without them the memory row carries the note text only.
type Worker struct {
	jobs     chan Job
	store    Store
	embedder Embedder
	fetcher  LinkFetcher
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New creates a Worker
func New(store Store, embedder Embedder, fetcher LinkFetcher, opts Options) *Worker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.RelatedLimit <= 0 {
		opts.RelatedLimit = defaultRelatedLimit
	}
	if opts.MinScore <= 0 {
		opts.MinScore = defaultMinScore
	}
	return &Worker{
		jobs:     make(chan Job, opts.QueueSize),
		store:    store,
		embedder: embedder,
		fetcher:  fetcher,
		opts:     opts,
		logger:   logging.OrNop(opts.Logger).Named("enrich"),
		metrics:  opts.Metrics,
	}
}

// Enqueue hands a job to the worker without blocking. A full queue drops it.
func (w *Worker) Enqueue(job Job) {
	select {
	case w.jobs <- job:
	default:
		w.metrics.Enriched("dropped")
		w.logger.Warn("enrichment queue full, dropping job",
			zap.String("record_id", job.RecordID),
			zap.String("category", string(job.Category)))
	}
}

// Run processes jobs until ctx is done
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug("enrichment worker started", zap.Int("queue_size", cap(w.jobs)))
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("enrichment worker stopped")
			return nil
		case job := <-w.jobs:
			w.handle(ctx, job)
		}
	}
}

// Drain processes the jobs already queued, stopping early when ctx is done
func (w *Worker) Drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			w.handle(ctx, job)
		default:
			return
		}
	}
}

func (w *Worker) handle(ctx context.Context, job Job) {
	if err := w.Process(ctx, job); err != nil {
		w.metrics.Enriched("error")
		w.logger.Warn("enrichment failed",
			zap.String("record_id", job.RecordID),
			zap.Error(err))
		return
	}
	w.metrics.Enriched("ok")
}

// Process enriches one job synchronously
func (w *Worker) Process(ctx context.Context, job Job) error {
	m := &domain.Memory{
		RecordID: job.RecordID,
		Category: job.Category,
		Text:     job.Text,
	}

	if w.fetcher != nil {
		m.LinkText = w.linkText(ctx, job.Text)
	}

	if w.embedder != nil {
		input := job.Text
		if m.LinkText != "" {
			input += "\n\n" + m.LinkText
		}
		vec, err := w.embedder.Embed(ctx, input)
		if err != nil {
			return fmt.Errorf("embed note: %w", err)
		}
		m.Embedding = vec
		m.Model = w.embedder.Model()

		similar, err := w.store.FindSimilar(ctx, vec, w.opts.RelatedLimit, job.RecordID)
		if err != nil {
			return fmt.Errorf("find related: %w", err)
		}
		for _, s := range similar {
			if s.Score >= w.opts.MinScore {
				m.Related = append(m.Related, s.RecordID)
			}
		}
	}

	if _, err := w.store.SaveMemory(ctx, m); err != nil {
		return err
	}
	w.logger.Debug("note enriched",
		zap.String("record_id", job.RecordID),
		zap.Int("related", len(m.Related)),
		zap.Bool("link", m.LinkText != ""))
	return nil
}

// linkText fetches every link in text; failed fetches are skipped
func (w *Worker) linkText(ctx context.Context, text string) string {
	var parts []string
	for _, u := range fetcher.FindURLs(text) {
		content, err := w.fetcher.Fetch(ctx, u)
		if err != nil {
			w.logger.Debug("link fetch failed", zap.String("url", u), zap.Error(err))
			continue
		}
		if r := []rune(content); len(r) > maxLinkText {
			content = string(r[:maxLinkText])
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n\n")
}
