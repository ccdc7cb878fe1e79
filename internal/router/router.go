// Package router decides where an inbound note is filed.
//
// An explicit prefix always wins. Otherwise the classifier is consulted and
// its answer is only trusted above a per-category confidence threshold; below
// it, or when it names a category that does not exist, the note is logged as
// needing review and nothing is filed.
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/enrich"
	"github.com/pbaille/leaknote/internal/logging"
	"github.com/pbaille/leaknote/internal/metrics"
	"github.com/pbaille/leaknote/internal/reference"
)

// DefaultThreshold applies to categories without an override
const DefaultThreshold = 0.6

// Note is one inbound message
type Note struct {
	Text      string
	MessageID string
	ChatID    string
}

// Result is where a note ended up
type Result struct {
	LogID    string
	Category domain.Category // destination, or the suggestion when needs_review
	RecordID string
	// Confidence is nil when classification failed
	Confidence *float64
	Status     domain.Status
}

// Thresholds holds the minimum confidence needed to file per category
type Thresholds struct {
	Default     float64
	PerCategory map[domain.Category]float64
}

// DefaultThresholds returns the stock thresholds: ideas are filed more eagerly
func DefaultThresholds() Thresholds {
	return Thresholds{
		Default:     DefaultThreshold,
		PerCategory: map[domain.Category]float64{domain.Ideas: 0.5},
	}
}

// For returns the threshold that applies to c
func (t Thresholds) For(c domain.Category) float64 {
	if v, ok := t.PerCategory[c]; ok {
		return v
	}
	return t.Default
}

// Classifier produces a classification for raw text
type Classifier interface {
	Classify(ctx context.Context, text string) (*domain.Classification, error)
}

// Store is the storage the router writes to
type Store interface {
	InsertRecord(ctx context.Context, r domain.Record) (string, error)
	LogInbox(ctx context.Context, e *domain.InboxLogEntry) (string, error)
}

// Enricher receives filed records for background enrichment
type Enricher interface {
	Enqueue(job enrich.Job)
}

// Router files notes
type Router struct {
	store      Store
	classifier Classifier
	thresholds Thresholds
	enricher   Enricher
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// Option configures a Router
type Option func(*Router)

// WithThresholds overrides the stock thresholds
func WithThresholds(t Thresholds) Option {
	return func(r *Router) { r.thresholds = t }
}

// WithEnricher sets the enrichment hook
func WithEnricher(e Enricher) Option {
	return func(r *Router) { r.enricher = e }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.logger = logging.OrNop(l).Named("router") }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// New creates a Router
func New(store Store, classifier Classifier, opts ...Option) *Router {
	r := &Router{
		store:      store,
		classifier: classifier,
		thresholds: DefaultThresholds(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route files one note and logs the outcome. Errors are storage failures
// only; classification problems end in a needs_review result.
func (r *Router) Route(ctx context.Context, note Note) (Result, error) {
	logger := r.logger.With(
		zap.String("chat_id", note.ChatID),
		zap.String("message_id", note.MessageID))

	if m, ok := reference.Parse(note.Text); ok {
		confidence := m.Confidence
		res, err := r.file(ctx, note, m.Record, &confidence)
		if err != nil {
			return Result{}, err
		}
		r.metrics.Routed("prefix", string(res.Status))
		logger.Info("filed by prefix",
			zap.String("category", string(res.Category)),
			zap.String("record_id", res.RecordID))
		return res, nil
	}

	cls, err := r.classifier.Classify(ctx, note.Text)
	if err != nil {
		logger.Warn("classification failed", zap.Error(err), zap.String("text", logging.Preview(note.Text)))
		return r.review(ctx, note, "", nil, "classifier_error")
	}

	category := domain.Category(cls.Category)
	confidence := cls.Confidence

	if confidence < r.thresholds.For(category) {
		suggestion := category
		if !suggestion.Valid() {
			suggestion = ""
		}
		logger.Info("low confidence",
			zap.String("category", cls.Category),
			zap.Float64("confidence", confidence))
		return r.review(ctx, note, suggestion, &confidence, "classifier")
	}

	rec, err := domain.RecordFromFields(category, cls.Extracted, cls.Tags)
	if err != nil {
		logger.Warn("unknown category from classifier",
			zap.String("category", cls.Category),
			zap.Float64("confidence", confidence))
		return r.review(ctx, note, "", &confidence, "classifier")
	}

	res, err := r.file(ctx, note, rec, &confidence)
	if err != nil {
		return Result{}, err
	}
	r.metrics.Routed("classifier", string(res.Status))
	logger.Info("filed by classifier",
		zap.String("category", string(res.Category)),
		zap.Float64("confidence", confidence),
		zap.String("record_id", res.RecordID))
	return res, nil
}

// file inserts rec, logs the entry as filed and hands it to enrichment
func (r *Router) file(ctx context.Context, note Note, rec domain.Record, confidence *float64) (Result, error) {
	recordID, err := r.store.InsertRecord(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("route note: %w", err)
	}

	logID, err := r.store.LogInbox(ctx, &domain.InboxLogEntry{
		RawText:     note.Text,
		Destination: rec.Category(),
		RecordID:    recordID,
		Confidence:  confidence,
		Status:      domain.StatusFiled,
		MessageID:   note.MessageID,
		ChatID:      note.ChatID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("route note: %w", err)
	}

	if r.enricher != nil {
		r.enricher.Enqueue(enrich.Job{RecordID: recordID, Category: rec.Category(), Text: note.Text})
	}

	return Result{
		LogID:      logID,
		Category:   rec.Category(),
		RecordID:   recordID,
		Confidence: confidence,
		Status:     domain.StatusFiled,
	}, nil
}

// review logs the note as needing review without filing anything
func (r *Router) review(ctx context.Context, note Note, suggestion domain.Category, confidence *float64, source string) (Result, error) {
	logID, err := r.store.LogInbox(ctx, &domain.InboxLogEntry{
		RawText:     note.Text,
		Destination: suggestion,
		Confidence:  confidence,
		Status:      domain.StatusNeedsReview,
		MessageID:   note.MessageID,
		ChatID:      note.ChatID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("route note: %w", err)
	}
	r.metrics.Routed(source, string(domain.StatusNeedsReview))
	return Result{
		LogID:      logID,
		Category:   suggestion,
		Confidence: confidence,
		Status:     domain.StatusNeedsReview,
	}, nil
}
