// Package fix moves an already routed note to the category the user names.
package fix

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/logging"
	"github.com/pbaille/leaknote/internal/metrics"
	"github.com/pbaille/leaknote/internal/reference"
	"github.com/pbaille/leaknote/internal/store"
)

// User-facing failure messages
const (
	MsgNotFound = "Couldn't find the original message to fix"
	MsgConflict = "This message changed while fixing it, try again"
)

var commandPattern = regexp.MustCompile(`^fix:\s*(\w+)`)

// ParseCommand reads "fix: <category>" with a singular or plural category
// name. ok is false for anything else, including unknown categories.
func ParseCommand(text string) (domain.Category, bool) {
	m := commandPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(text)))
	if m == nil {
		return "", false
	}
	return domain.ParseCategory(m[1])
}

// IsCommand reports whether text starts like a fix command, valid or not
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "fix:")
}

// Result describes a fix attempt. Message is set on failure.
type Result struct {
	Success     bool
	Message     string
	OldCategory domain.Category
	NewCategory domain.Category
	Name        string
	// Unchanged is set when the note was already in the requested category
	Unchanged bool
}

// Store is what the handler reads and writes
type Store interface {
	GetInboxLog(ctx context.Context, id string) (*domain.InboxLogEntry, error)
	GetInboxLogByMessage(ctx context.Context, chatID, messageID string) (*domain.InboxLogEntry, error)
	InsertRecord(ctx context.Context, r domain.Record) (string, error)
	UpdateInboxLog(ctx context.Context, id string, version int, dest domain.Category, recordID string, status domain.Status) error
	DeleteRecord(ctx context.Context, c domain.Category, id string) (bool, error)
	DeletePendingByLog(ctx context.Context, inboxLogID string) (bool, error)
}

// Classifier is consulted for tags only
type Classifier interface {
	Classify(ctx context.Context, text string) (*domain.Classification, error)
}

// Handler performs fixes
type Handler struct {
	store      Store
	classifier Classifier
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// New creates a Handler. classifier may be nil.
func New(s Store, classifier Classifier, logger *zap.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		store:      s,
		classifier: classifier,
		logger:     logging.OrNop(logger).Named("fix"),
		metrics:    m,
	}
}

// FixMessage fixes the entry logged for a transport message
func (h *Handler) FixMessage(ctx context.Context, chatID, messageID string, category domain.Category) (Result, error) {
	e, err := h.store.GetInboxLogByMessage(ctx, chatID, messageID)
	if errors.Is(err, store.ErrNotFound) {
		h.metrics.Fixed("not_found")
		return Result{Message: MsgNotFound}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("fix message: %w", err)
	}
	return h.fix(ctx, e, category)
}

// Fix moves log entry logID to category. The new record is written before
// the log entry is switched over, and the old record is removed last, so a
// failure part way never loses the note.
func (h *Handler) Fix(ctx context.Context, logID string, category domain.Category) (Result, error) {
	e, err := h.store.GetInboxLog(ctx, logID)
	if errors.Is(err, store.ErrNotFound) {
		h.metrics.Fixed("not_found")
		return Result{Message: MsgNotFound}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("fix: %w", err)
	}
	return h.fix(ctx, e, category)
}

func (h *Handler) fix(ctx context.Context, e *domain.InboxLogEntry, category domain.Category) (Result, error) {
	if !category.Valid() {
		return Result{}, fmt.Errorf("fix: unknown category %q", category)
	}
	logger := h.logger.With(zap.String("log_id", e.ID))

	// A note still in review only carries the classifier's guess
	from := e.Destination
	if e.Status == domain.StatusNeedsReview {
		from = ""
	}

	if from == category {
		h.metrics.Fixed("unchanged")
		return Result{
			Message:     "Already filed as " + domain.Display(category),
			OldCategory: from,
			NewCategory: category,
			Unchanged:   true,
		}, nil
	}

	rec := reference.Extract(category, reference.StripPrefix(e.RawText))
	if !category.IsReference() && h.classifier != nil {
		if cls, err := h.classifier.Classify(ctx, e.RawText); err != nil {
			logger.Debug("tag lookup failed", zap.Error(err))
		} else if len(cls.Tags) > 0 {
			domain.SetTags(rec, cls.Tags)
		}
	}

	newID, err := h.store.InsertRecord(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("fix: %w", err)
	}

	err = h.store.UpdateInboxLog(ctx, e.ID, e.Version, category, newID, domain.StatusFixed)
	if errors.Is(err, store.ErrConflict) {
		if _, derr := h.store.DeleteRecord(ctx, category, newID); derr != nil {
			logger.Error("remove record after conflict", zap.String("record_id", newID), zap.Error(derr))
		}
		h.metrics.Fixed("conflict")
		logger.Info("fix lost a race", zap.Int("version", e.Version))
		return Result{Message: MsgConflict}, nil
	}
	if err != nil {
		if _, derr := h.store.DeleteRecord(ctx, category, newID); derr != nil {
			logger.Error("remove record after failed update", zap.String("record_id", newID), zap.Error(derr))
		}
		return Result{}, fmt.Errorf("fix: %w", err)
	}

	// The note is settled; an open prompt for it must not re-file it
	if ok, err := h.store.DeletePendingByLog(ctx, e.ID); err != nil {
		logger.Error("remove pending clarification", zap.Error(err))
	} else if ok {
		logger.Debug("pending clarification closed by fix")
	}

	if e.Destination != "" && e.RecordID != "" {
		if _, err := h.store.DeleteRecord(ctx, e.Destination, e.RecordID); err != nil {
			// The entry already points at the new record; the old row is orphaned
			logger.Error("remove old record",
				zap.String("category", string(e.Destination)),
				zap.String("record_id", e.RecordID),
				zap.Error(err))
		}
	}

	name := rec.DisplayName()
	if name == "" {
		name = truncate(e.RawText, 50)
	}

	h.metrics.Fixed("ok")
	logger.Info("note moved",
		zap.String("from", string(from)),
		zap.String("to", string(category)),
		zap.String("record_id", newID))
	return Result{
		Success:     true,
		OldCategory: from,
		NewCategory: category,
		Name:        name,
	}, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
