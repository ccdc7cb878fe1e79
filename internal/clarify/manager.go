// Package clarify tracks notes waiting for the user to pick a category.
package clarify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/logging"
	"github.com/pbaille/leaknote/internal/metrics"
	"github.com/pbaille/leaknote/internal/reference"
	"github.com/pbaille/leaknote/internal/router"
	"github.com/pbaille/leaknote/internal/store"
)

// DefaultHorizon is how long a clarification stays answerable
const DefaultHorizon = 7 * 24 * time.Hour

// Outcome is what a reply did to a pending clarification
type Outcome int

const (
	// NotPending means the reply target has no open clarification
	NotPending Outcome = iota
	// Skipped means the user dropped the note
	Skipped
	// Rerouted means the note went back through the router
	Rerouted
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Rerouted:
		return "rerouted"
	default:
		return "not_pending"
	}
}

// Resolution is the result of Resolve. Result and Text are set when rerouted.
type Resolution struct {
	Outcome Outcome
	Result  router.Result
	// Text is what was routed
	Text string
}

// Store holds pending clarifications
type Store interface {
	InsertPending(ctx context.Context, p *domain.PendingClarification) (string, error)
	GetPendingByReplyTarget(ctx context.Context, chatID, replyTargetID string) (*domain.PendingClarification, error)
	DeletePending(ctx context.Context, id string) (bool, error)
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Router routes a note
type Router interface {
	Route(ctx context.Context, note router.Note) (router.Result, error)
}

// Manager opens and resolves clarifications
type Manager struct {
	store   Store
	router  Router
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Manager
func New(s Store, r Router, logger *zap.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		store:   s,
		router:  r,
		now:     time.Now,
		logger:  logging.OrNop(logger).Named("clarify"),
		metrics: m,
	}
}

// Open records that the prompt sent as replyTargetID is waiting on res
func (m *Manager) Open(ctx context.Context, res router.Result, replyTargetID, chatID string) error {
	if res.Status != domain.StatusNeedsReview {
		return fmt.Errorf("open clarification: entry %s is %s", res.LogID, res.Status)
	}
	_, err := m.store.InsertPending(ctx, &domain.PendingClarification{
		InboxLogID:        res.LogID,
		ReplyTargetID:     replyTargetID,
		ChatID:            chatID,
		SuggestedCategory: res.Category,
	})
	if err != nil {
		return fmt.Errorf("open clarification: %w", err)
	}
	m.metrics.Clarified("opened")
	m.logger.Debug("clarification opened",
		zap.String("log_id", res.LogID),
		zap.String("reply_target", replyTargetID))
	return nil
}

// Resolve applies the user's reply to the clarification prompt replyTargetID.
// The pending row is deleted whatever the routing outcome.
func (m *Manager) Resolve(ctx context.Context, replyTargetID, chatID, reply string) (Resolution, error) {
	p, err := m.store.GetPendingByReplyTarget(ctx, chatID, replyTargetID)
	if errors.Is(err, store.ErrNotFound) {
		return Resolution{Outcome: NotPending}, nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve clarification: %w", err)
	}

	logger := m.logger.With(zap.String("log_id", p.InboxLogID))

	if strings.EqualFold(strings.TrimSpace(reply), "skip") {
		if _, err := m.store.DeletePending(ctx, p.ID); err != nil {
			return Resolution{}, fmt.Errorf("resolve clarification: %w", err)
		}
		m.metrics.Clarified(Skipped.String())
		logger.Info("clarification skipped")
		return Resolution{Outcome: Skipped}, nil
	}

	text := reply
	if c, ok := chosenCategory(reply); ok {
		text = reference.Prefix(c) + " " + p.RawText
	}

	res, routeErr := m.router.Route(ctx, router.Note{Text: text, MessageID: p.MessageID, ChatID: p.ChatID})

	if _, err := m.store.DeletePending(ctx, p.ID); err != nil {
		logger.Warn("delete pending clarification", zap.Error(err))
	}
	if routeErr != nil {
		return Resolution{}, fmt.Errorf("resolve clarification: %w", routeErr)
	}

	m.metrics.Clarified(Rerouted.String())
	logger.Info("clarification resolved",
		zap.String("status", string(res.Status)),
		zap.String("category", string(res.Category)))
	return Resolution{Outcome: Rerouted, Result: res, Text: text}, nil
}

// Sweep deletes clarifications older than horizon and returns how many
func (m *Manager) Sweep(ctx context.Context, horizon time.Duration) (int, error) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	n, err := m.store.DeletePendingBefore(ctx, m.now().Add(-horizon))
	if err != nil {
		return 0, fmt.Errorf("sweep clarifications: %w", err)
	}
	m.metrics.Swept(n)
	if n > 0 {
		m.logger.Info("expired clarifications removed", zap.Int("count", n))
	}
	return n, nil
}

// chosenCategory reads a reply like "idea", "Idea:" or "idea: whatever".
// Only singular tokens count.
func chosenCategory(reply string) (domain.Category, bool) {
	r := strings.ToLower(strings.TrimSpace(reply))
	for _, c := range domain.Categories {
		tok := c.Token()
		if r == tok || strings.HasPrefix(r, tok+":") {
			return c, true
		}
	}
	return "", false
}
