// Package query answers the read-only ?commands sent in chat.
package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/logging"
	"github.com/pbaille/leaknote/internal/metrics"
	"github.com/pbaille/leaknote/internal/responder"
)

const (
	defaultLimit = 20
	searchLimit  = 10
)

// Kind names a query command
type Kind string

const (
	Recall   Kind = "recall"
	Search   Kind = "search"
	People   Kind = "people"
	Projects Kind = "projects"
	Ideas    Kind = "ideas"
	Admin    Kind = "admin"
)

// Command is a parsed query. Arg is lowercased.
type Command struct {
	Kind Kind
	Arg  string
}

var patterns = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{Recall, regexp.MustCompile(`(?is)^\?recall\s+(.+)$`)},
	{Search, regexp.MustCompile(`(?is)^\?search\s+(.+)$`)},
	{People, regexp.MustCompile(`(?is)^\?people\s+(.+)$`)},
	{Projects, regexp.MustCompile(`(?i)^\?projects(?:\s+(active|waiting|blocked|someday|done))?$`)},
	{Ideas, regexp.MustCompile(`(?i)^\?ideas$`)},
	{Admin, regexp.MustCompile(`(?i)^\?admin(?:\s+(due))?$`)},
}

// IsQuery reports whether text is meant as a query, known or not
func IsQuery(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "?")
}

// Parse reads a query command
func Parse(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			return Command{Kind: p.kind, Arg: strings.ToLower(strings.TrimSpace(m[1]))}, true
		}
	}
	return Command{}, false
}

// Store is what queries read
type Store interface {
	SearchRecords(ctx context.Context, query string, cats []domain.Category, limit int) ([]domain.Entry, error)
	ListProjects(ctx context.Context, status string, limit int) ([]domain.Entry, error)
	ListIdeas(ctx context.Context, limit int) ([]domain.Entry, error)
	ListAdmin(ctx context.Context, dueOnly bool, limit int) ([]domain.Entry, error)
}

// Handler answers query commands
type Handler struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Handler
func New(s Store, logger *zap.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		store:   s,
		logger:  logging.OrNop(logger).Named("query"),
		metrics: m,
	}
}

// Answer runs cmd and renders the reply
func (h *Handler) Answer(ctx context.Context, cmd Command) (string, error) {
	var (
		entries []domain.Entry
		err     error
		reply   func([]domain.Entry) string
	)

	switch cmd.Kind {
	case Recall:
		entries, err = h.store.SearchRecords(ctx, cmd.Arg, []domain.Category{domain.Decisions, domain.HowTos, domain.Snippets}, searchLimit)
		reply = func(e []domain.Entry) string { return responder.SearchResults(cmd.Arg, e) }
	case Search:
		entries, err = h.store.SearchRecords(ctx, cmd.Arg, domain.Categories, searchLimit)
		reply = func(e []domain.Entry) string { return responder.SearchResults(cmd.Arg, e) }
	case People:
		entries, err = h.store.SearchRecords(ctx, cmd.Arg, []domain.Category{domain.People}, searchLimit)
		reply = func(e []domain.Entry) string { return responder.SearchResults(cmd.Arg, e) }
	case Projects:
		entries, err = h.store.ListProjects(ctx, cmd.Arg, defaultLimit)
		reply = responder.ProjectList
	case Ideas:
		entries, err = h.store.ListIdeas(ctx, defaultLimit)
		reply = responder.IdeaList
	case Admin:
		entries, err = h.store.ListAdmin(ctx, cmd.Arg == "due", defaultLimit)
		reply = responder.AdminList
	default:
		return "", fmt.Errorf("query: unknown command %q", cmd.Kind)
	}
	if err != nil {
		return "", fmt.Errorf("query %s: %w", cmd.Kind, err)
	}

	h.metrics.Queried(string(cmd.Kind))
	h.logger.Debug("query answered",
		zap.String("command", string(cmd.Kind)),
		zap.String("arg", cmd.Arg),
		zap.Int("results", len(entries)))
	return reply(entries), nil
}
