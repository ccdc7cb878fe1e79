// Package maintenance runs the periodic cleanup jobs and builds the
// statistics report.
package maintenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/logging"
	"github.com/pbaille/leaknote/internal/store"
)

// Defaults
const (
	DefaultSchedule     = "0 3 * * 0"
	DefaultHorizon      = 7 * 24 * time.Hour
	DefaultAdminDoneAge = 30 * 24 * time.Hour
	statsWindow         = 7 * 24 * time.Hour
)

// Sweeper expires pending clarifications
type Sweeper interface {
	Sweep(ctx context.Context, horizon time.Duration) (int, error)
}

// Store is the storage maintenance touches
type Store interface {
	DeleteDoneAdmin(ctx context.Context, cutoff time.Time) (int, error)
	CountRecords(ctx context.Context) (map[domain.Category]int, error)
	InboxStatsSince(ctx context.Context, since time.Time) (*store.InboxStats, error)
	Vacuum(ctx context.Context) error
}

// Config tunes the jobs
type Config struct {
	// Schedule is a five-field cron expression
	Schedule     string
	Horizon      time.Duration
	AdminDoneAge time.Duration
}

// Report is the outcome of one maintenance pass
type Report struct {
	ExpiredClarifications int
	AdminRemoved          int
}

// Stats summarizes the stored notes
type Stats struct {
	Counts map[domain.Category]int `json:"counts"`
	Week   store.InboxStats        `json:"week"`
}

// Maintainer runs maintenance passes on a cron schedule
type Maintainer struct {
	store   Store
	sweeper Sweeper
	cfg     Config
	now     func() time.Time
	logger  *zap.Logger
	cron    *cron.Cron
}

// New creates a Maintainer. The schedule is validated here.
func New(s Store, sweeper Sweeper, cfg Config, logger *zap.Logger) (*Maintainer, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	if cfg.AdminDoneAge <= 0 {
		cfg.AdminDoneAge = DefaultAdminDoneAge
	}
	logger = logging.OrNop(logger).Named("maintenance")

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
	}
	cronLog := cronLogger{logger.Sugar()}

	return &Maintainer{
		store:   s,
		sweeper: sweeper,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}, nil
}

// RunOnce expires stale clarifications, drops old completed admin tasks and
// compacts the database
func (m *Maintainer) RunOnce(ctx context.Context) (Report, error) {
	var r Report

	n, err := m.sweeper.Sweep(ctx, m.cfg.Horizon)
	if err != nil {
		return r, err
	}
	r.ExpiredClarifications = n

	n, err = m.store.DeleteDoneAdmin(ctx, m.now().Add(-m.cfg.AdminDoneAge))
	if err != nil {
		return r, err
	}
	r.AdminRemoved = n

	if err := m.store.Vacuum(ctx); err != nil {
		return r, err
	}

	m.logger.Info("maintenance complete",
		zap.Int("expired_clarifications", r.ExpiredClarifications),
		zap.Int("admin_removed", r.AdminRemoved))
	return r, nil
}

// Stats gathers record counts and the last week's routing activity
func (m *Maintainer) Stats(ctx context.Context) (*Stats, error) {
	counts, err := m.store.CountRecords(ctx)
	if err != nil {
		return nil, err
	}
	week, err := m.store.InboxStatsSince(ctx, m.now().Add(-statsWindow))
	if err != nil {
		return nil, err
	}
	return &Stats{Counts: counts, Week: *week}, nil
}

// Run schedules RunOnce and blocks until ctx is done, then waits for a
// running pass to finish
func (m *Maintainer) Run(ctx context.Context) error {
	_, err := m.cron.AddFunc(m.cfg.Schedule, func() {
		if _, err := m.RunOnce(ctx); err != nil {
			m.logger.Error("maintenance failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}

	m.cron.Start()
	m.logger.Info("maintenance scheduled", zap.String("schedule", m.cfg.Schedule))

	<-ctx.Done()
	<-m.cron.Stop().Done()
	return nil
}

// FormatStats renders stats as a chat message
func FormatStats(s *Stats) string {
	var b strings.Builder
	b.WriteString("📊 Leaknote Statistics\n\nTotal Records:\n")
	for _, c := range domain.Categories {
		fmt.Fprintf(&b, "• %s: %d\n", label(c), s.Counts[c])
	}
	b.WriteString("\nThis Week:\n")
	fmt.Fprintf(&b, "• Captured: %d\n", s.Week.Total)
	fmt.Fprintf(&b, "• Auto-filed: %d\n", s.Week.Filed)
	fmt.Fprintf(&b, "• Needed review: %d\n", s.Week.NeedsReview)
	fmt.Fprintf(&b, "• Fixed: %d\n", s.Week.Fixed)
	return b.String()
}

func label(c domain.Category) string {
	s := string(c)
	return strings.ToUpper(s[:1]) + s[1:]
}

// cronLogger sends cron's own logging to zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
