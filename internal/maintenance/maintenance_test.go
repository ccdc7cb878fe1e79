package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pbaille/leaknote/internal/clarify"
	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/router"
	"github.com/pbaille/leaknote/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSweeper struct {
	n       int
	horizon time.Duration
}

func (f *fakeSweeper) Sweep(ctx context.Context, horizon time.Duration) (int, error) {
	f.horizon = horizon
	return f.n, nil
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "maint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := New(newStore(t), &fakeSweeper{}, Config{Schedule: "every tuesday"}, nil)
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.InsertRecord(ctx, &domain.AdminTask{Name: "done", Status: domain.AdminDone})
	require.NoError(t, err)
	_, err = s.InsertRecord(ctx, &domain.AdminTask{Name: "open"})
	require.NoError(t, err)

	sw := &fakeSweeper{n: 2}
	m, err := New(s, sw, Config{}, nil)
	require.NoError(t, err)
	m.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }

	r, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{ExpiredClarifications: 2, AdminRemoved: 1}, r)
	assert.Equal(t, DefaultHorizon, sw.horizon)
}

func TestRunOnce_WithClarifications(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	r := router.New(s, nil)
	mgr := clarify.New(s, r, nil, nil)

	res, err := s.LogInbox(ctx, &domain.InboxLogEntry{RawText: "x", Status: domain.StatusNeedsReview, MessageID: "m", ChatID: "c"})
	require.NoError(t, err)
	require.NoError(t, mgr.Open(ctx, router.Result{LogID: res, Status: domain.StatusNeedsReview}, "p1", "c"))

	m, err := New(s, mgr, Config{Horizon: time.Nanosecond}, nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	rep, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ExpiredClarifications)
}

func TestStats(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	r := router.New(s, nil)

	_, err := r.Route(ctx, router.Note{Text: "idea: one", MessageID: "1", ChatID: "c"})
	require.NoError(t, err)
	_, err = r.Route(ctx, router.Note{Text: "person: Ana", MessageID: "2", ChatID: "c"})
	require.NoError(t, err)

	m, err := New(s, &fakeSweeper{}, Config{}, nil)
	require.NoError(t, err)

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Counts[domain.Ideas])
	assert.Equal(t, 1, st.Counts[domain.People])
	assert.Equal(t, 2, st.Week.Total)
	assert.Equal(t, 2, st.Week.Filed)

	text := FormatStats(st)
	assert.Contains(t, text, "• Ideas: 1")
	assert.Contains(t, text, "• Howtos: 0")
	assert.Contains(t, text, "• Captured: 2")
	assert.Contains(t, text, "• Auto-filed: 2")
}

func TestRun_StopsWithContext(t *testing.T) {
	m, err := New(newStore(t), &fakeSweeper{}, Config{Schedule: "* * * * *"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
