package clarify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/router"
	"github.com/pbaille/leaknote/internal/store"
)

type fakeClassifier struct {
	result *domain.Classification
	err    error
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (*domain.Classification, error) {
	return f.result, f.err
}

type env struct {
	store   *store.Store
	router  *router.Router
	manager *Manager
	cls     *fakeClassifier
}

func setup(t *testing.T) *env {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "clarify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cls := &fakeClassifier{result: &domain.Classification{Category: "ideas", Confidence: 0.2}}
	r := router.New(s, cls)
	return &env{store: s, router: r, manager: New(s, r, nil, nil), cls: cls}
}

// openFor routes an ambiguous note and opens a clarification on prompt "bot-1"
func (e *env) openFor(t *testing.T, text string) router.Result {
	t.Helper()
	ctx := context.Background()
	res, err := e.router.Route(ctx, router.Note{Text: text, MessageID: "m1", ChatID: "c1"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusNeedsReview, res.Status)
	require.NoError(t, e.manager.Open(ctx, res, "bot-1", "c1"))
	return res
}

func TestResolve_NotPending(t *testing.T) {
	e := setup(t)
	res, err := e.manager.Resolve(context.Background(), "nothing", "c1", "idea")
	require.NoError(t, err)
	assert.Equal(t, NotPending, res.Outcome)
}

func TestResolve_Skip(t *testing.T) {
	for _, reply := range []string{"skip", "  SKIP  ", "Skip"} {
		e := setup(t)
		opened := e.openFor(t, "vague thought")
		ctx := context.Background()

		res, err := e.manager.Resolve(ctx, "bot-1", "c1", reply)
		require.NoError(t, err)
		assert.Equal(t, Skipped, res.Outcome, reply)

		_, err = e.store.GetPendingByReplyTarget(ctx, "c1", "bot-1")
		assert.ErrorIs(t, err, store.ErrNotFound)

		entry, err := e.store.GetInboxLog(ctx, opened.LogID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusNeedsReview, entry.Status)

		counts, err := e.store.CountRecords(ctx)
		require.NoError(t, err)
		for _, n := range counts {
			assert.Zero(t, n)
		}
	}
}

func TestResolve_CategoryReply(t *testing.T) {
	for _, reply := range []string{"person", "Person:", "person: it's about Ana"} {
		t.Run(reply, func(t *testing.T) {
			e := setup(t)
			opened := e.openFor(t, "Ana likes climbing")
			ctx := context.Background()

			res, err := e.manager.Resolve(ctx, "bot-1", "c1", reply)
			require.NoError(t, err)
			require.Equal(t, Rerouted, res.Outcome)
			assert.Equal(t, "person: Ana likes climbing", res.Text)
			assert.Equal(t, domain.StatusFiled, res.Result.Status)
			assert.Equal(t, domain.People, res.Result.Category)
			assert.Equal(t, opened.LogID, res.Result.LogID)

			rec, err := e.store.GetRecord(ctx, domain.People, res.Result.RecordID)
			require.NoError(t, err)
			assert.Equal(t, "Ana likes climbing", rec.DisplayName())

			_, err = e.store.GetPendingByReplyTarget(ctx, "c1", "bot-1")
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestResolve_PluralIsFreeText(t *testing.T) {
	e := setup(t)
	e.openFor(t, "Ana likes climbing")

	res, err := e.manager.Resolve(context.Background(), "bot-1", "c1", "people")
	require.NoError(t, err)
	assert.Equal(t, Rerouted, res.Outcome)
	assert.Equal(t, "people", res.Text)
}

func TestResolve_FreeTextStillUnclear(t *testing.T) {
	e := setup(t)
	e.openFor(t, "hmm")
	ctx := context.Background()

	res, err := e.manager.Resolve(ctx, "bot-1", "c1", "something else entirely")
	require.NoError(t, err)
	assert.Equal(t, Rerouted, res.Outcome)
	assert.Equal(t, domain.StatusNeedsReview, res.Result.Status)

	// pending is gone even though nothing was filed
	_, err = e.store.GetPendingByReplyTarget(ctx, "c1", "bot-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolve_FreeTextClassified(t *testing.T) {
	e := setup(t)
	e.openFor(t, "hmm")
	e.cls.result = &domain.Classification{
		Category: "admin", Confidence: 0.9, Extracted: map[string]any{"name": "renew passport"},
	}

	res, err := e.manager.Resolve(context.Background(), "bot-1", "c1", "renew passport by friday")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFiled, res.Result.Status)
	assert.Equal(t, domain.Admin, res.Result.Category)
}

func TestResolve_ClassifierErrorStillDeletes(t *testing.T) {
	e := setup(t)
	e.openFor(t, "hmm")
	e.cls.err = errors.New("down")
	ctx := context.Background()

	res, err := e.manager.Resolve(ctx, "bot-1", "c1", "free text")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNeedsReview, res.Result.Status)
	assert.Nil(t, res.Result.Confidence)

	_, err = e.store.GetPendingByReplyTarget(ctx, "c1", "bot-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOpen_RejectsFiled(t *testing.T) {
	e := setup(t)
	err := e.manager.Open(context.Background(), router.Result{LogID: "x", Status: domain.StatusFiled}, "bot-1", "c1")
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	e := setup(t)
	e.openFor(t, "old note")
	ctx := context.Background()

	n, err := e.manager.Sweep(ctx, DefaultHorizon)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.manager.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	n, err = e.manager.Sweep(ctx, DefaultHorizon)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := e.manager.Resolve(ctx, "bot-1", "c1", "idea")
	require.NoError(t, err)
	assert.Equal(t, NotPending, res.Outcome)
}

func TestChosenCategory(t *testing.T) {
	tests := map[string]domain.Category{
		"idea":           domain.Ideas,
		" HowTo ":        domain.HowTos,
		"snippet: code":  domain.Snippets,
		"decision:":      domain.Decisions,
		"ideas":          "",
		"idea is great":  "",
		"not a category": "",
	}
	for in, want := range tests {
		got, ok := chosenCategory(in)
		assert.Equal(t, want != "", ok, in)
		assert.Equal(t, want, got, in)
	}
}
