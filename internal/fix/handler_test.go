package fix

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

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

// countingStore counts record writes
type countingStore struct {
	*store.Store
	inserts, deletes int
}

func (c *countingStore) InsertRecord(ctx context.Context, r domain.Record) (string, error) {
	c.inserts++
	return c.Store.InsertRecord(ctx, r)
}

func (c *countingStore) DeleteRecord(ctx context.Context, cat domain.Category, id string) (bool, error) {
	c.deletes++
	return c.Store.DeleteRecord(ctx, cat, id)
}

// racingStore re-routes the note between the read and the update
type racingStore struct {
	*store.Store
	race func()
}

func (r *racingStore) UpdateInboxLog(ctx context.Context, id string, version int, dest domain.Category, recordID string, status domain.Status) error {
	if r.race != nil {
		r.race()
		r.race = nil
	}
	return r.Store.UpdateInboxLog(ctx, id, version, dest, recordID, status)
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "fix.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func route(t *testing.T, s *store.Store, cls *fakeClassifier, text string) router.Result {
	t.Helper()
	res, err := router.New(s, cls).Route(context.Background(), router.Note{Text: text, MessageID: "m1", ChatID: "c1"})
	require.NoError(t, err)
	return res
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want domain.Category
		ok   bool
	}{
		{"fix: people", domain.People, true},
		{"fix: person", domain.People, true},
		{"fix:project", domain.Projects, true},
		{"  FIX:   Howtos and more", domain.HowTos, true},
		{"fix: recipes", "", false},
		{"fix:", "", false},
		{"please fix: idea", "", false},
		{"idea: fix the roof", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCommand(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.True(t, IsCommand("fix: recipes"))
	assert.False(t, IsCommand("idea: fix"))
}

func TestFix_MovesRecord(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	orig := route(t, s, nil, "idea: call Ana about the trip")

	cls := &fakeClassifier{result: &domain.Classification{Category: "people", Tags: []string{"travel"}}}
	h := New(s, cls, nil, nil)

	res, err := h.Fix(ctx, orig.LogID, domain.People)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, domain.Ideas, res.OldCategory)
	assert.Equal(t, domain.People, res.NewCategory)
	assert.Equal(t, "call Ana about the trip", res.Name)

	e, err := s.GetInboxLog(ctx, orig.LogID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFixed, e.Status)
	assert.Equal(t, domain.People, e.Destination)

	rec, err := s.GetRecord(ctx, domain.People, e.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "call Ana about the trip", rec.DisplayName())
	assert.Equal(t, []string{"travel"}, rec.RecordTags())

	_, err = s.GetRecord(ctx, domain.Ideas, orig.RecordID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFix_ReferenceCategoryUsesExtraction(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	orig := route(t, s, nil, "idea: use postgres because it scales")

	cls := &fakeClassifier{err: errors.New("must not be needed")}
	res, err := New(s, cls, nil, nil).Fix(ctx, orig.LogID, domain.Decisions)
	require.NoError(t, err)
	require.True(t, res.Success)

	e, err := s.GetInboxLog(ctx, orig.LogID)
	require.NoError(t, err)
	rec, err := s.GetRecord(ctx, domain.Decisions, e.RecordID)
	require.NoError(t, err)
	d := rec.(*domain.Decision)
	assert.Equal(t, "use postgres", d.Decision)
	require.NotNil(t, d.Rationale)
	assert.Equal(t, "it scales", *d.Rationale)
}

func TestFix_FromNeedsReview(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	orig := route(t, s, &fakeClassifier{err: errors.New("down")}, "buy milk")
	require.Equal(t, domain.StatusNeedsReview, orig.Status)

	res, err := New(s, &fakeClassifier{err: errors.New("still down")}, nil, nil).Fix(ctx, orig.LogID, domain.Admin)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Empty(t, res.OldCategory)
	assert.Equal(t, "buy milk", res.Name)

	counts, err := s.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.Admin])
}

func TestFix_NeedsReviewIgnoresSuggestion(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	orig := route(t, s, &fakeClassifier{result: &domain.Classification{Category: "ideas", Confidence: 0.2}}, "call bob about the roadmap")
	require.Equal(t, domain.StatusNeedsReview, orig.Status)
	require.Equal(t, domain.Ideas, orig.Category)

	// the suggestion was never filed, so fixing to it still files the note
	res, err := New(s, nil, nil, nil).Fix(ctx, orig.LogID, domain.Ideas)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Empty(t, res.OldCategory)
	assert.Equal(t, domain.Ideas, res.NewCategory)

	counts, err := s.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.Ideas])
}

func TestFix_ClosesPendingClarification(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	orig := route(t, s, &fakeClassifier{result: &domain.Classification{Category: "ideas", Confidence: 0.2}}, "call bob about the roadmap")
	_, err := s.InsertPending(ctx, &domain.PendingClarification{
		InboxLogID: orig.LogID, ReplyTargetID: "bot-1", ChatID: "c1", SuggestedCategory: domain.Ideas,
	})
	require.NoError(t, err)

	res, err := New(s, nil, nil, nil).Fix(ctx, orig.LogID, domain.Projects)
	require.NoError(t, err)
	require.True(t, res.Success)

	_, err = s.GetPendingByReplyTarget(ctx, "c1", "bot-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFix_SameCategoryWritesNothing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	orig := route(t, s, nil, "idea: solar kettle")

	cs := &countingStore{Store: s}
	res, err := New(cs, nil, nil, nil).Fix(ctx, orig.LogID, domain.Ideas)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Unchanged)
	assert.Equal(t, "Already filed as idea", res.Message)
	assert.Zero(t, cs.inserts)
	assert.Zero(t, cs.deletes)

	e, err := s.GetInboxLog(ctx, orig.LogID)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Version)
}

func TestFix_NotFound(t *testing.T) {
	s := newStore(t)
	h := New(s, nil, nil, nil)

	res, err := h.Fix(context.Background(), "missing", domain.Ideas)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, MsgNotFound, res.Message)

	res, err = h.FixMessage(context.Background(), "c1", "nope", domain.Ideas)
	require.NoError(t, err)
	assert.Equal(t, MsgNotFound, res.Message)
}

func TestFix_ByMessage(t *testing.T) {
	s := newStore(t)
	route(t, s, nil, "project: new website")

	res, err := New(s, nil, nil, nil).FixMessage(context.Background(), "c1", "m1", domain.Ideas)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.Projects, res.OldCategory)
}

func TestFix_VersionConflict(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	orig := route(t, s, nil, "idea: call Ana")

	rs := &racingStore{Store: s, race: func() {
		route(t, s, nil, "project: call Ana")
	}}
	res, err := New(rs, nil, nil, nil).Fix(ctx, orig.LogID, domain.People)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, MsgConflict, res.Message)

	counts, err := s.CountRecords(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts[domain.People], "new record is rolled back")
	assert.Equal(t, 1, counts[domain.Ideas], "old record is untouched")
	assert.Equal(t, 1, counts[domain.Projects])

	e, err := s.GetInboxLog(ctx, orig.LogID)
	require.NoError(t, err)
	assert.Equal(t, domain.Projects, e.Destination)
}
