package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/metrics"
	"github.com/pbaille/leaknote/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "query.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		want Command
		ok   bool
	}{
		{"?recall Kafka Setup", Command{Kind: Recall, Arg: "kafka setup"}, true},
		{"?SEARCH roadmap", Command{Kind: Search, Arg: "roadmap"}, true},
		{"  ?people bob ", Command{Kind: People, Arg: "bob"}, true},
		{"?projects", Command{Kind: Projects}, true},
		{"?projects Waiting", Command{Kind: Projects, Arg: "waiting"}, true},
		{"?ideas", Command{Kind: Ideas}, true},
		{"?admin due", Command{Kind: Admin, Arg: "due"}, true},
		{"?admin", Command{Kind: Admin}, true},
		{"?projects stalled", Command{}, false},
		{"?recall", Command{}, false},
		{"?ideas please", Command{}, false},
		{"?what", Command{}, false},
		{"recall kafka", Command{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := Parse(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsQuery(t *testing.T) {
	assert.True(t, IsQuery("?what"))
	assert.True(t, IsQuery("  ?ideas"))
	assert.False(t, IsQuery("why? because"))
	assert.False(t, IsQuery("idea: more ?"))
}

func TestAnswer(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.InsertRecord(ctx, &domain.Project{Name: "Lease", Status: domain.ProjectWaiting, NextAction: "hear back"})
	require.NoError(t, err)
	_, err = s.InsertRecord(ctx, &domain.Project{Name: "Site", Status: domain.ProjectActive, NextAction: "ship"})
	require.NoError(t, err)
	_, err = s.InsertRecord(ctx, &domain.HowTo{Title: "Reset router", Content: "hold button 10s"})
	require.NoError(t, err)
	_, err = s.InsertRecord(ctx, &domain.Person{Name: "Bob", Context: "knows the router"})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	h := New(s, nil, metrics.New(reg))

	t.Run("projects by status", func(t *testing.T) {
		msg, err := h.Answer(ctx, Command{Kind: Projects, Arg: domain.ProjectWaiting})
		require.NoError(t, err)
		assert.Equal(t, "📋 **Projects**\n\n**WAITING**\n• Lease → hear back", msg)
	})

	t.Run("recall only reads reference tables", func(t *testing.T) {
		msg, err := h.Answer(ctx, Command{Kind: Recall, Arg: "router"})
		require.NoError(t, err)
		assert.Equal(t, "🔍 Results for: router\n\n## [HOWTO] Reset router\n\nhold button 10s", msg)
	})

	t.Run("search reads everything", func(t *testing.T) {
		msg, err := h.Answer(ctx, Command{Kind: Search, Arg: "router"})
		require.NoError(t, err)
		assert.Contains(t, msg, "[PERSON] Bob")
		assert.Contains(t, msg, "[HOWTO] Reset router")
	})

	t.Run("people", func(t *testing.T) {
		msg, err := h.Answer(ctx, Command{Kind: People, Arg: "lease"})
		require.NoError(t, err)
		assert.Equal(t, "🔍 No results found for: lease", msg)
	})

	t.Run("empty lists", func(t *testing.T) {
		msg, err := h.Answer(ctx, Command{Kind: Ideas})
		require.NoError(t, err)
		assert.Equal(t, "💡 No ideas captured yet.", msg)

		msg, err = h.Answer(ctx, Command{Kind: Admin, Arg: "due"})
		require.NoError(t, err)
		assert.Equal(t, "✅ No pending admin tasks.", msg)
	})

	_, err = h.Answer(ctx, Command{Kind: "stats"})
	assert.Error(t, err)

	// one series per command answered
	n, err := testutil.GatherAndCount(reg, "leaknote_query_commands_total")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}
