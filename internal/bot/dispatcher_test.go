package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/leaknote/internal/clarify"
	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/fix"
	"github.com/pbaille/leaknote/internal/query"
	"github.com/pbaille/leaknote/internal/router"
	"github.com/pbaille/leaknote/internal/store"
)

type sent struct {
	ID, ChatID, Text, ReplyTo string
}

type recordingSender struct{ out []sent }

func (r *recordingSender) Send(ctx context.Context, chatID, text, replyTo string) (string, error) {
	id := fmt.Sprintf("bot-%d", len(r.out)+1)
	r.out = append(r.out, sent{ID: id, ChatID: chatID, Text: text, ReplyTo: replyTo})
	return id, nil
}

func (r *recordingSender) last(t *testing.T) sent {
	t.Helper()
	require.NotEmpty(t, r.out)
	return r.out[len(r.out)-1]
}

type fakeClassifier struct{ result *domain.Classification }

func (f *fakeClassifier) Classify(ctx context.Context, text string) (*domain.Classification, error) {
	return f.result, nil
}

type env struct {
	d      *Dispatcher
	store  *store.Store
	sender *recordingSender
	cls    *fakeClassifier
}

func setup(t *testing.T, opts ...Option) *env {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cls := &fakeClassifier{result: &domain.Classification{Category: "ideas", Confidence: 0.2}}
	r := router.New(s, cls)
	sender := &recordingSender{}
	d := New(r, clarify.New(s, r, nil, nil), fix.New(s, nil, nil, nil), s, sender, opts...)
	return &env{d: d, store: s, sender: sender, cls: cls}
}

func TestHandle_PrefixConfirmation(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.d.Handle(context.Background(), Message{ID: "u1", ChatID: "c1", Text: "project: new website"}))

	out := e.sender.last(t)
	assert.Equal(t, "u1", out.ReplyTo)
	assert.Equal(t, "✓ Filed as project: \"new website\"\nConfidence: 100%\nReply `fix: <category>` if wrong", out.Text)
}

func TestHandle_ClarifyThenAnswer(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, e.d.Handle(ctx, Message{ID: "u1", ChatID: "c1", Text: "Ana loves climbing"}))
	prompt := e.sender.last(t)
	assert.Contains(t, prompt.Text, "Best guess: idea (20% confident)")

	require.NoError(t, e.d.Handle(ctx, Message{
		ID: "u2", ChatID: "c1", Text: "person",
		ReplyTo: &Reply{MessageID: prompt.ID, FromBot: true, ParentMessageID: "u1"},
	}))
	assert.Equal(t, "✓ Filed as person: \"Ana loves climbing\"\nConfidence: 100%\nReply `fix: <category>` if wrong",
		e.sender.last(t).Text)

	entry, err := e.store.GetInboxLogByMessage(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFiled, entry.Status)
}

func TestHandle_ClarifySkip(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, e.d.Handle(ctx, Message{ID: "u1", ChatID: "c1", Text: "hmm"}))
	prompt := e.sender.last(t)

	require.NoError(t, e.d.Handle(ctx, Message{
		ID: "u2", ChatID: "c1", Text: " Skip ",
		ReplyTo: &Reply{MessageID: prompt.ID, FromBot: true, ParentMessageID: "u1"},
	}))
	assert.Equal(t, "👍 Skipped", e.sender.last(t).Text)
}

func TestHandle_ClarifyStillUnclear(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, e.d.Handle(ctx, Message{ID: "u1", ChatID: "c1", Text: "hmm"}))
	prompt := e.sender.last(t)

	require.NoError(t, e.d.Handle(ctx, Message{
		ID: "u2", ChatID: "c1", Text: "no idea honestly",
		ReplyTo: &Reply{MessageID: prompt.ID, FromBot: true},
	}))
	assert.Equal(t, "⚠️ Still couldn't classify. Try using a prefix like `decision: your text`", e.sender.last(t).Text)
}

func TestHandle_FixReplyToConfirmation(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, e.d.Handle(ctx, Message{ID: "u1", ChatID: "c1", Text: "idea: call Ana"}))
	confirmation := e.sender.last(t)

	require.NoError(t, e.d.Handle(ctx, Message{
		ID: "u2", ChatID: "c1", Text: "fix: people",
		ReplyTo: &Reply{MessageID: confirmation.ID, FromBot: true, ParentMessageID: "u1"},
	}))
	assert.Equal(t, "✓ Fixed: moved from idea → person\nEntry: \"call Ana\"", e.sender.last(t).Text)
}

func TestHandle_FixOnPromptThenAnswerKeepsOneRecord(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, e.d.Handle(ctx, Message{ID: "u1", ChatID: "c1", Text: "call bob about the roadmap"}))
	prompt := e.sender.last(t)

	require.NoError(t, e.d.Handle(ctx, Message{
		ID: "u2", ChatID: "c1", Text: "fix: project",
		ReplyTo: &Reply{MessageID: prompt.ID, FromBot: true, ParentMessageID: "u1"},
	}))
	assert.Equal(t, "✓ Fixed: moved from unknown → project\nEntry: \"call bob about the roadmap\"", e.sender.last(t).Text)

	// the prompt is closed, so a late answer is just a new note
	require.NoError(t, e.d.Handle(ctx, Message{
		ID: "u3", ChatID: "c1", Text: "idea",
		ReplyTo: &Reply{MessageID: prompt.ID, FromBot: true, ParentMessageID: "u1"},
	}))

	entry, err := e.store.GetInboxLogByMessage(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFixed, entry.Status)
	assert.Equal(t, domain.Projects, entry.Destination)

	counts, err := e.store.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.Projects])
	assert.Equal(t, 0, counts[domain.Ideas])

	_, err = e.store.GetRecord(ctx, domain.Projects, entry.RecordID)
	assert.NoError(t, err)
}

func TestHandle_FixSameCategory(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, e.d.Handle(ctx, Message{ID: "u1", ChatID: "c1", Text: "idea: call Ana"}))
	confirmation := e.sender.last(t)

	require.NoError(t, e.d.Handle(ctx, Message{
		ID: "u2", ChatID: "c1", Text: "fix: idea",
		ReplyTo: &Reply{MessageID: confirmation.ID, FromBot: true, ParentMessageID: "u1"},
	}))
	assert.Equal(t, "⚠️ Already filed as idea", e.sender.last(t).Text)
}

func TestHandle_FixWithoutParent(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.d.Handle(context.Background(), Message{
		ID: "u2", ChatID: "c1", Text: "fix: idea",
		ReplyTo: &Reply{MessageID: "bot-99", FromBot: true},
	}))
	assert.Equal(t, "⚠️ Couldn't find the original message to fix. Please reply directly to your message or the bot's confirmation.",
		e.sender.last(t).Text)
}

func TestHandle_FixUnknownCategory(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.d.Handle(context.Background(), Message{
		ID: "u2", ChatID: "c1", Text: "fix: recipes",
		ReplyTo: &Reply{MessageID: "bot-1", FromBot: true, ParentMessageID: "u1"},
	}))
	assert.Contains(t, e.sender.last(t).Text, "Unknown category")
}

func TestHandle_FixWithoutReply(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.d.Handle(context.Background(), Message{ID: "u1", ChatID: "c1", Text: "fix: people"}))
	assert.Equal(t, "⚠️ Please reply to the message you want to fix with `fix: <category>`", e.sender.last(t).Text)
}

func TestHandle_ReplyWithNothingPendingIsCaptured(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.d.Handle(context.Background(), Message{
		ID: "u5", ChatID: "c1", Text: "snippet: ls -> list files",
		ReplyTo: &Reply{MessageID: "bot-1", FromBot: true},
	}))
	assert.Contains(t, e.sender.last(t).Text, "✓ Filed as snippet: \"ls\"")
}

func TestHandle_QueryIsAnsweredNotFiled(t *testing.T) {
	e := setup(t)
	e.d.queries = query.New(e.store, nil, nil)
	ctx := context.Background()

	require.NoError(t, e.d.Handle(ctx, Message{ID: "u1", ChatID: "c1", Text: "project: lease renewal"}))
	require.NoError(t, e.d.Handle(ctx, Message{ID: "u2", ChatID: "c1", Text: "?projects active"}))

	out := e.sender.last(t)
	assert.Equal(t, "u2", out.ReplyTo)
	assert.Equal(t, "📋 **Projects**\n\n**ACTIVE**\n• lease renewal", out.Text)

	_, err := e.store.GetInboxLogByMessage(ctx, "c1", "u2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandle_UnknownQueryIsNotFiled(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	// a reply to a bot message with nothing pending would otherwise be captured
	require.NoError(t, e.d.Handle(ctx, Message{
		ID: "u1", ChatID: "c1", Text: "?what did I save",
		ReplyTo: &Reply{MessageID: "bot-9", FromBot: true},
	}))
	assert.Contains(t, e.sender.last(t).Text, "❓ Unknown command")

	require.NoError(t, e.d.Handle(ctx, Message{ID: "u2", ChatID: "c1", Text: "?ideas"}))
	assert.Equal(t, "⚠️ Queries are not available", e.sender.last(t).Text)

	entries, err := e.store.ListInboxLog(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandle_OwnerFilter(t *testing.T) {
	e := setup(t, WithOwner("owner"))
	ctx := context.Background()

	require.NoError(t, e.d.Handle(ctx, Message{ID: "u1", ChatID: "c1", SenderID: "stranger", Text: "idea: x"}))
	assert.Empty(t, e.sender.out)

	require.NoError(t, e.d.Handle(ctx, Message{ID: "u2", ChatID: "c1", SenderID: "owner", Text: "idea: x"}))
	assert.Len(t, e.sender.out, 1)
}

func TestHandle_IgnoresEmpty(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.d.Handle(context.Background(), Message{ID: "u1", ChatID: "c1", Text: "   "}))
	assert.Empty(t, e.sender.out)
}
