// Package bot turns inbound chat messages into routing, clarification and
// fix operations, independent of the chat transport.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pbaille/leaknote/internal/clarify"
	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/fix"
	"github.com/pbaille/leaknote/internal/logging"
	"github.com/pbaille/leaknote/internal/query"
	"github.com/pbaille/leaknote/internal/responder"
	"github.com/pbaille/leaknote/internal/router"
	"github.com/pbaille/leaknote/internal/store"
)

const (
	msgSaveFailed      = "Couldn't save that note, please try again"
	msgFixFailed       = "Couldn't apply the fix, please try again"
	msgUnknownCategory = "Unknown category. Use person, project, idea, admin, decision, howto or snippet"
	msgQueryFailed     = "Couldn't run that query, please try again"
	msgQueryOff        = "Queries are not available"
)

// Message is an inbound chat message
type Message struct {
	ID       string
	ChatID   string
	SenderID string
	Text     string
	ReplyTo  *Reply
}

// Reply describes the message being replied to
type Reply struct {
	MessageID string
	FromBot   bool
	// ParentMessageID is what the replied-to message itself replied to
	ParentMessageID string
}

// Sender delivers outbound messages and returns the transport id assigned
type Sender interface {
	Send(ctx context.Context, chatID, text, replyTo string) (string, error)
}

// Router files notes
type Router interface {
	Route(ctx context.Context, note router.Note) (router.Result, error)
}

// Clarifier opens and resolves clarification prompts
type Clarifier interface {
	Open(ctx context.Context, res router.Result, replyTargetID, chatID string) error
	Resolve(ctx context.Context, replyTargetID, chatID, reply string) (clarify.Resolution, error)
}

// Fixer moves notes between categories
type Fixer interface {
	FixMessage(ctx context.Context, chatID, messageID string, category domain.Category) (fix.Result, error)
}

// Querier answers ?commands
type Querier interface {
	Answer(ctx context.Context, cmd query.Command) (string, error)
}

// RecordReader loads filed records for confirmations
type RecordReader interface {
	GetRecord(ctx context.Context, c domain.Category, id string) (domain.Record, error)
}

// Dispatcher handles inbound messages
type Dispatcher struct {
	router  Router
	clarify Clarifier
	fixer   Fixer
	records RecordReader
	queries Querier
	sender  Sender
	ownerID string
	logger  *zap.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithOwner restricts the bot to messages from ownerID
func WithOwner(ownerID string) Option {
	return func(d *Dispatcher) { d.ownerID = ownerID }
}

// WithQueries enables ?commands
func WithQueries(q Querier) Option {
	return func(d *Dispatcher) { d.queries = q }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = logging.OrNop(l).Named("bot") }
}

// New creates a Dispatcher
func New(r Router, c Clarifier, f Fixer, records RecordReader, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		router:  r,
		clarify: c,
		fixer:   f,
		records: records,
		sender:  sender,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle processes one inbound message. Failures the user should know about
// are answered in chat; the returned error is for the transport's logs.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) error {
	if d.ownerID != "" && msg.SenderID != d.ownerID {
		d.logger.Warn("ignoring message from unknown sender",
			zap.String("sender_id", msg.SenderID),
			zap.String("chat_id", msg.ChatID))
		return nil
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	d.logger.Debug("message received",
		zap.String("chat_id", msg.ChatID),
		zap.String("message_id", msg.ID),
		zap.String("text", logging.Preview(msg.Text)))

	// ?-messages are never filed, even as replies
	if query.IsQuery(msg.Text) {
		return d.handleQuery(ctx, msg)
	}
	if msg.ReplyTo != nil && msg.ReplyTo.FromBot {
		return d.handleReply(ctx, msg)
	}
	if fix.IsCommand(msg.Text) {
		return d.send(ctx, msg, responder.Error(responder.FixNeedsReply))
	}
	return d.capture(ctx, msg)
}

func (d *Dispatcher) capture(ctx context.Context, msg Message) error {
	res, err := d.router.Route(ctx, router.Note{Text: msg.Text, MessageID: msg.ID, ChatID: msg.ChatID})
	if err != nil {
		if serr := d.send(ctx, msg, responder.Error(msgSaveFailed)); serr != nil {
			d.logger.Warn("send error reply", zap.Error(serr))
		}
		return fmt.Errorf("capture: %w", err)
	}

	if res.Status == domain.StatusFiled {
		return d.send(ctx, msg, responder.Filed(res.Category, d.displayName(ctx, res, msg.Text), res.Confidence))
	}

	promptID, err := d.sender.Send(ctx, msg.ChatID, responder.Clarify(res.Category, res.Confidence), msg.ID)
	if err != nil {
		return fmt.Errorf("send clarification: %w", err)
	}
	if err := d.clarify.Open(ctx, res, promptID, msg.ChatID); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return nil
}

func (d *Dispatcher) handleReply(ctx context.Context, msg Message) error {
	if fix.IsCommand(msg.Text) {
		return d.handleFix(ctx, msg)
	}

	resolution, err := d.clarify.Resolve(ctx, msg.ReplyTo.MessageID, msg.ChatID, msg.Text)
	if err != nil {
		if serr := d.send(ctx, msg, responder.Error(msgSaveFailed)); serr != nil {
			d.logger.Warn("send error reply", zap.Error(serr))
		}
		return fmt.Errorf("clarification reply: %w", err)
	}

	switch resolution.Outcome {
	case clarify.Skipped:
		return d.send(ctx, msg, responder.Skipped)
	case clarify.Rerouted:
		res := resolution.Result
		if res.Status != domain.StatusFiled {
			return d.send(ctx, msg, responder.Error(responder.StillUnclear))
		}
		confidence := res.Confidence
		if confidence == nil {
			one := 1.0
			confidence = &one
		}
		return d.send(ctx, msg, responder.Filed(res.Category, d.displayName(ctx, res, resolution.Text), confidence))
	default:
		// A reply to a bot message with nothing pending is a new note
		return d.capture(ctx, msg)
	}
}

func (d *Dispatcher) handleFix(ctx context.Context, msg Message) error {
	category, ok := fix.ParseCommand(msg.Text)
	if !ok {
		return d.send(ctx, msg, responder.Error(msgUnknownCategory))
	}

	var (
		res fix.Result
		err error
	)
	if parent := msg.ReplyTo.ParentMessageID; parent != "" {
		res, err = d.fixer.FixMessage(ctx, msg.ChatID, parent, category)
	} else {
		// Without a parent, the replied-to message may be the note itself
		res, err = d.fixer.FixMessage(ctx, msg.ChatID, msg.ReplyTo.MessageID, category)
		if err == nil && !res.Success && res.Message == fix.MsgNotFound {
			res.Message = responder.FixTargetMissing
		}
	}
	if err != nil {
		if serr := d.send(ctx, msg, responder.Error(msgFixFailed)); serr != nil {
			d.logger.Warn("send error reply", zap.Error(serr))
		}
		return fmt.Errorf("fix: %w", err)
	}

	if !res.Success {
		return d.send(ctx, msg, responder.Error(res.Message))
	}
	return d.send(ctx, msg, responder.Fixed(res.OldCategory, res.NewCategory, res.Name))
}

func (d *Dispatcher) handleQuery(ctx context.Context, msg Message) error {
	cmd, ok := query.Parse(msg.Text)
	if !ok {
		return d.send(ctx, msg, responder.UnknownQuery())
	}
	if d.queries == nil {
		return d.send(ctx, msg, responder.Error(msgQueryOff))
	}

	answer, err := d.queries.Answer(ctx, cmd)
	if err != nil {
		if serr := d.send(ctx, msg, responder.Error(msgQueryFailed)); serr != nil {
			d.logger.Warn("send error reply", zap.Error(serr))
		}
		return fmt.Errorf("query: %w", err)
	}
	return d.send(ctx, msg, answer)
}

// displayName is the record's name or title, else the start of the text
func (d *Dispatcher) displayName(ctx context.Context, res router.Result, text string) string {
	if res.RecordID != "" {
		rec, err := d.records.GetRecord(ctx, res.Category, res.RecordID)
		switch {
		case err == nil && rec.DisplayName() != "":
			return rec.DisplayName()
		case err != nil && !errors.Is(err, store.ErrNotFound):
			d.logger.Warn("load record for confirmation", zap.Error(err))
		}
	}
	r := []rune(text)
	if len(r) > 50 {
		r = r[:50]
	}
	return string(r)
}

func (d *Dispatcher) send(ctx context.Context, msg Message, text string) error {
	if _, err := d.sender.Send(ctx, msg.ChatID, text, msg.ID); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
