package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pbaille/leaknote/internal/bot"
	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/logging"
	"github.com/pbaille/leaknote/internal/store"
)

// Store is what the read endpoints need
type Store interface {
	ListInboxLog(ctx context.Context, limit, offset int) ([]domain.InboxLogEntry, error)
	GetRecord(ctx context.Context, c domain.Category, id string) (domain.Record, error)
	Ping() error
}

// Dispatcher handles one inbound message
type Dispatcher interface {
	Handle(ctx context.Context, msg bot.Message) error
}

// Server exposes the bot over HTTP
type Server struct {
	store      Store
	dispatcher Dispatcher
	gatherer   prometheus.Gatherer
	addr       string
	logger     *zap.Logger
}

// New creates a new API server. The dispatcher must send through Outbox.
func New(s Store, d Dispatcher, gatherer prometheus.Gatherer, addr string, logger *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		store:      s,
		dispatcher: d,
		gatherer:   gatherer,
		addr:       addr,
		logger:     logging.OrNop(logger).Named("api"),
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Messages
	mux.HandleFunc("POST /messages", s.postMessage)

	// Reads
	mux.HandleFunc("GET /inbox", s.listInbox)
	mux.HandleFunc("GET /records/{category}/{id}", s.getRecord)

	// Health check
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return withCORS(mux)
}

// Run serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", s.addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MessageRequest is an inbound chat message
type MessageRequest struct {
	MessageID string        `json:"message_id"`
	ChatID    string        `json:"chat_id"`
	SenderID  string        `json:"sender_id,omitempty"`
	Text      string        `json:"text"`
	ReplyTo   *ReplyRequest `json:"reply_to,omitempty"`
}

// ReplyRequest identifies the message being replied to
type ReplyRequest struct {
	MessageID        string `json:"message_id"`
	FromBot          bool   `json:"from_bot"`
	ReplyToMessageID string `json:"reply_to_message_id,omitempty"`
}

// OutboundMessage is a bot reply
type OutboundMessage struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
	ReplyTo   string `json:"reply_to,omitempty"`
}

// MessageResponse carries the bot's replies to one message
type MessageResponse struct {
	Replies []OutboundMessage `json:"replies"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MessageID == "" || req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "message_id and chat_id are required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	msg := bot.Message{
		ID:       req.MessageID,
		ChatID:   req.ChatID,
		SenderID: req.SenderID,
		Text:     req.Text,
	}
	if req.ReplyTo != nil {
		msg.ReplyTo = &bot.Reply{
			MessageID:       req.ReplyTo.MessageID,
			FromBot:         req.ReplyTo.FromBot,
			ParentMessageID: req.ReplyTo.ReplyToMessageID,
		}
	}

	out := &collector{}
	ctx := context.WithValue(r.Context(), collectorKey{}, out)
	if err := s.dispatcher.Handle(ctx, msg); err != nil {
		s.logger.Error("handle message",
			zap.String("chat_id", msg.ChatID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}

	writeJSON(w, http.StatusOK, MessageResponse{Replies: out.messages()})
}

func (s *Server) listInbox(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}

	entries, err := s.store.ListInboxLog(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list inbox", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list inbox")
		return
	}
	if entries == nil {
		entries = []domain.InboxLogEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	category, ok := domain.ParseCategory(r.PathValue("category"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown category")
		return
	}

	rec, err := s.store.GetRecord(r.Context(), category, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		s.logger.Error("get record", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"record":   rec,
	})
}

// Outbox is the bot.Sender for HTTP requests. Replies are collected on the
// request and returned in the response body.
type Outbox struct{}

var _ bot.Sender = Outbox{}

// Send records a reply and assigns it a message id
func (Outbox) Send(ctx context.Context, chatID, text, replyTo string) (string, error) {
	c, ok := ctx.Value(collectorKey{}).(*collector)
	if !ok {
		return "", errors.New("send: no HTTP request in context")
	}
	id := uuid.New().String()
	c.add(OutboundMessage{MessageID: id, Text: text, ReplyTo: replyTo})
	return id, nil
}

type collectorKey struct{}

type collector struct {
	mu  sync.Mutex
	out []OutboundMessage
}

func (c *collector) add(m OutboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, m)
}

func (c *collector) messages() []OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out == nil {
		return []OutboundMessage{}
	}
	return c.out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
