package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pbaille/leaknote/internal/bot"
	"github.com/pbaille/leaknote/internal/clarify"
	"github.com/pbaille/leaknote/internal/classifier"
	"github.com/pbaille/leaknote/internal/config"
	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/embedding"
	"github.com/pbaille/leaknote/internal/enrich"
	"github.com/pbaille/leaknote/internal/fetcher"
	"github.com/pbaille/leaknote/internal/fix"
	"github.com/pbaille/leaknote/internal/llm"
	"github.com/pbaille/leaknote/internal/logging"
	"github.com/pbaille/leaknote/internal/maintenance"
	"github.com/pbaille/leaknote/internal/metrics"
	"github.com/pbaille/leaknote/internal/query"
	"github.com/pbaille/leaknote/internal/router"
	"github.com/pbaille/leaknote/internal/store"
)

// app holds the wired components for one command
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *store.Store
	metrics    *metrics.Metrics
	classifier *classifier.Classifier
	worker     *enrich.Worker
	router     *router.Router
	clarify    *clarify.Manager
	fix        *fix.Handler
}

// newApp loads config and opens the store. needLLM makes a missing
// completion service an error; otherwise the classifier is simply absent.
func newApp(needLLM bool) (*app, error) {
	logger, err := logging.New(verbose)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DB = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics.Default()}

	if err := cfg.ValidateLLM(); err == nil {
		completer, err := llm.New(llm.Config{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.LLM.BaseURL,
			Model:    cfg.LLM.Model,
			Timeout:  cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, err
		}
		a.classifier = classifier.New(completer, classifier.Options{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			RetryDelay:  cfg.Classifier.RetryDelay,
			Logger:      logger,
			Metrics:     a.metrics,
		})
	} else if needLLM {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DB), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	a.store, err = store.New(cfg.DB)
	if err != nil {
		return nil, err
	}

	a.worker = a.newWorker()

	opts := []router.Option{
		router.WithThresholds(router.Thresholds{
			Default:     cfg.DefaultThreshold(),
			PerCategory: cfg.CategoryThresholds(),
		}),
		router.WithLogger(logger),
		router.WithMetrics(a.metrics),
	}
	if a.worker != nil {
		opts = append(opts, router.WithEnricher(a.worker))
	}

	var cls router.Classifier = unavailableClassifier{}
	var fixCls fix.Classifier
	if a.classifier != nil {
		cls = a.classifier
		fixCls = a.classifier
	}
	a.router = router.New(a.store, cls, opts...)
	a.clarify = clarify.New(a.store, a.router, logger, a.metrics)
	a.fix = fix.New(a.store, fixCls, logger, a.metrics)
	return a, nil
}

func (a *app) newWorker() *enrich.Worker {
	if !a.cfg.Enrich.Enabled {
		return nil
	}

	var emb enrich.Embedder
	if a.cfg.Embedding.APIKey != "" {
		svc, err := embedding.New(&http.Client{Timeout: 30 * time.Second}, a.cfg.Embedding.APIKey, a.cfg.Embedding.URL)
		if err != nil {
			a.logger.Warn("embeddings disabled", zap.Error(err))
		} else {
			emb = svc
		}
	}

	var lf enrich.LinkFetcher
	if a.cfg.Enrich.FetchLinks {
		lf = fetcher.New(nil)
	}

	return enrich.New(a.store, emb, lf, enrich.Options{
		QueueSize: a.cfg.Enrich.QueueSize,
		Logger:    a.logger,
		Metrics:   a.metrics,
	})
}

func (a *app) dispatcher(sender bot.Sender) *bot.Dispatcher {
	return bot.New(a.router, a.clarify, a.fix, a.store, sender,
		bot.WithOwner(a.cfg.Bot.OwnerID),
		bot.WithQueries(query.New(a.store, a.logger, a.metrics)),
		bot.WithLogger(a.logger))
}

func (a *app) maintainer() (*maintenance.Maintainer, error) {
	return maintenance.New(a.store, a.clarify, maintenance.Config{
		Schedule:     a.cfg.Maintenance.Schedule,
		Horizon:      a.cfg.Clarify.Horizon,
		AdminDoneAge: a.cfg.Maintenance.AdminDoneAge,
	}, a.logger)
}

// drain enriches whatever the command queued before exiting
func (a *app) drain(ctx context.Context) {
	if a.worker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	a.worker.Drain(ctx)
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
	a.logger.Sync()
}

// unavailableClassifier stands in when no completion service is configured,
// so unprefixed notes land in needs_review
type unavailableClassifier struct{}

func (unavailableClassifier) Classify(ctx context.Context, text string) (*domain.Classification, error) {
	return nil, fmt.Errorf("classifier not configured")
}

// stdoutSender prints outbound messages with the id later commands can reply to
type stdoutSender struct{}

func (stdoutSender) Send(ctx context.Context, chatID, text, replyTo string) (string, error) {
	id := uuid.New().String()
	fmt.Printf("[%s]\n%s\n\n", id, text)
	return id, nil
}
