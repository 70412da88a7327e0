package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/coursecraft/internal/agent"
	"github.com/p-n-ai/coursecraft/internal/ai"
	"github.com/p-n-ai/coursecraft/internal/chat"
	"github.com/p-n-ai/coursecraft/internal/course"
	"github.com/p-n-ai/coursecraft/internal/dialogue"
	"github.com/p-n-ai/coursecraft/internal/generator"
	"github.com/p-n-ai/coursecraft/internal/library"
	"github.com/p-n-ai/coursecraft/internal/platform/cache"
	"github.com/p-n-ai/coursecraft/internal/platform/config"
	"github.com/p-n-ai/coursecraft/internal/platform/database"
	"github.com/p-n-ai/coursecraft/internal/reminder"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// readinessCheck is one dependency probed by /readyz.
type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

func run(ctx context.Context, cfg *config.Config) error {
	var checks []readinessCheck

	var db *database.DB
	if cfg.Storage.Driver == config.StoragePostgres {
		var err error
		db, err = database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return err
		}
		defer db.Close()
		checks = append(checks, readinessCheck{"database", db.HealthCheck})
	}

	var kv *cache.Cache
	if cfg.Session.Store == config.SessionRedis {
		var err error
		kv, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return err
		}
		defer func() { _ = kv.Close() }()
		checks = append(checks, readinessCheck{"cache", kv.HealthCheck})
	}

	repo, closeRepo, check, err := openRepository(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRepo(); err != nil {
			slog.Warn("closing course repository", "error", err)
		}
	}()
	if check != nil {
		checks = append(checks, *check)
	}

	lib := library.New()
	if cfg.LibraryPath != "" {
		lib, err = library.Load(cfg.LibraryPath)
		if err != nil {
			return err
		}
	}
	slog.Info("resource library loaded", "resources", lib.Len())

	gen := generator.NewAIGenerator(newRouter(cfg, kv),
		generator.WithResources(lib),
		generator.WithTimeout(cfg.Course.GenerationTimeout),
	)

	courses := course.NewEngine(course.NewRetryingRepository(repo, cfg.Course.RepositoryAttempts), gen)
	if err := courses.Load(ctx); err != nil {
		return err
	}

	gw := chat.NewGateway()
	admin := agent.AdminTarget{}
	if cfg.Telegram.BotToken != "" {
		tg, err := chat.NewTelegramChannel(cfg.Telegram.BotToken)
		if err != nil {
			return err
		}
		gw.Register("telegram", tg)
		if cfg.AdminChatID != "" {
			admin = agent.AdminTarget{Channel: "telegram", ChatID: cfg.AdminChatID}
		}
	}
	var wsHandler http.Handler
	if cfg.WebSocket.Enabled {
		ws := chat.NewWebSocketChannel()
		gw.Register("websocket", ws)
		wsHandler = ws
	}

	var feedback agent.FeedbackSink = agent.NewMemoryFeedbackSink()
	if db != nil {
		if feedback, err = agent.NewPostgresFeedbackSink(ctx, db.Pool); err != nil {
			return err
		}
	}

	engine := agent.NewEngine(agent.EngineConfig{
		Courses:   courses,
		Generator: gen,
		Sessions:  newSessionStore(cfg, kv),
		Sender:    gw,
		Feedback:  feedback,
		Admin:     admin,
		DonateURL: cfg.DonateURL,
	})

	scheduler := reminder.New(courses, engine, cfg.Course.ReminderInterval)
	engine.SetReminders(scheduler)
	defer scheduler.StopAll()

	active := courses.Active()
	ids := make([]string, 0, len(active))
	for _, rec := range active {
		ids = append(ids, rec.UserID)
	}
	scheduler.Resume(ids...)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newMux(checks, wsHandler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return gw.StartAll(gctx, engine.HandleInbound(gctx))
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := gw.StopAll(); err != nil {
			slog.Warn("stopping channels", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openRepository selects the course repository for the configured driver.
func openRepository(ctx context.Context, cfg *config.Config, db *database.DB) (course.Repository, func() error, *readinessCheck, error) {
	noop := func() error { return nil }

	switch cfg.Storage.Driver {
	case config.StorageMemory:
		slog.Warn("course records are kept in memory and lost on restart")
		return course.NewMemoryRepository(), noop, nil, nil
	case config.StorageSQLite:
		if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		repo, err := course.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, repo.Close, &readinessCheck{"sqlite", repo.Ping}, nil
	case config.StoragePostgres:
		if db == nil {
			return nil, nil, nil, fmt.Errorf("postgres storage selected without a database connection")
		}
		repo, err := course.NewPostgresRepository(ctx, db.Pool)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, noop, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func newSessionStore(cfg *config.Config, kv *cache.Cache) dialogue.Store {
	if kv != nil {
		return dialogue.NewRedisStore(kv.Client, cfg.Session.TTL)
	}
	return dialogue.NewMemoryStore()
}

// newRouter registers every configured provider in fallback order.
func newRouter(cfg *config.Config, kv *cache.Cache) *ai.Router {
	router := ai.NewRouter()
	if cfg.AI.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.AI.OpenAI.APIKey))
	}
	if cfg.AI.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.AI.DeepSeek.APIKey))
	}
	if cfg.AI.Google.APIKey != "" {
		router.Register("google", ai.NewGoogleProvider(cfg.AI.Google.APIKey, ai.WithGoogleModel(cfg.AI.Google.Model)))
	}
	if cfg.AI.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.AI.Ollama.URL))
	}

	if limit := cfg.AI.UserTokenBudget; limit > 0 {
		if kv != nil {
			router.SetBudget(ai.NewRedisBudget(kv.Client, cache.KeyPrefix, limit))
		} else {
			router.SetBudget(ai.NewInMemoryBudget(limit))
		}
	}
	return router
}

// newMux creates the HTTP router with health check endpoints and, when
// enabled, the WebSocket chat endpoint.
func newMux(checks []readinessCheck, ws http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	if ws != nil {
		mux.Handle("GET /ws", ws)
	}
	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Bot is alive!"))
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks []readinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				slog.Warn("readiness check failed", "check", c.name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, `{"status":"unavailable","check":%q}`, c.name)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}
