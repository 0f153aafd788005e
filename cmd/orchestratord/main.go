package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aiia-labs/orchestrator"
	"github.com/aiia-labs/orchestrator/internal/logging"
	"github.com/aiia-labs/orchestrator/internal/ratelimit"
	"github.com/aiia-labs/orchestrator/internal/requestlog"
	"github.com/aiia-labs/orchestrator/internal/version"
)

func main() {
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	log := logging.Logger

	cfg, err := orchestrator.FromEnv(os.Getenv)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	orch, err := orchestrator.New(cfg)
	if err != nil {
		log.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}
	defer orch.Close()

	st := orch.Status()
	log.Info("backends configured", "mode", st.Mode, "models", orch.Registry().Len())
	if st.Mode != orchestrator.StatusLive {
		log.Warn(st.Message)
	}

	logWriter, err := requestlog.Open(cfg.Server.CompletionLogBackend, cfg.Server.CompletionLogDSN)
	if err != nil {
		log.Error("failed to open completion log", "error", err)
		os.Exit(1)
	}
	orch.AddHook(requestlog.Hook(logWriter))
	var logs logLister
	if sw, ok := logWriter.(*requestlog.SQLWriter); ok {
		defer sw.Close()
		logs = sw
	}

	limiter := ratelimit.NewStore(cfg.Server.RateLimitWindow(), cfg.Server.RateLimitMax)
	r := newRouter(orch, cfg.Server, limiter, logs)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Long enough for a full rescue pass over slow backends.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runMaintenance(ctx, orch, limiter, cfg.Cache.CleanupInterval())

	go func() {
		<-ctx.Done()
		log.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	log.Info("orchestrator listening", "version", version.Short(), "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Error("server error", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	log.Info("server stopped")
}

// runMaintenance sweeps expired cache rows and idle rate-limit keys every
// interval until ctx is done.
func runMaintenance(ctx context.Context, orch *orchestrator.Orchestrator, limiter *ratelimit.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			orch.MaybeSweepCache(ctx)
			if n := limiter.Prune(); n > 0 {
				logging.Logger.Debug("rate limit keys pruned", "count", n)
			}
		}
	}
}

// newRouter builds the HTTP router.
func newRouter(orch *orchestrator.Orchestrator, cfg orchestrator.ServerConfig, limiter *ratelimit.Store, logs logLister) http.Handler {
	h := &handlers{orch: orch, cfg: cfg, logs: logs}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.CORSOrigins...))

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimitMiddleware(limiter))
		r.Post("/completions", h.completions)
		r.Post("/summarize", h.summarize)
		r.Get("/status", h.status)
		r.Get("/models", h.models)
		if logs != nil {
			r.Get("/completions/log", h.completionLog)
		}
	})

	return r
}
