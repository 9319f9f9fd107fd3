package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/mindusforge/mindus-web/internal/cache"
	"github.com/mindusforge/mindus-web/internal/config"
	"github.com/mindusforge/mindus-web/internal/http/handlers"
	"github.com/mindusforge/mindus-web/internal/http/router"
	"github.com/mindusforge/mindus-web/internal/metrics"
	"github.com/mindusforge/mindus-web/internal/oauth"
	"github.com/mindusforge/mindus-web/internal/oauth/bitbucket"
	"github.com/mindusforge/mindus-web/internal/oauth/github"
	"github.com/mindusforge/mindus-web/internal/oauth/gitlab"
	"github.com/mindusforge/mindus-web/internal/observability/logger"
	"github.com/mindusforge/mindus-web/internal/rate"
	"github.com/mindusforge/mindus-web/internal/session"
	"github.com/mindusforge/mindus-web/internal/store"
	"github.com/mindusforge/mindus-web/internal/web"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	// .env es opcional; en producción las vars vienen del entorno.
	_ = godotenv.Load()

	cfgPath := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "ruta al config.yaml (opcional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "mindus-web",
	})
	defer func() { _ = logger.Sync() }()

	// Claves faltantes: warning, nunca fatal. El feature que las necesita
	// falla más tarde con contexto.
	for _, warn := range cfg.Warnings() {
		logger.L().Warn("configuration incomplete", logger.String("detail", warn))
	}

	cacheClient := cache.New(cache.Config{
		Driver: cfg.Cache.Kind,
		Addr:   cfg.Cache.Redis.Addr,
		DB:     cfg.Cache.Redis.DB,
		Prefix: cfg.Cache.Redis.Prefix,
	})
	defer func() { _ = cacheClient.Close() }()

	sessions := session.NewManager(cacheClient, session.Options{
		CookieName: cfg.Session.CookieName,
		Secure:     cfg.Session.Secure,
		SameSite:   cfg.Session.SameSite,
		Domain:     cfg.Session.Domain,
		TTL:        cfg.SessionTTL(),
	})

	registry := oauth.NewRegistry(
		github.New(cfg.OAuth.GitHub.ClientID, cfg.OAuth.GitHub.ClientSecret),
		gitlab.New(cfg.OAuth.GitLab.ClientID, cfg.OAuth.GitLab.ClientSecret),
		bitbucket.New(cfg.OAuth.Bitbucket.ClientID, cfg.OAuth.Bitbucket.ClientSecret),
	)

	profiles := store.New(cfg.Store.BaseURL, cfg.Store.Token, cfg.Store.TableID)

	if err := metrics.Register(nil); err != nil {
		logger.L().Warn("metrics registration failed", logger.Err(err))
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		logger.L().Fatal("templates", logger.Err(err))
	}

	var loginLimiter rate.Limiter
	if cfg.RateLimit.Max > 0 {
		loginLimiter = rate.NewFixedWindow(cacheClient, "rl:auth:", cfg.RateLimit.Max, cfg.RateLimitWindow())
	}

	pages := &handlers.PagesHandler{Renderer: renderer}
	handler := router.New(router.Deps{
		Sessions: sessions,
		Auth: &handlers.AuthHandler{
			Registry:        registry,
			Sessions:        sessions,
			Store:           profiles,
			RedirectBaseURL: cfg.OAuth.RedirectBaseURL,
			DashboardURL:    cfg.OAuth.DashboardURL,
			NotFound:        pages.NotFound,
		},
		API:          &handlers.APIHandler{Sessions: sessions},
		Pages:        pages,
		LoginLimiter: loginLimiter,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.L().Info("server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.L().Fatal("server error", logger.Err(err))
	}
	logger.L().Info("server stopped")
}
