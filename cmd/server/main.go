package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	authhttp "github.com/Skotchmaster/retro_games/internal/auth/httpserver"
	authrepo "github.com/Skotchmaster/retro_games/internal/auth/repo"
	authsvc "github.com/Skotchmaster/retro_games/internal/auth/service"
	cataloghttp "github.com/Skotchmaster/retro_games/internal/catalog/httpserver"
	catalogrepo "github.com/Skotchmaster/retro_games/internal/catalog/repo"
	"github.com/Skotchmaster/retro_games/internal/catalog/search"
	catalogsvc "github.com/Skotchmaster/retro_games/internal/catalog/service"
	checkouthttp "github.com/Skotchmaster/retro_games/internal/checkout/httpserver"
	checkoutrepo "github.com/Skotchmaster/retro_games/internal/checkout/repo"
	checkoutsvc "github.com/Skotchmaster/retro_games/internal/checkout/service"
	"github.com/Skotchmaster/retro_games/internal/config"
	enthttp "github.com/Skotchmaster/retro_games/internal/entitlement/httpserver"
	entrepo "github.com/Skotchmaster/retro_games/internal/entitlement/repo"
	entsvc "github.com/Skotchmaster/retro_games/internal/entitlement/service"
	gamerequesthttp "github.com/Skotchmaster/retro_games/internal/gamerequest/httpserver"
	gamerequestrepo "github.com/Skotchmaster/retro_games/internal/gamerequest/repo"
	gamerequestsvc "github.com/Skotchmaster/retro_games/internal/gamerequest/service"
	httpserver "github.com/Skotchmaster/retro_games/internal/transport/http"
	pkgconfig "github.com/Skotchmaster/retro_games/pkg/config"
	pkgdb "github.com/Skotchmaster/retro_games/pkg/db"
	"github.com/Skotchmaster/retro_games/pkg/es"
	"github.com/Skotchmaster/retro_games/pkg/events"
	"github.com/Skotchmaster/retro_games/pkg/logging"
	"github.com/Skotchmaster/retro_games/pkg/metrics"
	authmw "github.com/Skotchmaster/retro_games/pkg/middleware/auth"
	csrfmw "github.com/Skotchmaster/retro_games/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/retro_games/pkg/middleware/logging"
	"github.com/Skotchmaster/retro_games/pkg/ratelimit"
	memorylimiter "github.com/Skotchmaster/retro_games/pkg/ratelimit/memory"
	redislimiter "github.com/Skotchmaster/retro_games/pkg/ratelimit/redis"
)

func main() {
	pkgconfig.LoadDotEnv()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server_exit", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := config.InitDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	defer func() {
		if err := pkgdb.Close(db); err != nil {
			log.Error("db_close_error", "error", err)
		}
	}()

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		prod, err := events.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			return err
		}
		defer func() {
			if err := prod.Close(); err != nil {
				log.Error("kafka_close_error", "error", err)
			}
		}()
		publisher = prod
		log.Info("kafka_enabled", "brokers", cfg.KafkaBrokers)
	}

	var searcher catalogsvc.Searcher
	if cfg.ESURL != "" {
		client, err := es.NewClient(ctx, es.Config{URL: cfg.ESURL, Username: cfg.ESUser, Password: cfg.ESPassword})
		if err != nil {
			log.Error("elasticsearch_unavailable", "error", err)
		} else {
			idx := search.New(client, cfg.ESIndex)
			if err := idx.EnsureIndex(ctx); err != nil {
				log.Error("elasticsearch_index_error", "index", cfg.ESIndex, "error", err)
			}
			searcher = idx
		}
	}

	limits := map[string]ratelimit.Limit{
		httpserver.ValidateBucket: {Limit: cfg.ValidateRateLimit, Window: cfg.ValidateRateWindow},
	}
	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		rdb, err := redislimiter.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer closeRedis(rdb, log)
		limiter = redislimiter.New(rdb, cfg.ServiceName+":ratelimit", limits)
	} else {
		mem := memorylimiter.New(limits)
		go sweep(ctx, mem)
		limiter = mem
	}

	m := metrics.New()

	auth := &authsvc.AuthService{
		Repo:          &authrepo.GormRepo{DB: db},
		JWTSecret:     cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	}
	catalog := &catalogsvc.CatalogService{Repo: &catalogrepo.GormRepo{DB: db}, Search: searcher, Events: publisher}
	ents := &entsvc.Service{Repo: &entrepo.GormRepo{DB: db}, Events: publisher, Metrics: m}
	checkout := &checkoutsvc.Service{
		Repo:               &checkoutrepo.GormRepo{DB: db},
		Entitlements:       ents,
		Events:             publisher,
		Metrics:            m,
		SubscriptionPeriod: cfg.SubscriptionPeriod,
	}
	requests := &gamerequestsvc.Service{Repo: &gamerequestrepo.GormRepo{DB: db}, Catalog: catalog, Events: publisher}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.CORSOrigins,
			AllowCredentials: true,
		}))
	}
	e.Use(loggingmw.RequestLogger(log, loggingmw.Options{SkipPaths: []string{"/health/live", "/health/ready", "/metrics"}}))
	e.Use(m.Middleware())
	if cfg.CSRFEnabled {
		e.Use(csrfmw.Middleware(csrfmw.Config{
			Secure: cfg.CookieSecure,
			SkipPaths: []string{
				"/api/v1/auth/login",
				"/api/v1/auth/register",
				"/api/v1/tokens/validate",
				"/api/v1/tokens/revoke",
			},
		}))
	}

	authMW := authmw.New(cfg.JWTAccessSecret, auth)
	authMW.InsecureCookies = !cfg.CookieSecure

	httpserver.Register(e, &httpserver.Deps{
		DB:                 db,
		Auth:               authMW,
		Limiter:            limiter,
		Metrics:            m,
		AuthHandler:        &authhttp.AuthHTTP{Svc: auth, InsecureCookies: !cfg.CookieSecure},
		CatalogHandler:     &cataloghttp.CatalogHTTP{Svc: catalog},
		CheckoutHandler:    &checkouthttp.CheckoutHTTP{Svc: checkout},
		EntitlementHandler: &enthttp.EntitlementHTTP{Svc: ents},
		GameRequestHandler: &gamerequesthttp.GameRequestHTTP{Svc: requests},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http_listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown_error", "error", err)
	}
	log.Info("shutdown_complete")
	return nil
}

func sweep(ctx context.Context, l *memorylimiter.Limiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

func closeRedis(rdb *redis.Client, log *slog.Logger) {
	if err := rdb.Close(); err != nil {
		log.Error("redis_close_error", "error", err)
	}
}
