// Package main runs the TurnTable API server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/turntable-ai/turntable/internal/app"
	"github.com/turntable-ai/turntable/internal/app/httpapi"
	"github.com/turntable-ai/turntable/internal/app/storage/postgres"
	supastore "github.com/turntable-ai/turntable/internal/app/storage/supabase"
	"github.com/turntable-ai/turntable/internal/clients/google"
	"github.com/turntable-ai/turntable/internal/clients/openai"
	"github.com/turntable-ai/turntable/internal/clients/resend"
	"github.com/turntable-ai/turntable/internal/clients/stripe"
	"github.com/turntable-ai/turntable/internal/config"
	"github.com/turntable-ai/turntable/internal/cron"
	"github.com/turntable-ai/turntable/internal/middleware"
	"github.com/turntable-ai/turntable/internal/platform/migrations"
	"github.com/turntable-ai/turntable/pkg/logger"
	"github.com/turntable-ai/turntable/supabase/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).WithField("component", "server")

	// Outbound clients. The AI generator stays nil without an API key so the
	// sales analyzer falls back to its canned summary instead of erroring.
	var text app.TextGenerator
	if cfg.OpenAI.APIKey != "" {
		text = openai.New(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		})
	} else {
		log.Warn("OPENAI_API_KEY not set; AI generation disabled")
	}

	mailer := resend.New(resend.Config{
		APIKey: cfg.Resend.APIKey,
		From:   cfg.Resend.From,
		Logger: log,
	})

	googleClient := google.New(google.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURI:  cfg.Google.RedirectURI,
	})

	stripeClient := stripe.New(stripe.Config{SecretKey: cfg.Stripe.SecretKey})

	// Persistence: Supabase when configured, else Postgres, else memory.
	stores, supa, err := buildStores(cfg, log)
	if err != nil {
		return err
	}

	thresholds := config.LoadAlertThresholdsOrDefault(filepath.Join("config", "alerts.yaml"))

	application := app.New(stores, app.Deps{
		Text:       text,
		Mailer:     mailer,
		Google:     googleClient,
		Stripe:     stripeClient,
		AppBaseURL: cfg.AppBaseURL,
		Thresholds: thresholds,
	}, log)

	handler := httpapi.NewHandler(httpapi.Config{
		App:                 application,
		Limiter:             buildLimiter(cfg, log),
		Verifier:            buildVerifier(cfg, supa, log),
		CronSecret:          cfg.CronSecret,
		AppBaseURL:          cfg.AppBaseURL,
		StripeWebhookSecret: cfg.Stripe.WebhookSecret,
		Logger:              log,
	})

	var trigger *cron.Trigger
	if cfg.CronSecret != "" && cfg.CronSchedule != "" {
		trigger, err = cron.NewTrigger(cfg.CronSchedule, cfg.AppBaseURL, cfg.CronSecret, log)
		if err != nil {
			return fmt.Errorf("configure cron: %w", err)
		}
		trigger.Start()
	} else {
		log.Warn("CRON_SECRET or CRON_POLL_SCHEDULE not set; scheduled polling disabled")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if trigger != nil {
		trigger.Stop(ctx)
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, *client.Client, error) {
	if cfg.Supabase.URL != "" && cfg.Supabase.ServiceKey != "" {
		c, err := client.New(client.Config{URL: cfg.Supabase.URL, APIKey: cfg.Supabase.ServiceKey})
		if err != nil {
			return app.Stores{}, nil, fmt.Errorf("supabase client: %w", err)
		}
		store := supastore.New(c)
		log.Info("using supabase storage")
		return app.Stores{
			Connections: store,
			Reviews:     store,
			Replies:     store,
			Voices:      store,
			Billing:     store,
		}, c, nil
	}

	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return app.Stores{}, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := migrations.Apply(db); err != nil {
			return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
		}
		store := postgres.New(db)
		log.Info("using postgres storage")
		return app.Stores{
			Connections: store,
			Reviews:     store,
			Replies:     store,
			Voices:      store,
			Billing:     store,
		}, nil, nil
	}

	log.Warn("no SUPABASE_URL or POSTGRES_DSN configured; using in-memory storage")
	return app.Stores{}, nil, nil
}

func buildLimiter(cfg *config.Config, log *logger.Logger) middleware.Limiter {
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.WithField("addr", cfg.RedisAddr).Info("using redis rate limiter")
		return middleware.NewRedisLimiter(rdb, cfg.RateLimit.Window, cfg.RateLimit.Limit, log)
	}
	return middleware.NewFixedWindowLimiter(cfg.RateLimit.Window, cfg.RateLimit.Limit)
}

func buildVerifier(cfg *config.Config, supa *client.Client, log *logger.Logger) middleware.TokenVerifier {
	if cfg.Supabase.JWTSecret != "" {
		return middleware.NewJWTVerifier(cfg.Supabase.JWTSecret)
	}
	if supa != nil {
		return middleware.NewSupabaseVerifier(supa)
	}
	log.Warn("SUPABASE_JWT_SECRET not set; authenticated routes are disabled")
	return nil
}
