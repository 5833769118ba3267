package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"agreeproof/agreement"
	"agreeproof/auth"
	"agreeproof/config"
	"agreeproof/db"
	"agreeproof/email"
	"agreeproof/proofstore"
	"agreeproof/ratelimit"
	"agreeproof/reminder"
	"agreeproof/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer sessions.Close()

	mailer := email.NewService(email.Config{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		From:        cfg.SMTPFrom,
		FromName:    cfg.SMTPFromName,
		FrontendURL: cfg.FrontendURL,
	})

	var notifier agreement.Notifier
	if mailer.IsConfigured() {
		notifier = mailer
	} else {
		log.Printf("smtp not configured, email notifications disabled")
	}

	agreementRepo := agreement.NewRepository(pool)
	agreementService := agreement.NewService(agreementRepo, notifier)
	authService := auth.NewService(auth.NewRepository(pool), sessions, cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)

	var proofs ProofStore
	if cfg.MinioAccessKey != "" {
		store, err := proofstore.New(ctx, proofstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("connect object storage: %v", err)
		}
		proofs = store
	} else {
		log.Printf("object storage not configured, proof uploads disabled")
	}

	sweeper := reminder.NewSweeper(agreementRepo, mailer)
	scheduler, err := reminder.NewScheduler(sweeper)
	if err != nil {
		log.Fatalf("build scheduler: %v", err)
	}

	server := &Server{
		agreements:  agreementService,
		auth:        authService,
		proofs:      proofs,
		sweeper:     sweeper,
		limiter:     ratelimit.New(sessions.Client(), "api", cfg.RateLimit, cfg.RateLimitWindow),
		authLimiter: ratelimit.New(sessions.Client(), "auth", cfg.AuthRateLimit, cfg.RateLimitWindow),
		corsOrigin:  cfg.CORSOrigin,
		cronToken:   cfg.CronToken,
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("api listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("shutdown complete")
}
