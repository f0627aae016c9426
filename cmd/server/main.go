package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesa-digital/api/internal/config"
	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/events"
	"github.com/mesa-digital/api/internal/jobs"
	"github.com/mesa-digital/api/internal/logging"
	mw "github.com/mesa-digital/api/internal/middleware"
	"github.com/mesa-digital/api/internal/router"
	"github.com/mesa-digital/api/internal/service"
	"github.com/mesa-digital/api/internal/storage"
	"github.com/mesa-digital/api/internal/ws"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.Setup(logging.Options{
		Production: cfg.IsProduction(),
		Level:      cfg.LogLevel,
		Filename:   cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	zap.L().Info("connected to database")

	queries := database.New(pool)
	hub := ws.NewHub()

	publishers := events.Multi{events.NewHubPublisher(hub)}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.DialAMQP(cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer amqpPublisher.Close()
		publishers = append(publishers, amqpPublisher)
		zap.L().Info("publishing events to amqp", zap.String("exchange", events.Exchange))
	}

	var uploader storage.Uploader
	if cfg.AWSS3Bucket != "" {
		s3, err := storage.NewS3(ctx, storage.S3Options{
			Region:          cfg.AWSRegion,
			Bucket:          cfg.AWSS3Bucket,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Endpoint:        cfg.AWSEndpoint,
		})
		if err != nil {
			return fmt.Errorf("setup s3: %w", err)
		}
		uploader = s3
	} else {
		zap.L().Info("AWS_S3_BUCKET not set, product image upload disabled")
	}

	var limiter *mw.RateLimiter
	var sweeper jobs.Sweeper
	if cfg.PublicRateLimit > 0 {
		limiter = mw.NewRateLimiter(cfg.PublicRateLimit)
		sweeper = limiter
	}

	sessions := service.NewSessionService(pool, func(db database.DBTX) service.SessionStore {
		return database.New(db)
	}, cfg.JWTSecret)
	scheduler, err := jobs.New(cfg.TokenCleanupSchedule, sessions, sweeper)
	if err != nil {
		return err
	}

	r := router.New(cfg, router.Deps{
		Queries:   queries,
		DB:        pool,
		Hub:       hub,
		Publisher: publishers,
		Uploader:  uploader,
		Limiter:   limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		scheduler.Stop(stopCtx)
		return nil
	})

	g.Go(func() error {
		zap.L().Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.GoEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
