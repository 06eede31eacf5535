package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"example.com/trackerimport/internal/auth"
	"example.com/trackerimport/internal/config"
	"example.com/trackerimport/internal/importer"
	"example.com/trackerimport/internal/ingest"
	"example.com/trackerimport/internal/logging"
	spg "example.com/trackerimport/internal/storage/postgres"
	transport "example.com/trackerimport/internal/transport/http"
)

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	return migrate(ctx, cfg, logger)
}

func migrate(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	db, err := spg.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	applied, err := db.RunMigrations(ctx)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	logger.Info("db: migrations applied", zap.Strings("files", applied))
	return nil
}

// RunServer serves the API until SIGINT or SIGTERM.
func RunServer(migrateFirst bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if migrateFirst {
		if err := migrate(ctx, cfg, logger); err != nil {
			return err
		}
	}

	db, err := spg.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	logger.Info("db: connected")

	now := func() time.Time { return time.Now().UTC() }
	updater := importer.NewUpdater(
		spg.NewContextLoader(db),
		spg.NewWriter(db),
		logger.Named("importer"),
		importer.NewUpdatePreProcessor(now),
	)

	ingestor := ingest.NewIngestor(updater, logger.Named("ingest"),
		cfg.QueueMaxSize, cfg.BatchMaxSize, cfg.BatchMaxWait, cfg.DedupWindow)
	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()
	ingestor.Start(ingestCtx)
	logger.Info("ingest: started",
		zap.Int("queue", cfg.QueueMaxSize),
		zap.Int("batch", cfg.BatchMaxSize),
		zap.Duration("wait", cfg.BatchMaxWait))

	deps := &transport.ServerDeps{
		Cfg:     cfg,
		Updater: updater,
		Queue:   ingestor,
		Stats:   db,
		DB:      db,
		Auth:    auth.NewBasicAuthenticator(spg.NewUserStore(db)),
		Logger:  logger,
		Now:     now,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case serveErr := <-errCh:
		err = fmt.Errorf("http server: %w", serveErr)
	case <-ctx.Done():
		shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		err = srv.Shutdown(shutdownCtx)
	}

	// handlers have returned, so nothing enqueues past this point
	stopIngest()
	ingestor.Wait()
	logger.Info("ingest: drained")
	return err
}
