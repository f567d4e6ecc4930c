package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-tracker/internal/config"
	"github.com/dvloznov/budget-tracker/internal/credentials"
	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/extract"
	"github.com/dvloznov/budget-tracker/internal/gmail"
	"github.com/dvloznov/budget-tracker/internal/importer"
	infraBQ "github.com/dvloznov/budget-tracker/internal/infra/bigquery"
	"github.com/dvloznov/budget-tracker/internal/jobs"
	"github.com/dvloznov/budget-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/budget-tracker/internal/logger"
	"github.com/dvloznov/budget-tracker/internal/vault"
)

func main() {
	var (
		interval = flag.Duration("interval", 6*time.Hour, "How often to enqueue recent imports for connected users")
	)
	flag.Parse()

	log := logger.New("worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := infraBQ.NewRepository(ctx, cfg.ProjectID, cfg.DatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	tokenVault, err := vault.New(cfg.VaultKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize vault")
	}
	credStore := credentials.NewStore(tokenVault, repo)

	mailClient := gmail.NewClient(gmail.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, log)

	coordinator := importer.New(
		mailClient,
		repo,
		credStore,
		extract.New(cfg.BaseCurrency, cfg.CreditKeywords),
		importer.Options{
			Query:            cfg.GmailQuery,
			RecentWindowDays: cfg.RecentWindowDays,
			RecentPageSize:   cfg.RecentPageSize,
		},
		log,
	)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 2, jobStore)

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		importJob, ok := job.(*jobs.ImportMailJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		imported, err := coordinator.RunImport(ctx, importJob.UserID, importJob.Mode)
		importJob.ImportedCount = imported
		if err != nil {
			return err
		}

		log.Info().
			Str("job_id", importJob.JobID).
			Str("user_id", importJob.UserID).
			Int64("imported", imported).
			Msg("Import job completed")
		return nil
	}

	log.Info().Msg("Starting job worker")
	if err := jobQueue.Start(ctx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	// Periodic top-up: enqueue a bounded recent import for every user
	// with a connected mailbox. Insert-if-absent persistence makes
	// overlap with user-triggered imports harmless.
	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		enqueueTopUps(ctx, repo, jobQueue, log)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				enqueueTopUps(ctx, repo, jobQueue, log)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Worker exited")
}

// enqueueTopUps publishes one recent-mode import job per connected user.
func enqueueTopUps(ctx context.Context, repo *infraBQ.Repository, publisher jobs.Publisher, log zerolog.Logger) {
	userIDs, err := repo.ListConnectedUsers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list connected users")
		return
	}

	for _, userID := range userIDs {
		job := &jobs.ImportMailJob{UserID: userID, Mode: domain.ModeRecent}
		if err := publisher.PublishImportMail(ctx, job); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to enqueue top-up import")
			continue
		}
		log.Info().
			Str("job_id", job.JobID).
			Str("user_id", userID).
			Msg("Enqueued recent import")
	}
}
