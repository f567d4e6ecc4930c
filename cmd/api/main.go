package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/budget-tracker/internal/api/handlers"
	"github.com/dvloznov/budget-tracker/internal/api/middleware"
	"github.com/dvloznov/budget-tracker/internal/config"
	"github.com/dvloznov/budget-tracker/internal/credentials"
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
		port = flag.String("port", "8080", "HTTP server port")
	)
	flag.Parse()

	log := logger.New("api")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

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

	// Initialize job infrastructure for async imports
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 2, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		importJob, ok := job.(*jobs.ImportMailJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", importJob.JobID).
			Str("user_id", importJob.UserID).
			Str("mode", string(importJob.Mode)).
			Msg("Processing import job")

		imported, err := coordinator.RunImport(ctx, importJob.UserID, importJob.Mode)
		importJob.ImportedCount = imported
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", importJob.JobID).
				Str("user_id", importJob.UserID).
				Msg("Import job failed")
			return err
		}

		log.Info().
			Str("job_id", importJob.JobID).
			Int64("imported", imported).
			Msg("Import job completed")
		return nil
	}

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	importsHandler := handlers.NewImportsHandler(coordinator, jobQueue, log)
	authHandler := handlers.NewAuthHandler(mailClient, credStore, log)
	transactionsHandler := handlers.NewTransactionsHandler(repo, log)

	// Create router
	mux := http.NewServeMux()

	importRateLimit := middleware.RateLimit(6, 2, middleware.UserFromBody)
	mux.Handle("/api/imports", importRateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			importsHandler.RunImport(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})))

	mux.HandleFunc("/api/auth/google/url", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			authHandler.ConnectURL(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			authHandler.Callback(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/auth/google", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			authHandler.Disconnect(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			transactionsHandler.ListTransactions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", handlers.Health)

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // sync backfills page through a whole month
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
