package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/budget-tracker/internal/config"
	"github.com/dvloznov/budget-tracker/internal/credentials"
	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/extract"
	"github.com/dvloznov/budget-tracker/internal/gmail"
	"github.com/dvloznov/budget-tracker/internal/importer"
	infraBQ "github.com/dvloznov/budget-tracker/internal/infra/bigquery"
	"github.com/dvloznov/budget-tracker/internal/logger"
	"github.com/dvloznov/budget-tracker/internal/vault"
)

func main() {
	log := logger.New("import")

	userID := flag.String("user", "", "User id to import for (required)")
	modeStr := flag.String("mode", "recent", "Import mode: backfill or recent")
	flag.Parse()

	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}
	mode := domain.ImportMode(*modeStr)
	if !mode.Valid() {
		log.Fatal().Str("mode", *modeStr).Msg("Error: --mode must be backfill or recent")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// A backfill pages through a whole month of mail; give it room.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewRepository(ctx, cfg.ProjectID, cfg.DatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
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

	log.Info().
		Str("user_id", *userID).
		Str("mode", string(mode)).
		Msg("Starting import")

	imported, err := coordinator.RunImport(ctx, *userID, mode)
	if err != nil {
		var authErr *gmail.AuthError
		if errors.As(err, &authErr) || errors.Is(err, credentials.ErrNotConnected) {
			log.Error().Err(err).Msg("Mailbox authorization lost, reconnect via the API and retry")
			os.Exit(1)
		}
		log.Fatal().Err(err).Int64("imported", imported).Msg("Import failed")
	}

	fmt.Printf("Imported %d new transactions.\n", imported)
}
