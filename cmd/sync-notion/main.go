package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/budget-tracker/internal/config"
	infraBQ "github.com/dvloznov/budget-tracker/internal/infra/bigquery"
	"github.com/dvloznov/budget-tracker/internal/logger"
	"github.com/dvloznov/budget-tracker/internal/notionsync"
)

func main() {
	log := logger.New("sync-notion")

	userID := flag.String("user", "", "User id whose transactions to export (required)")
	notionToken := flag.String("notion-token", "", "Notion API token (defaults to configured token)")
	notionDBID := flag.String("notion-db-id", "", "Notion database ID (defaults to configured database)")
	flag.Parse()

	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	token := *notionToken
	if token == "" {
		token = cfg.NotionToken
	}
	dbID := *notionDBID
	if dbID == "" {
		dbID = cfg.NotionDatabaseID
	}
	if token == "" {
		log.Fatal().Msg("Error: --notion-token is required when no token is configured")
	}
	if dbID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required when no database is configured")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewRepository(ctx, cfg.ProjectID, cfg.DatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	notionClient := notionsync.NewNotionClient(token)

	created, err := notionsync.ExportTransactions(ctx, repo, notionClient, dbID, *userID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	fmt.Printf("Export completed, %d pages created.\n", created)
}
