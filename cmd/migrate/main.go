// Command migrate bootstraps the BigQuery dataset and tables the
// import pipeline writes to. Statements are CREATE IF NOT EXISTS, so
// re-running against a live dataset is safe.
package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/budget-tracker/internal/logger"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS ` + "`{{DATASET}}.transactions`" + ` (
		transaction_id   STRING NOT NULL,
		user_id          STRING NOT NULL,
		message_id       STRING NOT NULL,
		thread_id        STRING,
		name             STRING NOT NULL,
		merchant         STRING,
		amount           NUMERIC,
		currency         STRING,
		transaction_date DATE,
		occurred_ts      TIMESTAMP NOT NULL,
		category         STRING,
		source           STRING NOT NULL,
		created_ts       TIMESTAMP NOT NULL,
		updated_ts       TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS ` + "`{{DATASET}}.mail_credentials`" + ` (
		user_id       STRING NOT NULL,
		access_token  STRING NOT NULL,
		refresh_token STRING NOT NULL,
		scope         STRING,
		expiry        TIMESTAMP,
		created_ts    TIMESTAMP NOT NULL,
		updated_ts    TIMESTAMP
	)`,
}

func main() {
	log := logger.New("migrate")

	projectID := flag.String("project", "", "GCP project ID (required)")
	datasetID := flag.String("dataset", "budget", "BigQuery dataset ID")
	location := flag.String("location", "US", "Dataset location, used only on creation")
	flag.Parse()

	if *projectID == "" {
		log.Fatal().Msg("Error: --project is required")
	}

	ctx := context.Background()

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	if err := ensureDataset(ctx, client, *datasetID, *location); err != nil {
		log.Fatal().Err(err).Str("dataset", *datasetID).Msg("Failed to ensure dataset")
	}

	qualified := fmt.Sprintf("%s.%s", *projectID, *datasetID)
	for i, stmt := range statements {
		sql := strings.ReplaceAll(stmt, "{{DATASET}}", qualified)
		if err := runStatement(ctx, client, sql); err != nil {
			log.Fatal().Err(err).Int("statement", i+1).Msg("Migration failed")
		}
	}

	log.Info().
		Str("project", *projectID).
		Str("dataset", *datasetID).
		Int("statements", len(statements)).
		Msg("Schema is up to date")
}

func ensureDataset(ctx context.Context, client *bigquery.Client, datasetID, location string) error {
	ds := client.Dataset(datasetID)
	if _, err := ds.Metadata(ctx); err == nil {
		return nil
	}
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: location}); err != nil {
		return fmt.Errorf("ensureDataset: %w", err)
	}
	return nil
}

func runStatement(ctx context.Context, client *bigquery.Client, sql string) error {
	job, err := client.Query(sql).Run(ctx)
	if err != nil {
		return fmt.Errorf("runStatement: run: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("runStatement: wait: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("runStatement: job: %w", err)
	}
	return nil
}
