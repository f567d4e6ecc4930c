// Package notionsync exports imported transactions to a Notion
// database. Export is one-way and create-only: pages are keyed by the
// source message id, and pages a user has edited in Notion are never
// touched or deleted.
package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-tracker/internal/infra/bigquery"
)

// TransactionLister is the repository surface the sync needs.
type TransactionLister interface {
	QueryTransactionsByUser(ctx context.Context, userID, category string) ([]*bigquery.TransactionRow, error)
}

// ExportTransactions mirrors a user's transactions into the Notion
// database and returns how many pages were created. Already-exported
// messages are skipped, so repeated exports behave like the import
// itself: safe and incremental.
func ExportTransactions(ctx context.Context, repo TransactionLister, notionClient NotionService, notionDBID, userID string, log zerolog.Logger) (int, error) {
	transactions, err := repo.QueryTransactionsByUser(ctx, userID, "")
	if err != nil {
		return 0, fmt.Errorf("ExportTransactions: querying transactions: %w", err)
	}
	if len(transactions) == 0 {
		return 0, nil
	}

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return 0, fmt.Errorf("ExportTransactions: querying Notion pages: %w", err)
	}

	exported := make(map[string]bool)
	for _, page := range notionPages {
		if id := extractMessageID(page); id != "" {
			exported[id] = true
		}
	}

	var created, skipped int
	for _, tx := range transactions {
		if exported[tx.MessageID] {
			skipped++
			continue
		}

		page, err := notionClient.CreatePage(ctx, notionDBID, TransactionToNotionProperties(tx))
		if err != nil {
			log.Warn().
				Err(err).
				Str("transaction_id", tx.TransactionID).
				Str("message_id", tx.MessageID).
				Msg("Failed to create Notion page")
			continue
		}
		log.Info().
			Str("transaction_id", tx.TransactionID).
			Str("page_id", string(page.ID)).
			Msg("Created Notion page")
		created++
	}

	log.Info().
		Int("created", created).
		Int("skipped", skipped).
		Int("total", len(transactions)).
		Msg("Transaction export completed")

	return created, nil
}

// queryAllNotionPages queries all pages from a Notion database.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
