package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

// MergeTransactions bulk-inserts extracted transactions that are not
// already present for the user, and returns how many rows were
// actually inserted. Existing rows are never touched: a user's edits
// and categorizations survive any re-import.
func MergeTransactions(ctx context.Context, projectID, datasetID, userID string, txns []*domain.ExtractedTransaction) (int64, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("MergeTransactions: bigquery client: %w", err)
	}
	defer client.Close()

	return MergeTransactionsWithClient(ctx, client, datasetID, userID, txns)
}

// MergeTransactionsWithClient is MergeTransactions with a shared
// client. Rows without an amount are rejected rather than silently
// skipped: the coordinator filters those out before persisting.
func MergeTransactionsWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string, txns []*domain.ExtractedTransaction) (int64, error) {
	if len(txns) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([]transactionMergeRow, 0, len(txns))
	for _, txn := range txns {
		if txn.Amount == nil {
			return 0, fmt.Errorf("MergeTransactions: message %s has no amount", txn.MessageID)
		}
		rows = append(rows, transactionMergeRow{
			TransactionID:   uuid.NewString(),
			UserID:          userID,
			MessageID:       txn.MessageID,
			ThreadID:        txn.ThreadID,
			Name:            txn.Name,
			Merchant:        txn.Merchant,
			Amount:          new(big.Rat).SetFloat64(*txn.Amount),
			Currency:        txn.Currency,
			TransactionDate: civil.DateOf(txn.OccurredAt),
			OccurredTS:      txn.OccurredAt.UTC(),
			Source:          txn.Source,
			CreatedTS:       now,
		})
	}

	q := client.Query(fmt.Sprintf(`
		MERGE %s.%s t
		USING UNNEST(@rows) s
		ON t.user_id = s.user_id AND t.message_id = s.message_id
		WHEN NOT MATCHED THEN INSERT (
			transaction_id, user_id, message_id, thread_id,
			name, merchant, amount, currency,
			transaction_date, occurred_ts, source, created_ts
		) VALUES (
			s.transaction_id, s.user_id, s.message_id, s.thread_id,
			s.name, s.merchant, s.amount, s.currency,
			s.transaction_date, s.occurred_ts, s.source, s.created_ts
		)
	`, datasetID, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "rows", Value: rows},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("MergeTransactions: run merge: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("MergeTransactions: wait merge: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("MergeTransactions: merge failed: %w", err)
	}

	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok && qs.DMLStats != nil {
		return qs.DMLStats.InsertedRowCount, nil
	}
	return 0, nil
}

// QueryTransactionsByUser lists a user's transactions, newest first,
// optionally filtered by category.
func QueryTransactionsByUser(ctx context.Context, projectID, datasetID, userID, category string) ([]*TransactionRow, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByUser: bigquery client: %w", err)
	}
	defer client.Close()

	return QueryTransactionsByUserWithClient(ctx, client, datasetID, userID, category)
}

// QueryTransactionsByUserWithClient is QueryTransactionsByUser with a
// shared client.
func QueryTransactionsByUserWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID, category string) ([]*TransactionRow, error) {
	query := fmt.Sprintf(`
		SELECT
			transaction_id, user_id, message_id, thread_id,
			name, merchant, amount, currency,
			transaction_date, occurred_ts, category, source,
			created_ts, updated_ts
		FROM %s.%s
		WHERE user_id = @user_id
	`, datasetID, transactionsTable)
	params := []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}
	if category != "" {
		query += "  AND category = @category\n"
		params = append(params, bigquery.QueryParameter{Name: "category", Value: category})
	}
	query += "\t\tORDER BY occurred_ts DESC, created_ts DESC"

	q := client.Query(query)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByUser: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsByUser: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
