// Package bigquery is the persistence layer. Imported transactions
// and encrypted mail credentials live in one BigQuery dataset; all
// writes go through parameterized DML so re-running an import is safe.
package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

const (
	transactionsTable = "transactions"
	credentialsTable  = "mail_credentials"
)

// TransactionRow is the persisted shape of an imported transaction.
// (user_id, message_id) is the dedup key: one row per source message
// per user, ever.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	UserID    string `bigquery:"user_id"`    // REQUIRED, dedup key
	MessageID string `bigquery:"message_id"` // REQUIRED, dedup key
	ThreadID  string `bigquery:"thread_id"`  // NULLABLE

	Name     string              `bigquery:"name"`     // REQUIRED
	Merchant bigquery.NullString `bigquery:"merchant"` // NULLABLE

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC
	Currency string   `bigquery:"currency"` // REQUIRED STRING

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	OccurredTS      time.Time  `bigquery:"occurred_ts"`      // REQUIRED

	Category bigquery.NullString `bigquery:"category"` // NULLABLE, user-editable
	Source   string              `bigquery:"source"`   // REQUIRED

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

// transactionMergeRow is the UNNEST source for the insert-if-absent
// merge. Kept separate from TransactionRow so the merge never carries
// user-editable columns it must not touch.
type transactionMergeRow struct {
	TransactionID   string     `bigquery:"transaction_id"`
	UserID          string     `bigquery:"user_id"`
	MessageID       string     `bigquery:"message_id"`
	ThreadID        string     `bigquery:"thread_id"`
	Name            string     `bigquery:"name"`
	Merchant        string     `bigquery:"merchant"`
	Amount          *big.Rat   `bigquery:"amount"`
	Currency        string     `bigquery:"currency"`
	TransactionDate civil.Date `bigquery:"transaction_date"`
	OccurredTS      time.Time  `bigquery:"occurred_ts"`
	Source          string     `bigquery:"source"`
	CreatedTS       time.Time  `bigquery:"created_ts"`
}
