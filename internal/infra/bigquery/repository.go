package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

// Repository holds a shared BigQuery client so callers do not pay a
// connection per operation. Methods delegate to the WithClient
// functions.
type Repository struct {
	client    *bigquery.Client
	datasetID string
}

// NewRepository creates a Repository with a shared BigQuery client.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client, datasetID: datasetID}, nil
}

// Close releases the underlying client.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// MergeTransactions delegates to MergeTransactionsWithClient.
func (r *Repository) MergeTransactions(ctx context.Context, userID string, txns []*domain.ExtractedTransaction) (int64, error) {
	return MergeTransactionsWithClient(ctx, r.client, r.datasetID, userID, txns)
}

// QueryTransactionsByUser delegates to QueryTransactionsByUserWithClient.
func (r *Repository) QueryTransactionsByUser(ctx context.Context, userID, category string) ([]*TransactionRow, error) {
	return QueryTransactionsByUserWithClient(ctx, r.client, r.datasetID, userID, category)
}

// UpsertCredential delegates to UpsertCredentialWithClient.
func (r *Repository) UpsertCredential(ctx context.Context, row *CredentialRow) error {
	return UpsertCredentialWithClient(ctx, r.client, r.datasetID, row)
}

// GetCredential delegates to GetCredentialWithClient.
func (r *Repository) GetCredential(ctx context.Context, userID string) (*CredentialRow, error) {
	return GetCredentialWithClient(ctx, r.client, r.datasetID, userID)
}

// ListConnectedUsers delegates to ListConnectedUsersWithClient.
func (r *Repository) ListConnectedUsers(ctx context.Context) ([]string, error) {
	return ListConnectedUsersWithClient(ctx, r.client, r.datasetID)
}

// DeleteCredential delegates to DeleteCredentialWithClient.
func (r *Repository) DeleteCredential(ctx context.Context, userID string) error {
	return DeleteCredentialWithClient(ctx, r.client, r.datasetID, userID)
}
