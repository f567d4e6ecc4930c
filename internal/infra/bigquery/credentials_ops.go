package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// UpsertCredential stores or replaces a user's encrypted token pair.
// Unlike transactions, credentials do update in place: a refreshed
// access token must overwrite the stale one.
func UpsertCredential(ctx context.Context, projectID, datasetID string, row *CredentialRow) error {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("UpsertCredential: bigquery client: %w", err)
	}
	defer client.Close()

	return UpsertCredentialWithClient(ctx, client, datasetID, row)
}

// UpsertCredentialWithClient is UpsertCredential with a shared client.
func UpsertCredentialWithClient(ctx context.Context, client *bigquery.Client, datasetID string, row *CredentialRow) error {
	q := client.Query(fmt.Sprintf(`
		MERGE %s.%s c
		USING (SELECT @user_id AS user_id) s
		ON c.user_id = s.user_id
		WHEN MATCHED THEN UPDATE SET
			access_token = @access_token,
			refresh_token = @refresh_token,
			scope = @scope,
			expiry = @expiry,
			updated_ts = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN INSERT (
			user_id, access_token, refresh_token, scope, expiry, created_ts
		) VALUES (
			@user_id, @access_token, @refresh_token, @scope, @expiry, CURRENT_TIMESTAMP()
		)
	`, datasetID, credentialsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: row.UserID},
		{Name: "access_token", Value: row.AccessToken},
		{Name: "refresh_token", Value: row.RefreshToken},
		{Name: "scope", Value: row.Scope},
		{Name: "expiry", Value: row.Expiry},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("UpsertCredential: run merge: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("UpsertCredential: wait merge: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("UpsertCredential: merge failed: %w", err)
	}
	return nil
}

// GetCredential loads a user's encrypted credential row, or nil when
// the user has never connected a mailbox.
func GetCredential(ctx context.Context, projectID, datasetID, userID string) (*CredentialRow, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("GetCredential: bigquery client: %w", err)
	}
	defer client.Close()

	return GetCredentialWithClient(ctx, client, datasetID, userID)
}

// GetCredentialWithClient is GetCredential with a shared client.
func GetCredentialWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string) (*CredentialRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT user_id, access_token, refresh_token, scope, expiry, created_ts, updated_ts
		FROM %s.%s
		WHERE user_id = @user_id
		LIMIT 1
	`, datasetID, credentialsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetCredential: query read: %w", err)
	}

	var row CredentialRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetCredential: iter next: %w", err)
	}
	return &row, nil
}

// ListConnectedUsers returns the ids of every user with a stored
// credential. The worker uses this to schedule periodic top-up imports.
func ListConnectedUsers(ctx context.Context, projectID, datasetID string) ([]string, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("ListConnectedUsers: bigquery client: %w", err)
	}
	defer client.Close()

	return ListConnectedUsersWithClient(ctx, client, datasetID)
}

// ListConnectedUsersWithClient is ListConnectedUsers with a shared client.
func ListConnectedUsersWithClient(ctx context.Context, client *bigquery.Client, datasetID string) ([]string, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT user_id FROM %s.%s ORDER BY user_id
	`, datasetID, credentialsTable))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListConnectedUsers: query read: %w", err)
	}

	var userIDs []string
	for {
		var row struct {
			UserID string `bigquery:"user_id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListConnectedUsers: iter next: %w", err)
		}
		userIDs = append(userIDs, row.UserID)
	}
	return userIDs, nil
}

// DeleteCredential removes a user's stored tokens (disconnect flow).
func DeleteCredential(ctx context.Context, projectID, datasetID, userID string) error {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("DeleteCredential: bigquery client: %w", err)
	}
	defer client.Close()

	return DeleteCredentialWithClient(ctx, client, datasetID, userID)
}

// DeleteCredentialWithClient is DeleteCredential with a shared client.
func DeleteCredentialWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string) error {
	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s.%s WHERE user_id = @user_id
	`, datasetID, credentialsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("DeleteCredential: run delete: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("DeleteCredential: wait delete: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("DeleteCredential: delete failed: %w", err)
	}
	return nil
}
