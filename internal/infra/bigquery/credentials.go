package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// CredentialRow stores one user's mail provider tokens. Token columns
// hold vault ciphertext, never plaintext; encryption happens above
// this layer.
type CredentialRow struct {
	UserID string `bigquery:"user_id"` // REQUIRED, one row per user

	AccessToken  string `bigquery:"access_token"`  // REQUIRED, encrypted
	RefreshToken string `bigquery:"refresh_token"` // NULLABLE, encrypted

	Scope  string                 `bigquery:"scope"`  // NULLABLE
	Expiry bigquery.NullTimestamp `bigquery:"expiry"` // NULLABLE

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}
