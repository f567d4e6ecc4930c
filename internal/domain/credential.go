package domain

import "time"

// Credential is a user's OAuth token pair for the mail provider.
// At rest both tokens are vault-encrypted blobs; the import pipeline
// decrypts them transiently for the duration of one client session.
type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	Scope        string
	Expiry       *time.Time
}
