// Package credentials persists OAuth token pairs encrypted at rest.
// It is the only place where vault ciphertext and plaintext tokens
// meet: callers above see plaintext, the store below sees ciphertext.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	bq "cloud.google.com/go/bigquery"
	"golang.org/x/oauth2"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/infra/bigquery"
	"github.com/dvloznov/budget-tracker/internal/vault"
)

// ErrNotConnected means the user has never connected a mailbox, or
// has disconnected it.
var ErrNotConnected = errors.New("credentials: no mailbox connected")

// CredentialRepository is the persistence surface the store needs.
type CredentialRepository interface {
	UpsertCredential(ctx context.Context, row *bigquery.CredentialRow) error
	GetCredential(ctx context.Context, userID string) (*bigquery.CredentialRow, error)
	DeleteCredential(ctx context.Context, userID string) error
}

// Store encrypts tokens on the way in and decrypts on the way out.
type Store struct {
	vault *vault.Vault
	repo  CredentialRepository
}

// NewStore builds a Store over the given vault and repository.
func NewStore(v *vault.Vault, repo CredentialRepository) *Store {
	return &Store{vault: v, repo: repo}
}

// Save encrypts and persists a token pair for the user.
func (s *Store) Save(ctx context.Context, userID string, token *oauth2.Token) error {
	access, err := s.vault.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("Save: encrypting access token: %w", err)
	}
	refresh, err := s.vault.Encrypt(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("Save: encrypting refresh token: %w", err)
	}

	row := &bigquery.CredentialRow{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		CreatedTS:    time.Now().UTC(),
	}
	if !token.Expiry.IsZero() {
		row.Expiry = bq.NullTimestamp{Timestamp: token.Expiry.UTC(), Valid: true}
	}

	if err := s.repo.UpsertCredential(ctx, row); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Load returns the user's decrypted credential, or ErrNotConnected.
// A decryption failure is not ErrNotConnected: it means the vault key
// changed or the row was tampered with, and surfaces as-is.
func (s *Store) Load(ctx context.Context, userID string) (*domain.Credential, error) {
	row, err := s.repo.GetCredential(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	if row == nil {
		return nil, ErrNotConnected
	}

	access, err := s.vault.Decrypt(row.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("Load: decrypting access token: %w", err)
	}
	refresh, err := s.vault.Decrypt(row.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("Load: decrypting refresh token: %w", err)
	}

	cred := &domain.Credential{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		Scope:        row.Scope,
	}
	if row.Expiry.Valid {
		expiry := row.Expiry.Timestamp
		cred.Expiry = &expiry
	}
	return cred, nil
}

// Clear removes the user's stored tokens.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if err := s.repo.DeleteCredential(ctx, userID); err != nil {
		return fmt.Errorf("Clear: %w", err)
	}
	return nil
}
