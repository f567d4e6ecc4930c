package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/dvloznov/budget-tracker/internal/infra/bigquery"
	"github.com/dvloznov/budget-tracker/internal/vault"
)

type fakeCredentialRepo struct {
	rows map[string]*bigquery.CredentialRow
	err  error
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{rows: make(map[string]*bigquery.CredentialRow)}
}

func (f *fakeCredentialRepo) UpsertCredential(_ context.Context, row *bigquery.CredentialRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows[row.UserID] = row
	return nil
}

func (f *fakeCredentialRepo) GetCredential(_ context.Context, userID string) (*bigquery.CredentialRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[userID], nil
}

func (f *fakeCredentialRepo) DeleteCredential(_ context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.rows, userID)
	return nil
}

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := vault.New(key)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	return v
}

func TestStoreRoundTrip(t *testing.T) {
	repo := newFakeCredentialRepo()
	store := NewStore(testVault(t), repo)
	ctx := context.Background()

	expiry := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	token := &oauth2.Token{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		Expiry:       expiry,
	}

	if err := store.Save(ctx, "user-1", token); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Ciphertext at rest, never plaintext.
	row := repo.rows["user-1"]
	if row.AccessToken == token.AccessToken || row.RefreshToken == token.RefreshToken {
		t.Fatal("tokens stored in plaintext")
	}
	if !row.Expiry.Valid || !row.Expiry.Timestamp.Equal(expiry) {
		t.Errorf("stored expiry = %+v, want %v", row.Expiry, expiry)
	}

	cred, err := store.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cred.AccessToken != token.AccessToken || cred.RefreshToken != token.RefreshToken {
		t.Errorf("Load = %+v, want original tokens", cred)
	}
	if cred.Expiry == nil || !cred.Expiry.Equal(expiry) {
		t.Errorf("Load expiry = %v, want %v", cred.Expiry, expiry)
	}
}

func TestStoreLoadNotConnected(t *testing.T) {
	store := NewStore(testVault(t), newFakeCredentialRepo())

	_, err := store.Load(context.Background(), "ghost")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Load = %v, want ErrNotConnected", err)
	}
}

func TestStoreLoadTamperedCiphertext(t *testing.T) {
	repo := newFakeCredentialRepo()
	store := NewStore(testVault(t), repo)
	ctx := context.Background()

	if err := store.Save(ctx, "user-1", &oauth2.Token{AccessToken: "tok"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	repo.rows["user-1"].AccessToken = "bm90IHJlYWwgY2lwaGVydGV4dA=="

	_, err := store.Load(ctx, "user-1")
	if err == nil {
		t.Fatal("expected error for tampered ciphertext")
	}
	if errors.Is(err, ErrNotConnected) {
		t.Fatal("tampered ciphertext must not read as not-connected")
	}
}

func TestStoreClear(t *testing.T) {
	repo := newFakeCredentialRepo()
	store := NewStore(testVault(t), repo)
	ctx := context.Background()

	if err := store.Save(ctx, "user-1", &oauth2.Token{AccessToken: "tok"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(ctx, "user-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := store.Load(ctx, "user-1"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Load after Clear = %v, want ErrNotConnected", err)
	}
}
