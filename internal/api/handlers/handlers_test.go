package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/dvloznov/budget-tracker/internal/credentials"
	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/gmail"
	"github.com/dvloznov/budget-tracker/internal/infra/bigquery"
	"github.com/dvloznov/budget-tracker/internal/jobs"
)

type fakeRunner struct {
	imported int64
	err      error
	lastMode domain.ImportMode
}

func (f *fakeRunner) RunImport(_ context.Context, _ string, mode domain.ImportMode) (int64, error) {
	f.lastMode = mode
	return f.imported, f.err
}

type fakePublisher struct {
	published []*jobs.ImportMailJob
	err       error
}

func (f *fakePublisher) PublishImportMail(_ context.Context, job *jobs.ImportMailJob) error {
	if f.err != nil {
		return f.err
	}
	job.JobID = "job-1"
	job.Status = jobs.JobStatusPending
	f.published = append(f.published, job)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestRunImportSync(t *testing.T) {
	runner := &fakeRunner{imported: 3}
	h := NewImportsHandler(runner, &fakePublisher{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/imports",
		strings.NewReader(`{"user_id":"user-1","mode":"backfill"}`))
	h.RunImport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["imported"] != 3 {
		t.Errorf("imported = %d, want 3", body["imported"])
	}
	if runner.lastMode != domain.ModeBackfill {
		t.Errorf("mode = %s, want backfill", runner.lastMode)
	}
}

func TestRunImportDefaultsToRecent(t *testing.T) {
	runner := &fakeRunner{}
	h := NewImportsHandler(runner, &fakePublisher{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/imports",
		strings.NewReader(`{"user_id":"user-1"}`))
	h.RunImport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if runner.lastMode != domain.ModeRecent {
		t.Errorf("mode = %s, want recent", runner.lastMode)
	}
}

func TestRunImportErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			"auth failure",
			&gmail.AuthError{Op: "ListMessageIDs", Err: errors.New("revoked")},
			http.StatusUnauthorized,
			"Reconnect required",
		},
		{
			"never connected",
			credentials.ErrNotConnected,
			http.StatusUnauthorized,
			"Reconnect required",
		},
		{
			"provider down",
			&gmail.TransientError{Op: "GetMessage", Err: errors.New("503")},
			http.StatusServiceUnavailable,
			"Temporarily unavailable",
		},
		{
			"anything else",
			errors.New("merge exploded"),
			http.StatusInternalServerError,
			"Import failed, try again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewImportsHandler(&fakeRunner{err: tt.err}, &fakePublisher{}, zerolog.Nop())
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/imports",
				strings.NewReader(`{"user_id":"user-1","mode":"recent"}`))
			h.RunImport(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			_ = json.NewDecoder(rec.Body).Decode(&body)
			if body["error"] != tt.wantMsg {
				t.Errorf("error = %q, want %q", body["error"], tt.wantMsg)
			}
		})
	}
}

func TestRunImportValidation(t *testing.T) {
	h := NewImportsHandler(&fakeRunner{}, &fakePublisher{}, zerolog.Nop())

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing user", `{"mode":"recent"}`},
		{"unknown mode", `{"user_id":"u","mode":"hourly"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(tt.body))
			h.RunImport(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRunImportAsync(t *testing.T) {
	pub := &fakePublisher{}
	h := NewImportsHandler(&fakeRunner{}, pub, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/imports",
		strings.NewReader(`{"user_id":"user-1","mode":"backfill","async":true}`))
	h.RunImport(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(pub.published) != 1 || pub.published[0].Mode != domain.ModeBackfill {
		t.Errorf("published = %+v, want one backfill job", pub.published)
	}
}

type fakeOAuth struct {
	token *oauth2.Token
	err   error
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeOAuth) Exchange(context.Context, string) (*oauth2.Token, error) {
	return f.token, f.err
}

type fakeCredStore struct {
	saved   map[string]*oauth2.Token
	cleared []string
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{saved: make(map[string]*oauth2.Token)}
}

func (f *fakeCredStore) Save(_ context.Context, userID string, token *oauth2.Token) error {
	f.saved[userID] = token
	return nil
}

func (f *fakeCredStore) Clear(_ context.Context, userID string) error {
	f.cleared = append(f.cleared, userID)
	return nil
}

func TestAuthConnectFlow(t *testing.T) {
	store := newFakeCredStore()
	h := NewAuthHandler(&fakeOAuth{token: &oauth2.Token{AccessToken: "tok"}}, store, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ConnectURL(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google/url?user_id=user-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ConnectURL status = %d", rec.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if !strings.Contains(body["url"], "state=user-1") {
		t.Errorf("url = %q, want state carrying user id", body["url"])
	}

	rec = httptest.NewRecorder()
	h.Callback(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state=user-1&code=abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Callback status = %d", rec.Code)
	}
	if store.saved["user-1"] == nil {
		t.Error("callback did not store the token")
	}

	rec = httptest.NewRecorder()
	h.Disconnect(rec, httptest.NewRequest(http.MethodDelete, "/api/auth/google?user_id=user-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Disconnect status = %d", rec.Code)
	}
	if len(store.cleared) != 1 || store.cleared[0] != "user-1" {
		t.Errorf("cleared = %v, want [user-1]", store.cleared)
	}
}

func TestAuthCallbackExchangeFails(t *testing.T) {
	h := NewAuthHandler(&fakeOAuth{err: errors.New("invalid_grant")}, newFakeCredStore(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Callback(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state=user-1&code=bad", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

type fakeTxnReader struct {
	rows         []*bigquery.TransactionRow
	lastCategory string
}

func (f *fakeTxnReader) QueryTransactionsByUser(_ context.Context, _ string, category string) ([]*bigquery.TransactionRow, error) {
	f.lastCategory = category
	return f.rows, nil
}

func TestListTransactions(t *testing.T) {
	reader := &fakeTxnReader{rows: []*bigquery.TransactionRow{
		{TransactionID: "t1", UserID: "user-1", MessageID: "m1"},
	}}
	h := NewTransactionsHandler(reader, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListTransactions(rec, httptest.NewRequest(http.MethodGet, "/api/transactions?user_id=user-1&category=food", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if reader.lastCategory != "food" {
		t.Errorf("category = %q, want food", reader.lastCategory)
	}

	rec = httptest.NewRecorder()
	h.ListTransactions(rec, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id status = %d, want 400", rec.Code)
	}
}
