package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/dvloznov/budget-tracker/internal/api/middleware"
	"github.com/dvloznov/budget-tracker/internal/credentials"
	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/gmail"
	"github.com/dvloznov/budget-tracker/internal/infra/bigquery"
	"github.com/dvloznov/budget-tracker/internal/jobs"
)

// ImportRunner runs one import synchronously.
type ImportRunner interface {
	RunImport(ctx context.Context, userID string, mode domain.ImportMode) (int64, error)
}

// TransactionReader lists persisted transactions.
type TransactionReader interface {
	QueryTransactionsByUser(ctx context.Context, userID, category string) ([]*bigquery.TransactionRow, error)
}

// OAuthClient is the connect-flow surface of the mail client.
type OAuthClient interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// CredentialStore persists encrypted token pairs.
type CredentialStore interface {
	Save(ctx context.Context, userID string, token *oauth2.Token) error
	Clear(ctx context.Context, userID string) error
}

// ImportsHandler handles import-related endpoints.
type ImportsHandler struct {
	runner    ImportRunner
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(runner ImportRunner, publisher jobs.Publisher, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{
		runner:    runner,
		publisher: publisher,
		log:       log,
	}
}

// RunImport handles POST /api/imports.
//
// Synchronous by default: the response carries the count of newly
// inserted transactions. With "async": true the run is enqueued and
// the response carries the job id instead.
func (h *ImportsHandler) RunImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Mode   string `json:"mode"`
		Async  bool   `json:"async"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	mode := domain.ImportMode(req.Mode)
	if req.Mode == "" {
		mode = domain.ModeRecent
	}
	if !mode.Valid() {
		middleware.WriteError(w, http.StatusBadRequest, "mode must be backfill or recent")
		return
	}

	ctx := r.Context()

	if req.Async {
		job := &jobs.ImportMailJob{UserID: req.UserID, Mode: mode}
		if err := h.publisher.PublishImportMail(ctx, job); err != nil {
			h.log.Error().Err(err).Msg("Failed to enqueue import job")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue import")
			return
		}
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
			"job_id": job.JobID,
			"status": string(job.Status),
		})
		return
	}

	imported, err := h.runner.RunImport(ctx, req.UserID, mode)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Import failed")
		writeImportError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int64{"imported": imported})
}

// writeImportError maps the import error taxonomy onto user-facing
// responses. Internals stay in the logs; clients only need to know
// whether to reconnect, retry later, or just try again.
func writeImportError(w http.ResponseWriter, err error) {
	var authErr *gmail.AuthError
	if errors.As(err, &authErr) || errors.Is(err, credentials.ErrNotConnected) {
		middleware.WriteError(w, http.StatusUnauthorized, "Reconnect required")
		return
	}
	var transientErr *gmail.TransientError
	if errors.As(err, &transientErr) {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Temporarily unavailable")
		return
	}
	middleware.WriteError(w, http.StatusInternalServerError, "Import failed, try again")
}

// AuthHandler handles the mailbox connect flow.
type AuthHandler struct {
	oauth OAuthClient
	creds CredentialStore
	log   zerolog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(oauth OAuthClient, creds CredentialStore, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		oauth: oauth,
		creds: creds,
		log:   log,
	}
}

// ConnectURL handles GET /api/auth/google/url.
func (h *AuthHandler) ConnectURL(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"url": h.oauth.AuthCodeURL(userID),
	})
}

// Callback handles GET /api/auth/google/callback.
// The OAuth state carries the user id set by ConnectURL.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := query.Get("state")
	code := query.Get("code")
	if userID == "" || code == "" {
		middleware.WriteError(w, http.StatusBadRequest, "state and code are required")
		return
	}

	ctx := r.Context()
	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Token exchange failed")
		middleware.WriteError(w, http.StatusBadGateway, "Authorization failed, try connecting again")
		return
	}

	if err := h.creds.Save(ctx, userID, token); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to store credentials")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store credentials")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

// Disconnect handles DELETE /api/auth/google.
func (h *AuthHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.creds.Clear(r.Context(), userID); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to clear credentials")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to disconnect")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	repo TransactionReader
	log  zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo TransactionReader, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		repo: repo,
		log:  log,
	}
}

// ListTransactions handles GET /api/transactions.
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := query.Get("user_id")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	rows, err := h.repo.QueryTransactionsByUser(r.Context(), userID, query.Get("category"))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": rows,
		"count":        len(rows),
	})
}

// Health handles GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
