// Package importer orchestrates one mailbox import run: list
// candidate messages for the billing period, fetch and extract each
// one, then bulk-persist with an insert-if-absent merge.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-tracker/internal/domain"
	"github.com/dvloznov/budget-tracker/internal/gmail"
)

// RunState tracks where an import run is. Transitions are linear:
// Idle -> Listing -> Fetching -> Extracting -> Persisting -> Idle,
// with a jump to Failed on unrecoverable error at any stage.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateListing    RunState = "listing"
	StateFetching   RunState = "fetching"
	StateExtracting RunState = "extracting"
	StatePersisting RunState = "persisting"
	StateFailed     RunState = "failed"
)

// MailClient is the provider surface the coordinator drives.
type MailClient interface {
	ListMessageIDs(ctx context.Context, cred *domain.Credential, opts gmail.ListOptions) ([]string, error)
	GetMessage(ctx context.Context, cred *domain.Credential, id string) (*domain.RawMessage, error)
}

// TransactionStore persists extracted transactions idempotently and
// reports how many were newly inserted.
type TransactionStore interface {
	MergeTransactions(ctx context.Context, userID string, txns []*domain.ExtractedTransaction) (int64, error)
}

// CredentialSource yields a user's decrypted mail credential.
type CredentialSource interface {
	Load(ctx context.Context, userID string) (*domain.Credential, error)
}

// Extractor reduces one raw message to a candidate transaction.
type Extractor interface {
	Extract(msg *domain.RawMessage) (*domain.ExtractedTransaction, error)
}

// Options tunes a Coordinator.
type Options struct {
	// Query is the provider-side search filter for payment
	// notification senders and subjects.
	Query string
	// RecentWindowDays is the trailing window for recent-mode runs.
	RecentWindowDays int
	// RecentPageSize bounds the single page a recent-mode run lists.
	RecentPageSize int64
	// FetchWorkers bounds concurrent message detail fetches. The
	// provider's per-user rate limit makes unbounded fans unsafe.
	FetchWorkers int
}

// Coordinator runs imports. Safe for concurrent runs over different
// users; state is per-run, not per-Coordinator.
type Coordinator struct {
	client    MailClient
	store     TransactionStore
	creds     CredentialSource
	extractor Extractor
	opts      Options
	log       zerolog.Logger
	now       func() time.Time
}

// New builds a Coordinator.
func New(client MailClient, store TransactionStore, creds CredentialSource, extractor Extractor, opts Options, log zerolog.Logger) *Coordinator {
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = 4
	}
	if opts.RecentWindowDays <= 0 {
		opts.RecentWindowDays = 7
	}
	if opts.RecentPageSize <= 0 {
		opts.RecentPageSize = 25
	}
	return &Coordinator{
		client:    client,
		store:     store,
		creds:     creds,
		extractor: extractor,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// RunImport executes one import for the user and returns the number
// of newly inserted transactions. Re-running over an overlapping
// range is always safe: persistence is insert-if-absent keyed by
// (user, message id), so previously imported messages count zero.
//
// On auth failure or exhausted retries the run aborts; transactions
// already extracted before the failure are still flushed (the merge
// stays idempotent), and the returned count reflects what was
// actually inserted alongside the error.
func (c *Coordinator) RunImport(ctx context.Context, userID string, mode domain.ImportMode) (int64, error) {
	if !mode.Valid() {
		return 0, fmt.Errorf("RunImport: unknown mode %q", mode)
	}

	log := c.log.With().Str("user_id", userID).Str("mode", string(mode)).Logger()
	state := StateIdle
	setState := func(next RunState) {
		state = next
		log.Debug().Str("state", string(state)).Msg("import state")
	}

	cred, err := c.creds.Load(ctx, userID)
	if err != nil {
		setState(StateFailed)
		return 0, fmt.Errorf("RunImport: loading credential: %w", err)
	}

	setState(StateListing)
	ids, err := c.client.ListMessageIDs(ctx, cred, c.listOptions(mode))
	if err != nil {
		setState(StateFailed)
		return 0, fmt.Errorf("RunImport: listing messages: %w", err)
	}
	if len(ids) == 0 {
		setState(StateIdle)
		return 0, nil
	}

	setState(StateFetching)
	setState(StateExtracting)
	extracted, fetchErr := c.fetchAndExtract(ctx, log, cred, ids)

	if fetchErr != nil && ctx.Err() != nil {
		// Dead context: abandon without a partial upsert.
		setState(StateFailed)
		return 0, fmt.Errorf("RunImport: %w", fetchErr)
	}

	var inserted int64
	if len(extracted) > 0 {
		setState(StatePersisting)
		inserted, err = c.store.MergeTransactions(ctx, userID, extracted)
		if err != nil {
			setState(StateFailed)
			return 0, fmt.Errorf("RunImport: persisting: %w", err)
		}
	}

	if fetchErr != nil {
		setState(StateFailed)
		return inserted, fmt.Errorf("RunImport: %w", fetchErr)
	}

	log.Info().
		Int("candidates", len(ids)).
		Int("extracted", len(extracted)).
		Int64("inserted", inserted).
		Msg("import finished")
	setState(StateIdle)
	return inserted, nil
}

// listOptions resolves the date lower bound and pagination behavior
// for the mode: full pagination from the start of the current month
// for backfill, one bounded page over the trailing window for recent.
func (c *Coordinator) listOptions(mode domain.ImportMode) gmail.ListOptions {
	now := c.now()
	if mode == domain.ModeBackfill {
		return gmail.ListOptions{
			Query:    c.opts.Query,
			After:    time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()),
			AllPages: true,
		}
	}
	return gmail.ListOptions{
		Query:    c.opts.Query,
		After:    now.AddDate(0, 0, -c.opts.RecentWindowDays),
		AllPages: false,
		PageSize: c.opts.RecentPageSize,
	}
}

// fetchAndExtract fans message detail fetches over a bounded worker
// pool and reduces each to a candidate transaction. Result order is
// irrelevant: persistence is a set merge, not an ordered append.
//
// Messages are dropped, not failed, when: the extractor classifies
// them as incoming funds (nil result), the body cannot be decoded, or
// no strictly positive amount was parsed. The first auth or exhausted
// transient error cancels remaining work and is returned alongside
// the transactions extracted before it.
func (c *Coordinator) fetchAndExtract(ctx context.Context, log zerolog.Logger, cred *domain.Credential, ids []string) ([]*domain.ExtractedTransaction, error) {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, c.opts.FetchWorkers)

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		extracted []*domain.ExtractedTransaction
		runErr    error
	)

	for _, id := range ids {
		select {
		case sem <- struct{}{}:
		case <-fetchCtx.Done():
		}
		if fetchCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			msg, err := c.client.GetMessage(fetchCtx, cred, id)
			if err != nil {
				mu.Lock()
				if runErr == nil {
					runErr = err
				}
				mu.Unlock()
				cancel()
				return
			}

			txn, err := c.extractor.Extract(msg)
			if err != nil {
				// Decode failures are scoped to one message.
				log.Warn().Err(err).Str("message_id", id).Msg("skipping undecodable message")
				return
			}
			if txn == nil {
				// Incoming-funds notification, not a debit.
				return
			}
			if txn.Amount == nil || *txn.Amount <= 0 {
				log.Debug().Str("message_id", id).Bool("needs_review", txn.NeedsReview).Msg("no importable amount")
				return
			}

			mu.Lock()
			extracted = append(extracted, txn)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	var authErr *gmail.AuthError
	if errors.As(runErr, &authErr) {
		log.Error().Err(runErr).Msg("authorization lost, reconnect required")
	}
	return extracted, runErr
}
