// Package gmail wraps the Gmail API behind the narrow surface the
// import pipeline needs: OAuth connect, paginated message search and
// full message retrieval.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

const (
	backfillPageSize = 100
	maxAttempts      = 4
	backoffBase      = 500 * time.Millisecond

	// Gmail's per-user quota is 250 units/s; a full message get costs 5.
	requestsPerSecond = 10
	requestBurst      = 5
)

// ListOptions controls one message search.
type ListOptions struct {
	Query string
	// After is the date lower bound, applied as an after: operator in
	// the provider query.
	After time.Time
	// AllPages follows nextPageToken until the result set is exhausted.
	// When false a single page of at most PageSize ids is returned.
	AllPages bool
	PageSize int64
}

// Client is a per-deployment Gmail API client. Credentials are
// per-user and passed into each call; the OAuth app config, rate
// limiter and circuit breaker are shared.
type Client struct {
	oauth   *oauth2.Config
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger

	// svcOpts, when set, replaces the token-source options so tests
	// can point the service at a fake endpoint.
	svcOpts []option.ClientOption
}

// Config carries the OAuth application settings for the Gmail client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewClient builds a Client. Read-only mail scope only: the pipeline
// never mutates the mailbox.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{gmailapi.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	cbSettings := gobreaker.Settings{
		Name:     "gmail-api",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &Client{
		oauth:   oauthCfg,
		cb:      gobreaker.NewCircuitBreaker(cbSettings),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		log:     log,
	}
}

// AuthCodeURL returns the consent URL for the OAuth connect flow.
// Offline access is required so a refresh token is issued.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token pair.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classify("Exchange", err)
	}
	return token, nil
}

// Refresh returns a fresh access token for the stored credential,
// refreshing against the OAuth endpoint when it has expired.
func (c *Client) Refresh(ctx context.Context, cred *domain.Credential) (*oauth2.Token, error) {
	token, err := c.oauth.TokenSource(ctx, credentialToken(cred)).Token()
	if err != nil {
		return nil, classify("Refresh", err)
	}
	return token, nil
}

// ListMessageIDs runs the provider-side search and returns matching
// message ids. In AllPages mode it follows nextPageToken until the
// provider reports no more pages; otherwise it returns one page.
func (c *Client) ListMessageIDs(ctx context.Context, cred *domain.Credential, opts ListOptions) ([]string, error) {
	svc, err := c.service(ctx, cred)
	if err != nil {
		return nil, classify("ListMessageIDs", err)
	}

	query := opts.Query
	if !opts.After.IsZero() {
		query = fmt.Sprintf("%s after:%s", query, opts.After.Format("2006/01/02"))
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = backfillPageSize
	}

	var ids []string
	pageToken := ""
	for {
		req := svc.Users.Messages.List("me").Q(query).MaxResults(pageSize)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		var resp *gmailapi.ListMessagesResponse
		err := c.call(ctx, "ListMessageIDs", func() error {
			var apiErr error
			resp, apiErr = req.Context(ctx).Do()
			return apiErr
		})
		if err != nil {
			return nil, err
		}

		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		if !opts.AllPages || resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	c.log.Debug().
		Str("query", query).
		Bool("all_pages", opts.AllPages).
		Int("ids", len(ids)).
		Msg("listed candidate messages")
	return ids, nil
}

// GetMessage fetches one message in full format, including the MIME
// part tree, and converts it to the internal representation.
func (c *Client) GetMessage(ctx context.Context, cred *domain.Credential, id string) (*domain.RawMessage, error) {
	svc, err := c.service(ctx, cred)
	if err != nil {
		return nil, classify("GetMessage", err)
	}

	var msg *gmailapi.Message
	err = c.call(ctx, "GetMessage", func() error {
		var apiErr error
		msg, apiErr = svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	return convertMessage(msg), nil
}

func (c *Client) service(ctx context.Context, cred *domain.Credential) (*gmailapi.Service, error) {
	if len(c.svcOpts) > 0 {
		return gmailapi.NewService(ctx, c.svcOpts...)
	}
	return gmailapi.NewService(ctx, option.WithTokenSource(
		c.oauth.TokenSource(ctx, credentialToken(cred)),
	))
}

// call runs one provider request through the shared rate limiter and
// circuit breaker, retrying transient failures with exponential
// backoff. Auth failures never retry.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransientError{Op: op, Err: err}
		}

		_, err := c.cb.Execute(func() (interface{}, error) {
			if callErr := fn(); callErr != nil {
				return nil, classify(op, callErr)
			}
			return nil, nil
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &TransientError{Op: op, Err: err}
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		delay := backoffBase << (attempt - 1)
		c.log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("provider call failed, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &TransientError{Op: op, Err: ctx.Err()}
		}
	}
	return lastErr
}

func credentialToken(cred *domain.Credential) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    "Bearer",
	}
	if cred.Expiry != nil {
		token.Expiry = *cred.Expiry
	}
	return token
}

func convertMessage(msg *gmailapi.Message) *domain.RawMessage {
	out := &domain.RawMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			out.Headers = append(out.Headers, domain.Header{Name: h.Name, Value: h.Value})
		}
		out.Payload = convertPart(msg.Payload)
	}
	return out
}

func convertPart(part *gmailapi.MessagePart) *domain.MessagePart {
	converted := &domain.MessagePart{MimeType: part.MimeType}
	if part.Body != nil {
		converted.Body = part.Body.Data
	}
	for _, child := range part.Parts {
		if child == nil {
			continue
		}
		converted.Parts = append(converted.Parts, convertPart(child))
	}
	return converted
}
