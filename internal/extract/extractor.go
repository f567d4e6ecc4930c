// Package extract turns raw provider messages into candidate
// transactions using regex heuristics over the decoded message text.
package extract

import (
	"net/mail"
	"strings"
	"time"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

// recipientTerminators end the free-text span following a "To:" label.
var recipientTerminators = []string{"From:", "If unauthorised", "To view"}

// Extractor classifies messages and extracts transaction fields.
type Extractor struct {
	currency       string
	creditKeywords []string
	strategies     []AmountStrategy
	now            func() time.Time
}

// New creates an Extractor for the configured base currency. The
// credit keyword set drops incoming-funds notifications; it is applied
// to the whole lower-cased text, so a keyword inside an unrelated
// sentence also drops the message. That over-exclusion is part of the
// contract: narrowing it would change which historical mails import.
func New(currency string, creditKeywords []string) *Extractor {
	return &Extractor{
		currency:       currency,
		creditKeywords: creditKeywords,
		strategies: []AmountStrategy{
			newLabeledAmountStrategy(currency),
			newBareAmountStrategy(currency),
		},
		now: time.Now,
	}
}

// Extract builds an ExtractedTransaction from one raw message.
//
// Returns (nil, nil) for messages classified as incoming-funds
// notifications: they are dropped from the import entirely. Returns a
// *DecodeError when the body cannot be decoded. A message that yields
// no amount still returns a transaction, with Amount nil and
// NeedsReview set.
func (e *Extractor) Extract(msg *domain.RawMessage) (*domain.ExtractedTransaction, error) {
	body, err := DecodeBody(msg.Payload)
	if err != nil {
		return nil, &DecodeError{MessageID: msg.ID, Err: err}
	}

	subject := msg.Header("Subject")
	blob := subject + " " + msg.Snippet + " " + body

	if e.isCreditNotification(blob) {
		return nil, nil
	}

	text := Normalize(blob)

	name := extractRecipient(text)
	if name == "" {
		name = strings.TrimSpace(subject)
	}
	if name == "" {
		name = domain.FallbackName
	}

	var amount *float64
	for _, s := range e.strategies {
		if amount = s.Extract(text); amount != nil {
			break
		}
	}

	return &domain.ExtractedTransaction{
		Name:        name,
		Merchant:    msg.Header("From"),
		Amount:      amount,
		Currency:    e.currency,
		OccurredAt:  e.occurrence(msg),
		Source:      domain.SourceGmailImport,
		MessageID:   msg.ID,
		ThreadID:    msg.ThreadID,
		NeedsReview: amount == nil,
	}, nil
}

func (e *Extractor) isCreditNotification(blob string) bool {
	lower := strings.ToLower(blob)
	for _, kw := range e.creditKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// extractRecipient pulls the text after a "To:" label, up to the
// nearest terminator label or end of string.
func extractRecipient(text string) string {
	idx := strings.Index(text, "To:")
	if idx < 0 {
		return ""
	}

	rest := text[idx+len("To:"):]
	end := len(rest)
	for _, term := range recipientTerminators {
		if j := strings.Index(rest, term); j >= 0 && j < end {
			end = j
		}
	}
	return strings.TrimSpace(rest[:end])
}

// occurrence picks the transaction timestamp: provider internal date,
// then the Date header, then processing time as last resort.
func (e *Extractor) occurrence(msg *domain.RawMessage) time.Time {
	if msg.InternalDate > 0 {
		return time.UnixMilli(msg.InternalDate)
	}
	if raw := msg.Header("Date"); raw != "" {
		if t, err := mail.ParseDate(raw); err == nil {
			return t
		}
	}
	return e.now()
}
