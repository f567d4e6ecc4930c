package domain

import (
	"time"
)

// SourceGmailImport tags transactions created by the mail import
// pipeline, as opposed to rows entered by hand.
const SourceGmailImport = "gmail-import"

// FallbackName is used when neither a recipient nor a subject could be
// derived from the message.
const FallbackName = "Imported transaction"

// ExtractedTransaction is one candidate transaction produced by the
// extractor for a single provider message. It is transient until the
// import coordinator persists it.
//
// Amount is nil when no amount pattern matched; NeedsReview is true
// exactly in that case.
type ExtractedTransaction struct {
	Name       string
	Merchant   string
	Amount     *float64
	Currency   string
	OccurredAt time.Time
	Source     string
	MessageID  string
	ThreadID   string

	NeedsReview bool
}

// ImportMode selects how much history an import run covers.
type ImportMode string

const (
	// ModeBackfill imports from the start of the current month,
	// following pagination to exhaustion.
	ModeBackfill ImportMode = "backfill"

	// ModeRecent imports a single bounded page covering a fixed
	// trailing window.
	ModeRecent ImportMode = "recent"
)

// Valid reports whether m is a known import mode.
func (m ImportMode) Valid() bool {
	return m == ModeBackfill || m == ModeRecent
}
