package extract

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

// DecodeError marks a message whose MIME tree could not be decoded.
// It is scoped to one message: the import run logs it, skips the
// message and continues.
type DecodeError struct {
	MessageID string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding message %s: %v", e.MessageID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeBody walks a message's MIME part tree depth-first and
// concatenates every decodable body payload into one text blob.
//
// Mime types are deliberately not inspected: plain and HTML parts are
// both accumulated, because the extraction heuristics run after mark-up
// stripping and provider templates move content between part types.
// Missing bodies contribute nothing; malformed base64url fails the
// whole message.
func DecodeBody(part *domain.MessagePart) (string, error) {
	if part == nil {
		return "", nil
	}

	var sb strings.Builder
	if err := decodeInto(&sb, part); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func decodeInto(sb *strings.Builder, part *domain.MessagePart) error {
	if part.Body != "" {
		data, err := base64.URLEncoding.DecodeString(restorePadding(part.Body))
		if err != nil {
			return fmt.Errorf("base64url body (%s): %w", part.MimeType, err)
		}
		sb.Write(data)
	}

	for _, child := range part.Parts {
		if child == nil {
			continue
		}
		if err := decodeInto(sb, child); err != nil {
			return err
		}
	}
	return nil
}

// restorePadding re-appends the '=' padding the provider strips from
// base64url payloads.
func restorePadding(s string) string {
	if m := len(s) % 4; m != 0 {
		return s + strings.Repeat("=", 4-m)
	}
	return s
}
