package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

func TestDecodeBody_NestedParts(t *testing.T) {
	part := &domain.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*domain.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*domain.MessagePart{
					{MimeType: "text/plain", Body: b64url("plain half ")},
					{MimeType: "text/html", Body: b64url("<b>html half</b>")},
				},
			},
			{MimeType: "text/plain", Body: b64url(" trailer")},
		},
	}

	got, err := DecodeBody(part)
	if err != nil {
		t.Fatalf("DecodeBody error = %v", err)
	}
	want := "plain half <b>html half</b> trailer"
	if got != want {
		t.Errorf("DecodeBody = %q, want %q", got, want)
	}
}

func TestDecodeBody_NilAndEmpty(t *testing.T) {
	got, err := DecodeBody(nil)
	if err != nil || got != "" {
		t.Errorf("DecodeBody(nil) = (%q, %v), want empty", got, err)
	}

	got, err = DecodeBody(&domain.MessagePart{
		MimeType: "multipart/mixed",
		Parts:    []*domain.MessagePart{nil, {MimeType: "text/plain"}},
	})
	if err != nil || got != "" {
		t.Errorf("DecodeBody(bodyless tree) = (%q, %v), want empty", got, err)
	}
}

func TestDecodeBody_RestoresPadding(t *testing.T) {
	// "hi" encodes to "aGk", which needs one padding character back.
	got, err := DecodeBody(&domain.MessagePart{MimeType: "text/plain", Body: "aGk"})
	if err != nil {
		t.Fatalf("DecodeBody error = %v", err)
	}
	if got != "hi" {
		t.Errorf("DecodeBody = %q, want %q", got, "hi")
	}
}

func TestDecodeBody_MalformedFailsWholeMessage(t *testing.T) {
	part := &domain.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*domain.MessagePart{
			{MimeType: "text/plain", Body: b64url("fine")},
			{MimeType: "text/html", Body: "!!definitely not base64!!"},
		},
	}

	got, err := DecodeBody(part)
	if err == nil {
		t.Fatal("expected an error for malformed part")
	}
	if got != "" {
		t.Errorf("DecodeBody = %q, want empty on error", got)
	}
	if !strings.Contains(err.Error(), "text/html") {
		t.Errorf("error %q should name the failing part's mime type", err)
	}

	var corruptErr interface{ Unwrap() error }
	if !errors.As(err, &corruptErr) {
		t.Errorf("error should wrap the base64 cause")
	}
}
