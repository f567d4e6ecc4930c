package domain

// MessagePart is one node of a message's MIME tree. Body holds the
// base64url payload exactly as the provider returns it; decoding is the
// extract package's job.
type MessagePart struct {
	MimeType string
	Body     string
	Parts    []*MessagePart
}

// Header is a single message header.
type Header struct {
	Name  string
	Value string
}

// RawMessage is one provider message as fetched for an import run.
// It is never persisted; every run fetches fresh.
type RawMessage struct {
	ID           string
	ThreadID     string
	Headers      []Header
	Snippet      string
	InternalDate int64 // epoch milliseconds, 0 if absent
	Payload      *MessagePart
}

// Header returns the first header with the given name, or "".
func (m *RawMessage) Header(name string) string {
	for _, h := range m.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}
