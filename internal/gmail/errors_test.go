package gmail

import (
	"errors"
	"fmt"
	"testing"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantAuth      bool
		wantTransient bool
	}{
		{"nil", nil, false, false},
		{"unauthorized", &googleapi.Error{Code: 401}, true, false},
		{"forbidden", &googleapi.Error{Code: 403}, true, false},
		{"rate limited", &googleapi.Error{Code: 429}, false, true},
		{"server error", &googleapi.Error{Code: 500}, false, true},
		{"bad gateway", &googleapi.Error{Code: 502}, false, true},
		{"not found", &googleapi.Error{Code: 404}, false, false},
		{"bad request", &googleapi.Error{Code: 400}, false, false},
		{"wrapped api error", fmt.Errorf("outer: %w", &googleapi.Error{Code: 503}), false, true},
		{"token refresh rejected", &oauth2.RetrieveError{}, true, false},
		{"plain network error", errors.New("connection reset"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("Op", tt.err)
			if tt.err == nil {
				if got != nil {
					t.Fatalf("classify(nil) = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("classify returned nil for non-nil error")
			}

			var authErr *AuthError
			if errors.As(got, &authErr) != tt.wantAuth {
				t.Errorf("AuthError = %v, want %v (got %v)", !tt.wantAuth, tt.wantAuth, got)
			}
			var transientErr *TransientError
			if errors.As(got, &transientErr) != tt.wantTransient {
				t.Errorf("TransientError = %v, want %v (got %v)", !tt.wantTransient, tt.wantTransient, got)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error %v does not wrap cause %v", got, tt.err)
			}
		})
	}
}

func TestClassifyKeepsCause(t *testing.T) {
	cause := &googleapi.Error{Code: 500, Message: "backend error"}
	got := classify("ListMessageIDs", cause)

	var apiErr *googleapi.Error
	if !errors.As(got, &apiErr) || apiErr.Code != 500 {
		t.Fatalf("cause not reachable through %v", got)
	}
}
