package errdefs

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestServerMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "errorMessage field",
			body: `{"errorMessage":"User exists with same username"}`,
			want: "User exists with same username",
		},
		{
			name: "error field",
			body: `{"error":"invalid_grant"}`,
			want: "invalid_grant",
		},
		{
			name: "errorMessage wins over error",
			body: `{"error":"x","errorMessage":"y"}`,
			want: "y",
		},
		{
			name: "raw body",
			body: "upstream connect error\n",
			want: "upstream connect error",
		},
		{
			name: "json without known fields",
			body: `{"detail":"nope"}`,
			want: `{"detail":"nope"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ServerMessage([]byte(tt.body)); got != tt.want {
				t.Errorf("ServerMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromResponse(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusConflict,
		Body:       io.NopCloser(strings.NewReader(`{"errorMessage":"conflict"}`)),
	}

	err := FromResponse(resp, "Create user bob")
	if err.StatusCode != http.StatusConflict || err.Message != "conflict" || err.Context != "Create user bob" {
		t.Fatalf("unexpected error fields: %+v", err)
	}
	if got := err.Error(); got != "error Create user bob: 409 - conflict" {
		t.Errorf("Error() = %q", got)
	}
}

func TestSentinelMatching(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"authentication", &AuthenticationError{Username: "admin"}, ErrAuthenticationFailed},
		{"request", &RequestError{Context: "x", StatusCode: 500}, ErrRequestFailed},
		{"timeout", &TimeoutError{Description: "Group Sync"}, ErrTimeoutExceeded},
		{"constraint", &ConstraintError{Detail: "d"}, ErrConstraintViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("step failed: %w", tt.err)
			if !errors.Is(wrapped, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.target)
			}
			if errors.Is(wrapped, ErrTimeoutExceeded) && tt.target != ErrTimeoutExceeded {
				t.Errorf("%T should not match ErrTimeoutExceeded", tt.err)
			}
		})
	}
}

func TestTimeoutErrorDoesNotUnwrapLast(t *testing.T) {
	err := &TimeoutError{Description: "Org Provisioning", Last: &RequestError{StatusCode: 503}}
	if errors.Is(err, ErrRequestFailed) {
		t.Error("timeout should not be reported as a request failure")
	}
	if !strings.Contains(err.Error(), "Org Provisioning") {
		t.Errorf("Error() = %q, want description", err.Error())
	}
}
