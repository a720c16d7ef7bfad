package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestMessageRendering(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "plain error",
			err:  errors.New("connection refused"),
			want: "connection refused",
		},
		{
			name: "kind without upstream status",
			err:  NewError(KindValidation, "upload_id is required"),
			want: "upload_id is required",
		},
		{
			name: "upstream status is surfaced",
			err:  UpstreamError(KindUpstreamFailure, 502, "bad gateway"),
			want: "OCR failed (502): bad gateway",
		},
		{
			name: "wrapped upstream error keeps its rendering",
			err:  fmt.Errorf("submit scan: %w", UpstreamError(KindRateLimited, 429, "slow down")),
			want: "OCR failed (429): slow down",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Message(tc.err); got != tc.want {
				t.Errorf("Message() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestKindOfUnwraps(t *testing.T) {
	inner := NewError(KindNotFound, "upload not found")
	wrapped := fmt.Errorf("loading upload: %w", inner)
	if got := KindOf(wrapped); got != KindNotFound {
		t.Errorf("KindOf = %q, want %q", got, KindNotFound)
	}
	if got := KindOf(errors.New("anything")); got != KindInternal {
		t.Errorf("KindOf(plain) = %q, want %q", got, KindInternal)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
}

func TestHTTPStatusForKind(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want int
	}{
		{KindAuthRequired, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindPreconditionFailed, http.StatusPreconditionFailed},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindUpstreamTimeout, http.StatusGatewayTimeout},
		{KindUpstreamFailure, http.StatusBadGateway},
		{KindTransport, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := HTTPStatusForKind(tc.kind); got != tc.want {
			t.Errorf("HTTPStatusForKind(%q) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestWrapErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := WrapError(KindTransport, "download scan", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause lost")
	}
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Kind != KindTransport {
		t.Errorf("As(*Error) = %v", appErr)
	}
}

func TestRetriable(t *testing.T) {
	if !Retriable(KindRateLimited) || !Retriable(KindTransport) {
		t.Error("transient kinds should be retriable")
	}
	if Retriable(KindValidation) || Retriable(KindForbidden) {
		t.Error("caller errors should not be retriable")
	}
}

func TestValidatorCollectsErrors(t *testing.T) {
	err := NewValidator().
		Field("upload_id", "not-a-uuid", Required, UUID).
		Field("title", "", Required).
		Error()
	if KindOf(err) != KindValidation {
		t.Fatalf("kind = %q", KindOf(err))
	}
	msg := Message(err)
	for _, want := range []string{"upload_id", "valid UUID", "title"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}

	if err := NewValidator().Field("verdict", "correct", VerdictValue).Error(); err != nil {
		t.Errorf("valid verdict rejected: %v", err)
	}
	if err := NewValidator().Field("verdict", "sorta", VerdictValue).Error(); err == nil {
		t.Error("invalid verdict accepted")
	}
}
