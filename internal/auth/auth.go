// Package auth resolves the acting user for OCR requests. Two header names are
// honored because the coexisting backend variants disagree on which one they
// read; outgoing requests set both to the same value.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/graderai/worksheets/internal/common"
)

const (
	OwnerIDHeader = "X-Owner-Id"
	UserIDHeader  = "X-User-Id"
)

// UserIDFromRequest extracts the acting user id from either supported header.
func UserIDFromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(OwnerIDHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.Header.Get(UserIDHeader))
}

// SetUserHeaders stamps both ownership headers on an outgoing request.
func SetUserHeaders(h http.Header, userID string) {
	h.Set(OwnerIDHeader, userID)
	h.Set(UserIDHeader, userID)
}

// Source yields the current user id, or empty when signed out.
type Source interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// StaticSource is a fixed-identity Source for CLI use and tests.
type StaticSource string

func (s StaticSource) CurrentUserID(context.Context) (string, error) {
	return string(s), nil
}

// RequireUser returns the user id or an auth-required error.
func RequireUser(ctx context.Context, src Source) (string, error) {
	uid, err := src.CurrentUserID(ctx)
	if err != nil {
		return "", common.WrapError(common.KindAuthRequired, "resolve current user", err)
	}
	if uid == "" {
		return "", common.NewError(common.KindAuthRequired, "sign in required")
	}
	return uid, nil
}
