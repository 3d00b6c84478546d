package auth

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RefreshValidity is how long a rotated refresh token is trusted for
const RefreshValidity = 7 * 24 * time.Hour

const (
	refreshTokenPrefix = "1//"
	minRefreshLength   = 100
	maxRefreshLength   = 150
)

var refreshTokenChars = regexp.MustCompile(`^[A-Za-z0-9/_-]+$`)

// ValidateRefreshToken checks the shape of a Google refresh token
func ValidateRefreshToken(token string) error {
	switch {
	case !strings.HasPrefix(token, refreshTokenPrefix):
		return fmt.Errorf("%w: must start with %q", ErrInvalidRefreshToken, refreshTokenPrefix)
	case len(token) < minRefreshLength || len(token) > maxRefreshLength:
		return fmt.Errorf("%w: length %d outside %d-%d", ErrInvalidRefreshToken, len(token), minRefreshLength, maxRefreshLength)
	case !refreshTokenChars.MatchString(token):
		return fmt.Errorf("%w: unexpected characters", ErrInvalidRefreshToken)
	}
	return nil
}

// Source says where the active refresh token came from
type Source string

const (
	SourceStore  Source = "store"
	SourceConfig Source = "config"
)

// Status describes the active refresh token. The validity window is only
// known for rotated tokens.
type Status struct {
	Configured    bool      `json:"configured"`
	Source        Source    `json:"source,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	DaysRemaining int       `json:"days_remaining"`
	Expired       bool      `json:"expired"`
}

func newStatus(source Source, updatedAt, now time.Time) Status {
	expiresAt := updatedAt.Add(RefreshValidity)
	remaining := expiresAt.Sub(now)

	days := 0
	if remaining > 0 {
		days = int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	}

	return Status{
		Configured:    true,
		Source:        source,
		UpdatedAt:     updatedAt,
		ExpiresAt:     expiresAt,
		DaysRemaining: days,
		Expired:       remaining <= 0,
	}
}
