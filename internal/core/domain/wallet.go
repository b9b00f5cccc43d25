package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrInvalidAddress is returned when an address argument is not 0x + 16 hex characters.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNotLinked is returned when a subscriber has no linked address.
	ErrNotLinked = errors.New("no wallet linked")
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{16}$`)

// WalletLink maps a chain address to the subscriber that receives its notifications.
type WalletLink struct {
	Address      string    `json:"address"       db:"address"`
	SubscriberID string    `json:"subscriber_id" db:"subscriber_id"`
	DisplayName  string    `json:"display_name"  db:"display_name"`
	LinkedAt     time.Time `json:"linked_at"     db:"linked_at"`
}

// Clone returns a copy that callers may keep without sharing store memory.
func (l *WalletLink) Clone() *WalletLink {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

// IsValidAddress reports whether s is a well-formed account address.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// NormalizeAddress validates s and returns its lowercase form.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !IsValidAddress(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return strings.ToLower(s), nil
}

// SameAddress compares two addresses ignoring case.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
