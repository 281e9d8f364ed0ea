package verification

import "time"

// Kind discriminates what mutation a code authorizes.
type Kind string

const (
	KindEmailVerification Kind = "EMAIL_VERIFICATION"
	KindPasswordReset     Kind = "PASSWORD_RESET"
)

// Code is single-use: consuming it deletes the row in the same statement,
// so concurrent redemptions resolve to exactly one winner.
type Code struct {
	ID        string
	UserID    string
	Kind      Kind
	ExpiresAt time.Time
	CreatedAt time.Time
}
