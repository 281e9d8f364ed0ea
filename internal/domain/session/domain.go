package session

import "time"

// Session anchors refresh-token validity: a refresh token is honored only
// while the row it names exists and has not expired. One row per sign-in.
type Session struct {
	ID        string
	UserID    string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
