package session

import "time"

// Session is one signed-in browser or client.
type Session struct {
	ID     string
	UserID string
	Email  string

	// Unix seconds.
	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether s has passed its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt <= now.Unix()
}
