package model

import "time"

// Ticket WSAA access ticket (TA).
type Ticket struct {
	Token     string
	Sign      string
	ExpiresAt time.Time // UTC
}

// ValidFor true when the ticket stays valid for longer than margin at now.
func (t Ticket) ValidFor(now time.Time, margin time.Duration) bool {
	if t.Token == "" || t.ExpiresAt.IsZero() {
		return false
	}
	return t.ExpiresAt.Sub(now) > margin
}
