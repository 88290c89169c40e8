package models

import "time"

// InviteToken is the stored form of a one-time RSVP token. The raw token is never stored.
type InviteToken struct {
	EventID   int64      `json:"event_id"`
	Email     string     `json:"email"`
	TokenHash string     `json:"-"`
	Status    RSVPStatus `json:"status"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// IsExpired determines whether the token has expired.
func (t InviteToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsUsed indicates whether the token has already been redeemed.
func (t InviteToken) IsUsed() bool {
	return t.UsedAt != nil
}
