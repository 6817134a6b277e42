package domain

import "time"

// Challenge is the live OTP bound to one change request (otp_challenges table).
// The code itself is never stored; only its bcrypt hash.
type Challenge struct {
	ID          string
	RequestID   string
	CodeHash    string
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int
	Resends     int
	CreatedAt   time.Time
}

// Expired reports whether the challenge can no longer be answered at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// RecordFailure counts a wrong guess and reports whether attempts are now exhausted.
func (c *Challenge) RecordFailure() (exhausted bool) {
	c.Attempts++
	return c.Attempts >= c.MaxAttempts
}

// Remaining is the number of guesses left before the challenge is exhausted.
func (c *Challenge) Remaining() int {
	if n := c.MaxAttempts - c.Attempts; n > 0 {
		return n
	}
	return 0
}
