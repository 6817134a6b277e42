package domain

import (
	"errors"
	"strings"
	"time"

	"attribute-change-control/backend/internal/eligibility"
)

// Subject is the account whose protected attribute can be changed.
type Subject struct {
	ID            string
	Email         string
	Phone         string // optional; OTP factor is only used when PhoneVerified
	PhoneVerified bool
	Attribute     string // current value of the protected attribute
	ChangeCount   int
	LastChangeAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasVerifiablePhone reports whether an OTP can be delivered to the subject.
func (s *Subject) HasVerifiablePhone() bool {
	return strings.TrimSpace(s.Phone) != "" && s.PhoneVerified
}

// Ledger returns the eligibility counters stored on the subject.
func (s *Subject) Ledger() eligibility.Ledger {
	return eligibility.Ledger{ChangeCount: s.ChangeCount, LastChangeAt: s.LastChangeAt}
}

// Validate validates the subject for persistence. Returns an error describing the first validation failure.
func (s *Subject) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Email == "" {
		return errors.New("email is required")
	}
	if s.Attribute == "" {
		return errors.New("attribute is required")
	}
	if s.ChangeCount < 0 {
		return errors.New("change count must not be negative")
	}
	return nil
}
