package domain

// Status is the single lifecycle state of a change request.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusOTPPending  Status = "OTP_PENDING"
	StatusAdminReview Status = "ADMIN_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusExpired     Status = "EXPIRED"
)

var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusOTPPending:  true,
		StatusAdminReview: true,
		StatusRejected:    true,
		StatusExpired:     true,
	},
	StatusOTPPending: {
		StatusAdminReview: true,
		StatusRejected:    true,
		StatusExpired:     true,
	},
	StatusAdminReview: {
		StatusApproved: true,
		StatusRejected: true,
	},
}

// CanTransition reports whether moving from one status to another is a legal edge.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// IsTerminal reports whether no edges leave s.
func IsTerminal(s Status) bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// IsActive reports whether s counts toward the one-open-request-per-subject rule.
func IsActive(s Status) bool {
	switch s {
	case StatusPending, StatusOTPPending, StatusAdminReview:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusOTPPending, StatusAdminReview, StatusApproved, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}
