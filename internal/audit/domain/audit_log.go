package domain

import "time"

// AuditLog is one recorded action against a subject's change pipeline.
type AuditLog struct {
	ID        string
	SubjectID string
	ActorID   string // subject, reviewer, or SystemActor for the sweeper
	Action    string
	Resource  string
	IP        string
	Metadata  string // JSON object or empty
	CreatedAt time.Time
}
