package middleware

import "context"

type contextKey struct{ name string }

var (
	subjectIDKey  = contextKey{"subject_id"}
	reviewerIDKey = contextKey{"reviewer_id"}
)

// WithSubject returns a context carrying the authenticated subject id.
func WithSubject(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, subjectIDKey, subjectID)
}

// WithReviewer returns a context carrying the authenticated reviewer id.
func WithReviewer(ctx context.Context, reviewerID string) context.Context {
	return context.WithValue(ctx, reviewerIDKey, reviewerID)
}

// GetSubjectID returns the subject id from context and true if set; otherwise "", false.
func GetSubjectID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectIDKey).(string)
	return v, ok && v != ""
}

// GetReviewerID returns the reviewer id from context and true if set; otherwise "", false.
func GetReviewerID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(reviewerIDKey).(string)
	return v, ok && v != ""
}
