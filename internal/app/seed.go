package app

import (
	"context"
	"fmt"
	"time"

	"attribute-change-control/backend/internal/store"
	subjectdomain "attribute-change-control/backend/internal/subject/domain"
)

// DemoSubjects returns the development subjects: one with a verified phone (OTP path), one without
// (direct review), and one that has used its whole lifetime cap.
func DemoSubjects(now time.Time) []*subjectdomain.Subject {
	lastChange := now.AddDate(-1, 0, 0)
	return []*subjectdomain.Subject{
		{
			ID:            "demo-subject-phone",
			Email:         "phone@example.com",
			Phone:         "+15550100",
			PhoneVerified: true,
			Attribute:     "male",
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:        "demo-subject-email",
			Email:     "email@example.com",
			Attribute: "female",
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:           "demo-subject-capped",
			Email:        "capped@example.com",
			Attribute:    "non_binary",
			ChangeCount:  2,
			LastChangeAt: &lastChange,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
}

// Seed inserts the subjects that do not exist yet and returns how many were created. Idempotent.
func Seed(ctx context.Context, uow store.UnitOfWork, subjects []*subjectdomain.Subject) (int, error) {
	created := 0
	err := uow.RunInTx(ctx, func(r store.Repos) error {
		created = 0
		for _, s := range subjects {
			existing, err := r.Subjects.GetByID(ctx, s.ID)
			if err != nil {
				return fmt.Errorf("load subject %s: %w", s.ID, err)
			}
			if existing != nil {
				continue
			}
			if err := r.Subjects.Create(ctx, s); err != nil {
				return fmt.Errorf("create subject %s: %w", s.ID, err)
			}
			created++
		}
		return nil
	})
	return created, err
}
