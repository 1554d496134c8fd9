package course

import (
	"context"
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("course not found")
)

type (
	Repository interface {
		UpsertCourse(ctx context.Context, crs Course) (Course, error)
		// QueryActiveCourses returns the user's active enrollments ordered
		// by org unit id.
		QueryActiveCourses(ctx context.Context, userID string) ([]Course, error)
		GetCourseByOrgUnit(ctx context.Context, userID string, orgUnitID int) (Course, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Upsert(ctx context.Context, crs Course) (Course, error) {
	now := time.Now().UTC()
	if crs.CreatedAt.IsZero() {
		crs.CreatedAt = now
	}
	crs.UpdatedAt = now
	return svc.repo.UpsertCourse(ctx, crs)
}

func (svc *Service) QueryActive(ctx context.Context, userID string) ([]Course, error) {
	return svc.repo.QueryActiveCourses(ctx, userID)
}

func (svc *Service) GetByOrgUnit(ctx context.Context, userID string, orgUnitID int) (Course, error) {
	return svc.repo.GetCourseByOrgUnit(ctx, userID, orgUnitID)
}
