package inmemdb

import (
	"context"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/athravseruwam07/clarus/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db.course}
}

func courseKey(userID string, orgUnitID int) string {
	return userID + "|" + strconv.Itoa(orgUnitID)
}

func (repo *courseRepository) UpsertCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if crs.ID == "" {
		crs.ID = uuid.New().String()
	}
	repo.db.table[courseKey(crs.UserID, crs.OrgUnitID)] = &crs
	return crs, nil
}

func (repo *courseRepository) QueryActiveCourses(_ context.Context, userID string) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var courses []course.Course
	for _, crs := range repo.db.table {
		if crs.UserID == userID && crs.IsActive {
			courses = append(courses, *crs)
		}
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].OrgUnitID < courses[j].OrgUnitID })
	return courses, nil
}

func (repo *courseRepository) GetCourseByOrgUnit(_ context.Context, userID string, orgUnitID int) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if crs, ok := repo.db.table[courseKey(userID, orgUnitID)]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}
