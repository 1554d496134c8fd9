package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/athravseruwam07/clarus/core"
	"github.com/athravseruwam07/clarus/core/course"
)

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

type courseRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	OrgUnitID int       `db:"org_unit_id"`
	Name      string    `db:"name"`
	Code      string    `db:"code"`
	Semester  string    `db:"semester"`
	StartAt   null.Time `db:"start_at"`
	EndAt     null.Time `db:"end_at"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (repo courseRepository) unrowify(row courseRow) course.Course {
	return course.Course{
		ID:        row.ID,
		UserID:    row.UserID,
		OrgUnitID: row.OrgUnitID,
		Name:      row.Name,
		Code:      row.Code,
		Semester:  row.Semester,
		StartAt:   row.StartAt.Ptr(),
		EndAt:     row.EndAt.Ptr(),
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func (repo courseRepository) UpsertCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	if crs.ID == "" {
		crs.ID = uuid.New().String()
	}

	query, args, err := psql.
		Insert("course").
		Columns("id", "user_id", "org_unit_id", "name", "code", "semester",
			"start_at", "end_at", "is_active", "created_at", "updated_at").
		Values(crs.ID, crs.UserID, crs.OrgUnitID, crs.Name, crs.Code, crs.Semester,
			null.TimeFromPtr(crs.StartAt), null.TimeFromPtr(crs.EndAt), crs.IsActive,
			crs.CreatedAt, crs.UpdatedAt).
		Suffix(`ON CONFLICT (user_id, org_unit_id) DO UPDATE SET
			name = EXCLUDED.name,
			code = EXCLUDED.code,
			semester = EXCLUDED.semester,
			start_at = EXCLUDED.start_at,
			end_at = EXCLUDED.end_at,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course upsert")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return course.Course{}, errors.Wrap(err, "upserting course")
	}
	return crs, nil
}

func (repo courseRepository) QueryActiveCourses(ctx context.Context, userID string) ([]course.Course, error) {
	query, args, err := psql.
		Select("*").
		From("course").
		Where(sq.Eq{"user_id": userID, "is_active": true}).
		OrderBy(core.DBOrdering{Field: "org_unit_id", Ascending: true}.String()).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building course query")
	}

	var rows []courseRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying active courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, repo.unrowify(row))
	}
	return courses, nil
}

func (repo courseRepository) GetCourseByOrgUnit(ctx context.Context, userID string, orgUnitID int) (course.Course, error) {
	query, args, err := psql.
		Select("*").
		From("course").
		Where(sq.Eq{"user_id": userID, "org_unit_id": orgUnitID}).
		ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course query")
	}

	var row courseRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "finding course")
	}
	return repo.unrowify(row), nil
}
