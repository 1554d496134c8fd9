package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/athravseruwam07/clarus/core"
	"github.com/athravseruwam07/clarus/core/timeline"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type timelineRepository struct {
	db *sqlx.DB
}

var _ timeline.Repository = (*timelineRepository)(nil)

func NewTimelineRepository(db *sqlx.DB) *timelineRepository {
	return &timelineRepository{db: db}
}

type eventRow struct {
	ID                   string      `db:"id"`
	UserID               string      `db:"user_id"`
	SourceType           string      `db:"source_type"`
	SourceID             string      `db:"source_id"`
	DateKind             string      `db:"date_kind"`
	OrgUnitID            int         `db:"org_unit_id"`
	Title                string      `db:"title"`
	Description          null.String `db:"description"`
	StartAt              time.Time   `db:"start_at"`
	EndAt                null.Time   `db:"end_at"`
	IsAllDay             bool        `db:"is_all_day"`
	AssociatedEntityType null.String `db:"associated_entity_type"`
	AssociatedEntityID   null.String `db:"associated_entity_id"`
	ViewURL              null.String `db:"view_url"`
	RawData              null.JSON   `db:"raw_data"`
	LastSyncedAt         time.Time   `db:"last_synced_at"`
	CreatedAt            time.Time   `db:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at"`
}

func (repo timelineRepository) rowify(ev timeline.Event) eventRow {
	return eventRow{
		ID:                   ev.ID,
		UserID:               ev.UserID,
		SourceType:           string(ev.SourceType),
		SourceID:             ev.SourceID,
		DateKind:             string(ev.DateKind),
		OrgUnitID:            ev.OrgUnitID,
		Title:                ev.Title,
		Description:          null.NewString(ev.Description, ev.Description != ""),
		StartAt:              ev.StartAt.UTC(),
		EndAt:                null.TimeFromPtr(ev.EndAt),
		IsAllDay:             ev.IsAllDay,
		AssociatedEntityType: null.NewString(ev.AssociatedEntityType, ev.AssociatedEntityType != ""),
		AssociatedEntityID:   null.NewString(ev.AssociatedEntityID, ev.AssociatedEntityID != ""),
		ViewURL:              null.NewString(ev.ViewURL, ev.ViewURL != ""),
		RawData:              null.JSONFrom(ev.RawData),
		LastSyncedAt:         ev.LastSyncedAt.UTC(),
	}
}

func (repo timelineRepository) unrowify(row eventRow) timeline.Event {
	return timeline.Event{
		ID:                   row.ID,
		UserID:               row.UserID,
		SourceType:           timeline.SourceType(row.SourceType),
		SourceID:             row.SourceID,
		DateKind:             timeline.DateKind(row.DateKind),
		OrgUnitID:            row.OrgUnitID,
		Title:                row.Title,
		Description:          row.Description.String,
		StartAt:              row.StartAt,
		EndAt:                row.EndAt.Ptr(),
		IsAllDay:             row.IsAllDay,
		AssociatedEntityType: row.AssociatedEntityType.String,
		AssociatedEntityID:   row.AssociatedEntityID.String,
		ViewURL:              row.ViewURL.String,
		RawData:              json.RawMessage(row.RawData.JSON),
		LastSyncedAt:         row.LastSyncedAt,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
}

// UpsertEvent is idempotent on (user_id, source_type, source_id, date_kind);
// re-applying an identical event only refreshes last_synced_at/updated_at.
func (repo timelineRepository) UpsertEvent(ctx context.Context, ev timeline.Event) error {
	row := repo.rowify(ev)
	if row.ID == "" {
		row.ID = uuid.New().String()
	}

	query, args, err := psql.
		Insert("timeline_event").
		Columns("id", "user_id", "source_type", "source_id", "date_kind", "org_unit_id",
			"title", "description", "start_at", "end_at", "is_all_day",
			"associated_entity_type", "associated_entity_id", "view_url", "raw_data", "last_synced_at").
		Values(row.ID, row.UserID, row.SourceType, row.SourceID, row.DateKind, row.OrgUnitID,
			row.Title, row.Description, row.StartAt, row.EndAt, row.IsAllDay,
			row.AssociatedEntityType, row.AssociatedEntityID, row.ViewURL, row.RawData, row.LastSyncedAt).
		Suffix(`ON CONFLICT (user_id, source_type, source_id, date_kind) DO UPDATE SET
			org_unit_id = EXCLUDED.org_unit_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			start_at = EXCLUDED.start_at,
			end_at = EXCLUDED.end_at,
			is_all_day = EXCLUDED.is_all_day,
			associated_entity_type = EXCLUDED.associated_entity_type,
			associated_entity_id = EXCLUDED.associated_entity_id,
			view_url = EXCLUDED.view_url,
			raw_data = EXCLUDED.raw_data,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = NOW()`).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building event upsert")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "upserting timeline event")
	}
	return nil
}

func (repo timelineRepository) QueryEventKeys(ctx context.Context, userID string, orgUnitIDs []int, w timeline.Window) ([]timeline.EventKey, error) {
	query, args, err := psql.
		Select("source_type", "source_id", "date_kind").
		From("timeline_event").
		Where(sq.Eq{"user_id": userID, "org_unit_id": orgUnitIDs}).
		Where(sq.GtOrEq{"start_at": w.Start}).
		Where(sq.LtOrEq{"start_at": w.End}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building key query")
	}

	var rows []struct {
		SourceType string `db:"source_type"`
		SourceID   string `db:"source_id"`
		DateKind   string `db:"date_kind"`
	}
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying timeline keys")
	}

	keys := make([]timeline.EventKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, timeline.EventKey{
			SourceType: timeline.SourceType(row.SourceType),
			SourceID:   row.SourceID,
			DateKind:   timeline.DateKind(row.DateKind),
		})
	}
	return keys, nil
}

func (repo timelineRepository) DeleteEventsByKeys(ctx context.Context, userID string, keys []timeline.EventKey) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	match := make(sq.Or, 0, len(keys))
	for _, key := range keys {
		match = append(match, sq.Eq{
			"source_type": string(key.SourceType),
			"source_id":   key.SourceID,
			"date_kind":   string(key.DateKind),
		})
	}
	query, args, err := psql.
		Delete("timeline_event").
		Where(sq.Eq{"user_id": userID}).
		Where(match).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building event delete")
	}

	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting timeline events")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting deleted timeline events")
	}
	return int(cnt), nil
}

func (repo timelineRepository) QueryEvents(ctx context.Context, userID string, filter timeline.QueryFilter) ([]timeline.Event, error) {
	builder := psql.
		Select("*").
		From("timeline_event").
		Where(sq.Eq{"user_id": userID}).
		OrderBy(
			core.DBOrdering{Field: "start_at", Ascending: true}.String(),
			core.DBOrdering{Field: "source_type", Ascending: true}.String(),
			core.DBOrdering{Field: "source_id", Ascending: true}.String(),
		)

	if !filter.From.IsZero() {
		builder = builder.Where(sq.GtOrEq{"start_at": filter.From})
	}
	if !filter.To.IsZero() {
		builder = builder.Where(sq.LtOrEq{"start_at": filter.To})
	}
	if len(filter.Sources) > 0 {
		sources := make([]string, 0, len(filter.Sources))
		for _, src := range filter.Sources {
			sources = append(sources, string(src))
		}
		builder = builder.Where(sq.Eq{"source_type": sources})
	}
	if filter.OrgUnitID != 0 {
		builder = builder.Where(sq.Eq{"org_unit_id": filter.OrgUnitID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building event query")
	}

	var rows []eventRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying timeline events")
	}
	events := make([]timeline.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, repo.unrowify(row))
	}
	return events, nil
}

type outcomeRow struct {
	ID                string        `db:"id"`
	UserID            string        `db:"user_id"`
	Status            string        `db:"status"`
	EventsFetched     int           `db:"events_fetched"`
	EventsUpserted    int           `db:"events_upserted"`
	EventsDeleted     int           `db:"events_deleted"`
	DuplicatesSkipped int           `db:"duplicates_skipped"`
	ForbiddenOrgUnits pq.Int64Array `db:"forbidden_org_units"`
	SourceCounts      null.JSON     `db:"source_counts"`
	WindowStart       time.Time     `db:"window_start"`
	WindowEnd         time.Time     `db:"window_end"`
	Error             null.String   `db:"error"`
	StartedAt         time.Time     `db:"started_at"`
	FinishedAt        time.Time     `db:"finished_at"`
}

func (repo timelineRepository) CreateOutcome(ctx context.Context, out timeline.Outcome) (timeline.Outcome, error) {
	out.ID = uuid.New().String()

	forbidden := make(pq.Int64Array, 0, len(out.ForbiddenOrgUnits))
	for _, ou := range out.ForbiddenOrgUnits {
		forbidden = append(forbidden, int64(ou))
	}
	counts, err := json.Marshal(out.SourceCounts)
	if err != nil {
		return timeline.Outcome{}, errors.Wrap(err, "encoding source counts")
	}

	query, args, err := psql.
		Insert("sync_outcome").
		Columns("id", "user_id", "status", "events_fetched", "events_upserted", "events_deleted",
			"duplicates_skipped", "forbidden_org_units", "source_counts",
			"window_start", "window_end", "error", "started_at", "finished_at").
		Values(out.ID, out.UserID, string(out.Status), out.EventsFetched, out.EventsUpserted, out.EventsDeleted,
			out.DuplicatesSkipped, forbidden, null.JSONFrom(counts),
			out.WindowStart, out.WindowEnd, null.NewString(out.Error, out.Error != ""),
			out.StartedAt, out.FinishedAt).
		ToSql()
	if err != nil {
		return timeline.Outcome{}, errors.Wrap(err, "building outcome insert")
	}
	if _, err = repo.db.ExecContext(ctx, query, args...); err != nil {
		return timeline.Outcome{}, errors.Wrap(err, "inserting sync outcome")
	}
	return out, nil
}

func (repo timelineRepository) LatestOutcome(ctx context.Context, userID string) (timeline.Outcome, error) {
	query, args, err := psql.
		Select("*").
		From("sync_outcome").
		Where(sq.Eq{"user_id": userID}).
		OrderBy(core.DBOrdering{Field: "started_at"}.String()).
		Limit(1).
		ToSql()
	if err != nil {
		return timeline.Outcome{}, errors.Wrap(err, "building outcome query")
	}

	var row outcomeRow
	if err = repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return timeline.Outcome{}, timeline.ErrOutcomeNotFound
		}
		return timeline.Outcome{}, errors.Wrap(err, "querying latest sync outcome")
	}

	out := timeline.Outcome{
		ID:                row.ID,
		UserID:            row.UserID,
		Status:            timeline.Status(row.Status),
		EventsFetched:     row.EventsFetched,
		EventsUpserted:    row.EventsUpserted,
		EventsDeleted:     row.EventsDeleted,
		DuplicatesSkipped: row.DuplicatesSkipped,
		WindowStart:       row.WindowStart,
		WindowEnd:         row.WindowEnd,
		Error:             row.Error.String,
		StartedAt:         row.StartedAt,
		FinishedAt:        row.FinishedAt,
	}
	for _, ou := range row.ForbiddenOrgUnits {
		out.ForbiddenOrgUnits = append(out.ForbiddenOrgUnits, int(ou))
	}
	if row.SourceCounts.Valid {
		if err = json.Unmarshal(row.SourceCounts.JSON, &out.SourceCounts); err != nil {
			return timeline.Outcome{}, errors.Wrap(err, "decoding source counts")
		}
	}
	return out, nil
}
