package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/athravseruwam07/clarus/core/timeline"
)

func testEvent(userID, sourceID string, orgUnit int, startAt time.Time) timeline.Event {
	return timeline.Event{
		UserID:     userID,
		SourceType: timeline.SourceCalendar,
		SourceID:   sourceID,
		DateKind:   timeline.KindEvent,
		OrgUnitID:  orgUnit,
		Title:      "event " + sourceID,
		StartAt:    startAt,
	}
}

func TestTimelineRepositoryEvents(t *testing.T) {
	db, _ := Open()
	repo := NewTimelineRepository(db)
	ctx := context.Background()

	at := time.Date(2026, time.October, 5, 14, 30, 0, 0, time.UTC)
	window := timeline.ComputeWindow(time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC))

	for _, ev := range []timeline.Event{
		testEvent("u1", "1", 101, at),
		testEvent("u1", "2", 102, at.Add(time.Hour)),
		testEvent("u1", "3", 101, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)), // out of window
		testEvent("u2", "1", 101, at), // other user, same key
	} {
		if err := repo.UpsertEvent(ctx, ev); err != nil {
			t.Fatalf("UpsertEvent() error = %v", err)
		}
	}

	t.Run("upsert preserves identity", func(t *testing.T) {
		events, err := repo.QueryEvents(ctx, "u1", timeline.QueryFilter{OrgUnitID: 101})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 {
			t.Fatalf("len(events) = %d, want 2", len(events))
		}
		id := events[1].ID

		updated := testEvent("u1", "1", 101, at)
		updated.Title = "renamed"
		if err = repo.UpsertEvent(ctx, updated); err != nil {
			t.Fatal(err)
		}
		events, err = repo.QueryEvents(ctx, "u1", timeline.QueryFilter{OrgUnitID: 101})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 {
			t.Fatalf("len(events) = %d after re-upsert, want 2", len(events))
		}
		if events[1].ID != id {
			t.Errorf("ID changed on upsert: %q -> %q", id, events[1].ID)
		}
		if events[1].Title != "renamed" {
			t.Errorf("Title = %q, want %q", events[1].Title, "renamed")
		}
	})

	t.Run("key query is scoped to org units and window", func(t *testing.T) {
		keys, err := repo.QueryEventKeys(ctx, "u1", []int{101}, window)
		if err != nil {
			t.Fatal(err)
		}
		if len(keys) != 1 || keys[0].SourceID != "1" {
			t.Errorf("keys = %v, want only the in-window org 101 key", keys)
		}
	})

	t.Run("query filters by source and range", func(t *testing.T) {
		events, err := repo.QueryEvents(ctx, "u1", timeline.QueryFilter{
			From:    at.Add(30 * time.Minute),
			Sources: []timeline.SourceType{timeline.SourceCalendar},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].SourceID != "2" {
			t.Errorf("events = %v, want only the later event", events)
		}
	})

	t.Run("delete is per user", func(t *testing.T) {
		n, err := repo.DeleteEventsByKeys(ctx, "u1", []timeline.EventKey{
			{SourceType: timeline.SourceCalendar, SourceID: "1", DateKind: timeline.KindEvent},
			{SourceType: timeline.SourceCalendar, SourceID: "missing", DateKind: timeline.KindEvent},
		})
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("deleted = %d, want 1", n)
		}
		// u2's row with the same key survives
		events, err := repo.QueryEvents(ctx, "u2", timeline.QueryFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 {
			t.Errorf("u2 events = %d, want 1", len(events))
		}
	})
}

func TestTimelineRepositoryOutcomes(t *testing.T) {
	db, _ := Open()
	repo := NewTimelineRepository(db)
	ctx := context.Background()

	if _, err := repo.LatestOutcome(ctx, "u1"); err != timeline.ErrOutcomeNotFound {
		t.Errorf("LatestOutcome() error = %v, want %v", err, timeline.ErrOutcomeNotFound)
	}

	for _, out := range []timeline.Outcome{
		{UserID: "u1", Status: timeline.StatusFailed},
		{UserID: "u2", Status: timeline.StatusSuccess},
		{UserID: "u1", Status: timeline.StatusPartial, ForbiddenOrgUnits: []int{102}},
	} {
		if _, err := repo.CreateOutcome(ctx, out); err != nil {
			t.Fatalf("CreateOutcome() error = %v", err)
		}
	}

	latest, err := repo.LatestOutcome(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestOutcome() error = %v", err)
	}
	if latest.Status != timeline.StatusPartial {
		t.Errorf("Status = %q, want the most recent u1 outcome", latest.Status)
	}
	if latest.ID == "" {
		t.Error("ID not assigned on create")
	}
}
