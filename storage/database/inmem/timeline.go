package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/athravseruwam07/clarus/core/timeline"
)

type timelineRepository struct {
	db *timelineTable
}

var _ timeline.Repository = (*timelineRepository)(nil)

func NewTimelineRepository(db *DB) *timelineRepository {
	return &timelineRepository{db: db.timeline}
}

func eventMapKey(userID string, key timeline.EventKey) string {
	return userID + "|" + key.String()
}

func (repo *timelineRepository) UpsertEvent(_ context.Context, ev timeline.Event) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	now := time.Now().UTC()
	mapKey := eventMapKey(ev.UserID, ev.Key())
	if existing, ok := repo.db.events[mapKey]; ok {
		ev.ID = existing.ID
		ev.CreatedAt = existing.CreatedAt
	} else {
		ev.ID = uuid.New().String()
		ev.CreatedAt = now
	}
	ev.UpdatedAt = now
	repo.db.events[mapKey] = &ev
	return nil
}

func (repo *timelineRepository) QueryEventKeys(_ context.Context, userID string, orgUnitIDs []int, w timeline.Window) ([]timeline.EventKey, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	orgUnits := make(map[int]bool, len(orgUnitIDs))
	for _, ou := range orgUnitIDs {
		orgUnits[ou] = true
	}

	var keys []timeline.EventKey
	for _, ev := range repo.db.events {
		if ev.UserID == userID && orgUnits[ev.OrgUnitID] && w.Contains(ev.StartAt) {
			keys = append(keys, ev.Key())
		}
	}
	return keys, nil
}

func (repo *timelineRepository) DeleteEventsByKeys(_ context.Context, userID string, keys []timeline.EventKey) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var deleted int
	for _, key := range keys {
		mapKey := eventMapKey(userID, key)
		if _, ok := repo.db.events[mapKey]; ok {
			delete(repo.db.events, mapKey)
			deleted++
		}
	}
	return deleted, nil
}

func (repo *timelineRepository) QueryEvents(_ context.Context, userID string, filter timeline.QueryFilter) ([]timeline.Event, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	sources := make(map[timeline.SourceType]bool, len(filter.Sources))
	for _, src := range filter.Sources {
		sources[src] = true
	}

	var events []timeline.Event
	for _, ev := range repo.db.events {
		if ev.UserID != userID {
			continue
		}
		if !filter.From.IsZero() && ev.StartAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && ev.StartAt.After(filter.To) {
			continue
		}
		if len(sources) > 0 && !sources[ev.SourceType] {
			continue
		}
		if filter.OrgUnitID != 0 && ev.OrgUnitID != filter.OrgUnitID {
			continue
		}
		events = append(events, *ev)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartAt.Equal(events[j].StartAt) {
			return events[i].StartAt.Before(events[j].StartAt)
		}
		return events[i].Key().String() < events[j].Key().String()
	})
	return events, nil
}

func (repo *timelineRepository) CreateOutcome(_ context.Context, out timeline.Outcome) (timeline.Outcome, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	out.ID = uuid.New().String()
	repo.db.outcomes = append(repo.db.outcomes, out)
	return out, nil
}

func (repo *timelineRepository) LatestOutcome(_ context.Context, userID string) (timeline.Outcome, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for i := len(repo.db.outcomes) - 1; i >= 0; i-- {
		if repo.db.outcomes[i].UserID == userID {
			return repo.db.outcomes[i], nil
		}
	}
	return timeline.Outcome{}, timeline.ErrOutcomeNotFound
}
