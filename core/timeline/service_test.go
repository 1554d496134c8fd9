package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/athravseruwam07/clarus/core"
	"github.com/athravseruwam07/clarus/core/course"
	"github.com/athravseruwam07/clarus/core/lms"
)

// --- fakes ---

type fakeRepo struct {
	mu       sync.Mutex
	events   map[string]Event // keyed by EventKey.String(); single-user tests
	outcomes []Outcome
}

var _ Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{events: make(map[string]Event)}
}

func (r *fakeRepo) UpsertEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[ev.Key().String()] = ev
	return nil
}

func (r *fakeRepo) QueryEventKeys(_ context.Context, _ string, orgUnitIDs []int, w Window) ([]EventKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	units := make(map[int]bool, len(orgUnitIDs))
	for _, ou := range orgUnitIDs {
		units[ou] = true
	}
	var keys []EventKey
	for _, ev := range r.events {
		if units[ev.OrgUnitID] && w.Contains(ev.StartAt) {
			keys = append(keys, ev.Key())
		}
	}
	return keys, nil
}

func (r *fakeRepo) DeleteEventsByKeys(_ context.Context, _ string, keys []EventKey) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, key := range keys {
		if _, ok := r.events[key.String()]; ok {
			delete(r.events, key.String())
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) QueryEvents(_ context.Context, _ string, _ QueryFilter) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]Event, 0, len(r.events))
	for _, ev := range r.events {
		events = append(events, ev)
	}
	return events, nil
}

func (r *fakeRepo) CreateOutcome(_ context.Context, out Outcome) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out.ID = strconv.Itoa(len(r.outcomes) + 1)
	r.outcomes = append(r.outcomes, out)
	return out, nil
}

func (r *fakeRepo) LatestOutcome(_ context.Context, _ string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return Outcome{}, ErrOutcomeNotFound
	}
	return r.outcomes[len(r.outcomes)-1], nil
}

type fakeCourseRepo struct {
	active []course.Course
}

func (r *fakeCourseRepo) UpsertCourse(_ context.Context, crs course.Course) (course.Course, error) {
	return crs, nil
}

func (r *fakeCourseRepo) QueryActiveCourses(context.Context, string) ([]course.Course, error) {
	return r.active, nil
}

func (r *fakeCourseRepo) GetCourseByOrgUnit(context.Context, string, int) (course.Course, error) {
	return course.Course{}, course.ErrNotFound
}

func activeCourses(orgUnits ...int) *fakeCourseRepo {
	repo := &fakeCourseRepo{}
	for _, ou := range orgUnits {
		repo.active = append(repo.active, course.Course{OrgUnitID: ou, IsActive: true})
	}
	return repo
}

// lmsScript serves a scripted institution: calendar events and dropbox
// folders per org unit, every other tool disabled (404).
type lmsScript struct {
	forbidden map[int]bool
	calendar  map[int][]json.RawMessage
	dropbox   map[int][]json.RawMessage
}

// pathOrgUnit extracts the org unit from an API path like
// "/d2l/api/le/1.75/123/dropbox/folders/".
func pathOrgUnit(t *testing.T, path string) int {
	t.Helper()
	parts := strings.Split(strings.TrimPrefix(path, "/d2l/api/le/"), "/")
	if len(parts) < 2 {
		t.Fatalf("unparseable API path: %s", path)
	}
	ou, err := strconv.Atoi(parts[1])
	if err != nil {
		t.Fatalf("unparseable org unit in path %s: %v", path, err)
	}
	return ou
}

func (s *lmsScript) client(t *testing.T) *fakeClient {
	t.Helper()
	c := &fakeClient{}

	c.probe = func(path string) (json.RawMessage, error) {
		switch {
		case path == versionsPath:
			// degrade negotiation to the static fallback list
			return nil, apiErr(http.StatusInternalServerError)
		case strings.Contains(path, "/calendar/events/myEvents/"):
			return json.RawMessage(`{"Next": null, "Objects": []}`), nil
		case strings.Contains(path, "/dropbox/folders/"):
			items := s.dropbox[pathOrgUnit(t, path)]
			body, _ := json.Marshal(items)
			if items == nil {
				body = []byte(`[]`)
			}
			return body, nil
		default:
			// content, quizzes, discussions, checklists are not enabled
			return nil, apiErr(http.StatusNotFound)
		}
	}

	c.list = func(path string) (lms.Page, error) {
		if !strings.Contains(path, "/calendar/events/myEvents/") {
			return lms.Page{}, apiErr(http.StatusNotFound)
		}
		q, err := url.ParseQuery(path[strings.IndexByte(path, '?')+1:])
		if err != nil {
			t.Fatalf("unparseable calendar query in %s: %v", path, err)
		}
		var objects []json.RawMessage
		for _, id := range strings.Split(q.Get("orgUnitIdsCSV"), ",") {
			ou, err := strconv.Atoi(id)
			if err != nil {
				t.Fatalf("unparseable org unit %q in %s", id, path)
			}
			if s.forbidden[ou] {
				return lms.Page{}, apiErr(http.StatusForbidden)
			}
			objects = append(objects, s.calendar[ou]...)
		}
		return lms.Page{Objects: objects}, nil
	}
	return c
}

func newTestService(repo Repository, courses course.Repository, client lms.Client) *Service {
	factory := func(context.Context, string) (lms.Client, error) { return client, nil }
	return NewService(repo, course.NewService(courses), factory, []string{"1.75"}, core.NopLogger{})
}

func calendarJSON(id int64, orgUnit int, title string, start time.Time) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"CalendarEventId": %d, "OrgUnitId": %d, "Title": %q, "StartDateTime": %q}`,
		id, orgUnit, title, start.Format(time.RFC3339)))
}

func dropboxJSON(id int64, name string, due time.Time) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"Id": %d, "Name": %q, "DueDate": %q}`, id, name, due.Format(time.RFC3339)))
}

// --- tests ---

func TestRunCalendarSync(t *testing.T) {
	fixedNow := time.Date(2026, time.September, 15, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = time.Now }()

	inWindow := time.Date(2026, time.October, 5, 14, 30, 0, 0, time.UTC)
	outOfWindow := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)

	t.Run("success and idempotence", func(t *testing.T) {
		script := &lmsScript{
			calendar: map[int][]json.RawMessage{
				101: {
					calendarJSON(9001, 101, "Lecture", inWindow),
					calendarJSON(9002, 101, "Far future", outOfWindow),
				},
			},
			dropbox: map[int][]json.RawMessage{
				101: {dropboxJSON(55, "Lab 3", inWindow)},
			},
		}
		repo := newFakeRepo()
		svc := newTestService(repo, activeCourses(101, 102), script.client(t))

		out, err := svc.RunCalendarSync(context.Background(), "u1")
		if err != nil {
			t.Fatalf("RunCalendarSync() error = %v", err)
		}
		if out.Status != StatusSuccess {
			t.Errorf("Status = %q, want %q", out.Status, StatusSuccess)
		}
		if out.EventsFetched != 3 {
			t.Errorf("EventsFetched = %d, want 3", out.EventsFetched)
		}
		if out.EventsUpserted != 2 {
			t.Errorf("EventsUpserted = %d, want 2 (out-of-window entry dropped)", out.EventsUpserted)
		}
		if out.EventsDeleted != 0 || out.DuplicatesSkipped != 0 {
			t.Errorf("EventsDeleted/DuplicatesSkipped = %d/%d, want 0/0", out.EventsDeleted, out.DuplicatesSkipped)
		}
		if len(out.ForbiddenOrgUnits) != 0 {
			t.Errorf("ForbiddenOrgUnits = %v, want none", out.ForbiddenOrgUnits)
		}
		wantCounts := map[SourceType]int{SourceCalendar: 1, SourceDropboxFolder: 1}
		if !reflect.DeepEqual(out.SourceCounts, wantCounts) {
			t.Errorf("SourceCounts = %v, want %v", out.SourceCounts, wantCounts)
		}
		if !out.WindowStart.Equal(time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("WindowStart = %v", out.WindowStart)
		}
		if out.ID == "" {
			t.Error("outcome not recorded")
		}

		// a second identical run converges to the same state
		out2, err := svc.RunCalendarSync(context.Background(), "u1")
		if err != nil {
			t.Fatalf("second RunCalendarSync() error = %v", err)
		}
		if out2.EventsDeleted != 0 {
			t.Errorf("second run EventsDeleted = %d, want 0", out2.EventsDeleted)
		}
		if len(repo.events) != 2 {
			t.Errorf("stored events = %d, want 2", len(repo.events))
		}
	})

	t.Run("forbidden org unit yields partial and keeps its stored events", func(t *testing.T) {
		script := &lmsScript{
			forbidden: map[int]bool{102: true},
			calendar: map[int][]json.RawMessage{
				101: {calendarJSON(9001, 101, "Lecture", inWindow)},
			},
		}
		repo := newFakeRepo()

		// pre-existing state: one stale row in the permitted unit, one row in
		// the forbidden unit, one row outside the window
		seed := []Event{
			{SourceType: SourceCalendar, SourceID: "old", DateKind: KindEvent, OrgUnitID: 101, StartAt: inWindow},
			{SourceType: SourceQuiz, SourceID: "88", DateKind: KindDue, OrgUnitID: 102, StartAt: inWindow},
			{SourceType: SourceCalendar, SourceID: "ancient", DateKind: KindEvent, OrgUnitID: 101, StartAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		}
		for _, ev := range seed {
			if err := repo.UpsertEvent(context.Background(), ev); err != nil {
				t.Fatal(err)
			}
		}

		svc := newTestService(repo, activeCourses(101, 102), script.client(t))
		out, err := svc.RunCalendarSync(context.Background(), "u1")
		if err != nil {
			t.Fatalf("RunCalendarSync() error = %v", err)
		}
		if out.Status != StatusPartial {
			t.Errorf("Status = %q, want %q", out.Status, StatusPartial)
		}
		if !reflect.DeepEqual(out.ForbiddenOrgUnits, []int{102}) {
			t.Errorf("ForbiddenOrgUnits = %v, want [102]", out.ForbiddenOrgUnits)
		}
		if out.EventsDeleted != 1 {
			t.Errorf("EventsDeleted = %d, want 1 (only the stale permitted-unit row)", out.EventsDeleted)
		}
		if _, ok := repo.events["quiz:88:due"]; !ok {
			t.Error("forbidden org unit row was deleted")
		}
		if _, ok := repo.events["calendar:ancient:event"]; !ok {
			t.Error("out-of-window row was deleted")
		}
		if _, ok := repo.events["calendar:old:event"]; ok {
			t.Error("stale row survived")
		}
		if _, ok := repo.events["calendar:9001:event"]; !ok {
			t.Error("fetched event missing from store")
		}
	})

	t.Run("session expiry aborts with reconnect and records a failed outcome", func(t *testing.T) {
		client := &fakeClient{probe: func(string) (json.RawMessage, error) {
			return nil, apiErr(http.StatusUnauthorized)
		}}
		repo := newFakeRepo()
		svc := newTestService(repo, activeCourses(101), client)

		out, err := svc.RunCalendarSync(context.Background(), "u1")
		if !IsSyncError(err, CodeReconnectRequired) {
			t.Fatalf("RunCalendarSync() error = %v, want code %s", err, CodeReconnectRequired)
		}
		if out.Status != StatusFailed {
			t.Errorf("Status = %q, want %q", out.Status, StatusFailed)
		}
		if len(repo.outcomes) != 1 || repo.outcomes[0].Status != StatusFailed {
			t.Errorf("recorded outcomes = %+v, want one failed outcome", repo.outcomes)
		}
	})

	t.Run("no active courses", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo, &fakeCourseRepo{}, (&lmsScript{}).client(t))

		_, err := svc.RunCalendarSync(context.Background(), "u1")
		if !IsSyncError(err, CodeNoActiveCourses) {
			t.Fatalf("RunCalendarSync() error = %v, want code %s", err, CodeNoActiveCourses)
		}
		if len(repo.outcomes) != 1 || repo.outcomes[0].Status != StatusFailed {
			t.Errorf("recorded outcomes = %+v, want one failed outcome", repo.outcomes)
		}
	})

	t.Run("latest outcome round trip", func(t *testing.T) {
		script := &lmsScript{calendar: map[int][]json.RawMessage{
			101: {calendarJSON(9001, 101, "Lecture", inWindow)},
		}}
		repo := newFakeRepo()
		svc := newTestService(repo, activeCourses(101), script.client(t))

		if _, err := svc.LatestOutcome(context.Background(), "u1"); err != ErrOutcomeNotFound {
			t.Errorf("LatestOutcome() error = %v, want %v", err, ErrOutcomeNotFound)
		}
		out, err := svc.RunCalendarSync(context.Background(), "u1")
		if err != nil {
			t.Fatalf("RunCalendarSync() error = %v", err)
		}
		latest, err := svc.LatestOutcome(context.Background(), "u1")
		if err != nil {
			t.Fatalf("LatestOutcome() error = %v", err)
		}
		if latest.ID != out.ID {
			t.Errorf("LatestOutcome().ID = %q, want %q", latest.ID, out.ID)
		}
	})
}
