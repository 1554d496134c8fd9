package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/athravseruwam07/clarus/core"
	"github.com/athravseruwam07/clarus/core/course"
	"github.com/athravseruwam07/clarus/core/lms"
)

var (
	// errors
	ErrOutcomeNotFound = errors.New("sync outcome not found")

	nowFunc = time.Now // changed in tests
)

// Bounded concurrency; each pool is independent.
const (
	deepFetchWorkers     = 4  // per org unit
	moduleFetchWorkers   = 3  // content structure within one org unit
	checklistItemWorkers = 4  // checklist items within one org unit
	upsertWorkers        = 20 // persistence upserts
	deleteBatchSize      = 100
)

type (
	// Repository is the keyed upsert/delete store for timeline events and
	// sync outcomes.
	Repository interface {
		UpsertEvent(ctx context.Context, ev Event) error
		// QueryEventKeys returns the stored keys for this user restricted
		// to the given org units and to StartAt within the window.
		QueryEventKeys(ctx context.Context, userID string, orgUnitIDs []int, w Window) ([]EventKey, error)
		DeleteEventsByKeys(ctx context.Context, userID string, keys []EventKey) (int, error)
		QueryEvents(ctx context.Context, userID string, filter QueryFilter) ([]Event, error)
		CreateOutcome(ctx context.Context, out Outcome) (Outcome, error)
		LatestOutcome(ctx context.Context, userID string) (Outcome, error)
	}

	// ClientFactory builds the per-user LMS connector holding the user's
	// session credential.
	ClientFactory func(ctx context.Context, userID string) (lms.Client, error)

	Service struct {
		repo             Repository
		courses          *course.Service
		clients          ClientFactory
		fallbackVersions []string
		log              core.Logger
	}
)

func NewService(repo Repository, courses *course.Service, clients ClientFactory, fallbackVersions []string, logger core.Logger) *Service {
	return &Service{
		repo:             repo,
		courses:          courses,
		clients:          clients,
		fallbackVersions: fallbackVersions,
		log:              logger,
	}
}

// QueryEvents is the timeline read path (date range + source filters).
func (svc *Service) QueryEvents(ctx context.Context, userID string, filter QueryFilter) ([]Event, error) {
	return svc.repo.QueryEvents(ctx, userID, filter)
}

// LatestOutcome returns the most recent sync outcome for the user.
func (svc *Service) LatestOutcome(ctx context.Context, userID string) (Outcome, error) {
	return svc.repo.LatestOutcome(ctx, userID)
}

// RunCalendarSync pulls all scheduling data from the LMS for one user,
// reconciles it into a canonical draft set and converges stored state to
// exactly match: resolve active courses → negotiate API version → fetch
// calendar (isolating forbidden org units) → fan out per-course deep
// fetch → reconcile → persist → record the outcome.
func (svc *Service) RunCalendarSync(ctx context.Context, userID string) (Outcome, error) {
	started := nowFunc().UTC()
	window := ComputeWindow(started)
	out := Outcome{
		UserID:      userID,
		Status:      StatusFailed,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		StartedAt:   started,
	}

	// on any fatal error, still record a failed outcome best-effort
	fail := func(err error) (Outcome, error) {
		if lms.IsSessionExpired(err) {
			err = ErrReconnectRequired
		}
		out.Error = err.Error()
		out.FinishedAt = nowFunc().UTC()
		if _, recErr := svc.repo.CreateOutcome(ctx, out); recErr != nil {
			svc.log.Warn("recording failed sync outcome", recErr)
		}
		svc.log.Error("calendar sync failed", err)
		return out, err
	}

	courses, err := svc.courses.QueryActive(ctx, userID)
	if err != nil {
		return fail(errors.Wrap(err, "querying active courses"))
	}
	if len(courses) == 0 {
		return fail(ErrNoActiveCourses)
	}
	orgUnits := course.OrgUnitIDs(courses)

	client, err := svc.clients(ctx, userID)
	if err != nil {
		return fail(err)
	}

	version, err := negotiateCalendarVersion(ctx, client, svc.fallbackVersions, orgUnits[0])
	if err != nil {
		return fail(err)
	}
	svc.log.Debug("negotiated calendar API version", version)

	run := &syncRun{
		svc:     svc,
		client:  client,
		version: version,
		window:  window,
		rec:     newReconciler(window),
	}

	// calendar first: its ingestion must be complete and visible before
	// any deep-fetch draft is reconciled
	calObjects, forbidden, err := isolateForbidden(ctx, orgUnits, run.fetchCalendarBatch)
	if err != nil {
		return fail(err)
	}
	run.addFetched(len(calObjects))
	for _, raw := range calObjects {
		if draft, ok := parseCalendarEvent(raw, client.Host()); ok {
			run.rec.add(draft)
		}
	}

	forbiddenSet := make(map[int]bool, len(forbidden))
	for _, ou := range forbidden {
		forbiddenSet[ou] = true
	}
	synced := make([]int, 0, len(orgUnits))
	for _, ou := range orgUnits {
		if !forbiddenSet[ou] {
			synced = append(synced, ou)
		}
	}

	// deep fetch fans out per course; a single collector goroutine owns
	// the reconciler so workers never touch shared state directly
	drafts := make(chan Draft, 64)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for d := range drafts {
			run.rec.add(d)
		}
	}()

	unitErrs := make([]error, len(synced))
	runPool(deepFetchWorkers, len(synced), func(i int) {
		unitErrs[i] = run.fetchCourse(ctx, synced[i], drafts)
	})
	close(drafts)
	<-collected

	for _, unitErr := range unitErrs {
		if unitErr != nil {
			return fail(unitErr)
		}
	}

	upserted, deleted, err := svc.persist(ctx, userID, run.rec.snapshot(), synced, window)
	if err != nil {
		return fail(err)
	}

	sort.Ints(forbidden)
	out.Status = StatusSuccess
	if len(forbidden) > 0 {
		out.Status = StatusPartial
	}
	out.EventsFetched = int(atomic.LoadInt64(&run.fetched))
	out.EventsUpserted = upserted
	out.EventsDeleted = deleted
	out.DuplicatesSkipped = run.rec.duplicatesSkipped
	out.ForbiddenOrgUnits = forbidden
	out.SourceCounts = run.rec.counts()
	out.FinishedAt = nowFunc().UTC()

	recorded, err := svc.repo.CreateOutcome(ctx, out)
	if err != nil {
		return out, errors.Wrap(err, "recording sync outcome")
	}
	svc.log.Info("calendar sync finished", userID, string(out.Status), out.EventsUpserted, out.EventsDeleted)
	return recorded, nil
}

// persist is the persistence reconciler: upsert every draft, then delete
// previously stored keys (restricted to successfully synced org units and
// the window) that are absent from the current fetch. Keys of forbidden
// org units are never touched, so a transient permission failure cannot
// wipe a user's existing data for that course.
func (svc *Service) persist(ctx context.Context, userID string, drafts []Draft, syncedOrgUnits []int, window Window) (upserted, deleted int, err error) {
	syncedAt := nowFunc().UTC()

	upsertErrs := make([]error, len(drafts))
	runPool(upsertWorkers, len(drafts), func(i int) {
		upsertErrs[i] = svc.repo.UpsertEvent(ctx, newEvent(userID, drafts[i], syncedAt))
	})
	for _, upsertErr := range upsertErrs {
		if upsertErr != nil {
			return 0, 0, errors.Wrap(upsertErr, "upserting timeline events")
		}
	}

	current := make(map[string]bool, len(drafts))
	for _, d := range drafts {
		current[d.Key()] = true
	}

	storedKeys, err := svc.repo.QueryEventKeys(ctx, userID, syncedOrgUnits, window)
	if err != nil {
		return 0, 0, errors.Wrap(err, "querying stored timeline keys")
	}
	var stale []EventKey
	for _, key := range storedKeys {
		if !current[key.String()] {
			stale = append(stale, key)
		}
	}

	for start := 0; start < len(stale); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(stale) {
			end = len(stale)
		}
		n, delErr := svc.repo.DeleteEventsByKeys(ctx, userID, stale[start:end])
		if delErr != nil {
			return 0, 0, errors.Wrap(delErr, "deleting stale timeline events")
		}
		deleted += n
	}
	return len(drafts), deleted, nil
}

// syncRun carries the per-run state shared by the fetch helpers.
type syncRun struct {
	svc     *Service
	client  lms.Client
	version string
	window  Window
	rec     *reconciler
	fetched int64 // atomic
}

func (run *syncRun) addFetched(n int) {
	atomic.AddInt64(&run.fetched, int64(n))
}

func (run *syncRun) path(format string, args ...interface{}) string {
	return fmt.Sprintf("/d2l/api/%s/%s/", calendarProduct, run.version) + fmt.Sprintf(format, args...)
}

func (run *syncRun) fetchCalendarBatch(ctx context.Context, orgUnits []int) ([]json.RawMessage, error) {
	ids := make([]string, len(orgUnits))
	for i, ou := range orgUnits {
		ids[i] = strconv.Itoa(ou)
	}
	q := url.Values{}
	q.Set("startDateTime", run.window.Start.Format(time.RFC3339))
	q.Set("endDateTime", run.window.End.Format(time.RFC3339))
	q.Set("orgUnitIdsCSV", strings.Join(ids, ","))
	return fetchAllPages(ctx, run.client, run.path("calendar/events/myEvents/?")+q.Encode())
}

// skippable downgrades per-course per-source failures to "no data from
// this source": 404 means the tool is not enabled for this course, 403 not
// permitted, 5xx temporarily unavailable. Session expiry and protocol
// violations propagate.
func (run *syncRun) skippable(err error, orgUnitID int, source SourceType) error {
	if err == nil {
		return nil
	}
	if lms.IsSessionExpired(err) {
		return err
	}
	if lms.IsNotFound(err) || lms.IsForbidden(err) || lms.IsTransient(err) {
		run.svc.log.Debug("source unavailable, skipping", string(source), orgUnitID, err)
		return nil
	}
	return err
}

func (run *syncRun) fetchCourse(ctx context.Context, orgUnitID int, drafts chan<- Draft) error {
	for _, fetch := range []func(context.Context, int, chan<- Draft) error{
		run.fetchContent,
		run.fetchDropboxFolders,
		run.fetchQuizzes,
		run.fetchDiscussions,
		run.fetchChecklists,
	} {
		if err := fetch(ctx, orgUnitID, drafts); err != nil {
			return err
		}
	}
	return nil
}

func (run *syncRun) fetchContent(ctx context.Context, orgUnitID int, drafts chan<- Draft) error {
	rootItems, err := fetchPlainList(ctx, run.client, run.path("%d/content/root/", orgUnitID))
	if err != nil {
		return run.skippable(err, orgUnitID, SourceContentModule)
	}
	run.addFetched(len(rootItems))

	var level []int64
	emit := func(raw json.RawMessage) (childID int64, isModule bool) {
		ds, childID, isModule, ok := parseContentObject(raw, orgUnitID, run.client.Host())
		if !ok {
			return 0, false
		}
		for _, d := range ds {
			drafts <- d
		}
		return childID, isModule
	}
	for _, raw := range rootItems {
		if childID, isModule := emit(raw); isModule {
			level = append(level, childID)
		}
	}

	// crawl the module tree breadth-first, a few structure fetches in flight
	for len(level) > 0 {
		current := level
		next := make([][]int64, len(current))
		levelErrs := make([]error, len(current))
		runPool(moduleFetchWorkers, len(current), func(i int) {
			items, fetchErr := fetchPlainList(ctx, run.client, run.path("%d/content/modules/%d/structure/", orgUnitID, current[i]))
			if fetchErr != nil {
				levelErrs[i] = run.skippable(fetchErr, orgUnitID, SourceContentModule)
				return
			}
			run.addFetched(len(items))
			for _, raw := range items {
				if childID, isModule := emit(raw); isModule {
					next[i] = append(next[i], childID)
				}
			}
		})
		for _, levelErr := range levelErrs {
			if levelErr != nil {
				return levelErr
			}
		}
		level = nil
		for _, ids := range next {
			level = append(level, ids...)
		}
	}
	return nil
}

func (run *syncRun) fetchDropboxFolders(ctx context.Context, orgUnitID int, drafts chan<- Draft) error {
	items, err := fetchPlainList(ctx, run.client, run.path("%d/dropbox/folders/", orgUnitID))
	if err != nil {
		return run.skippable(err, orgUnitID, SourceDropboxFolder)
	}
	run.addFetched(len(items))
	for _, raw := range items {
		for _, d := range parseDropboxFolder(raw, orgUnitID, run.client.Host()) {
			drafts <- d
		}
	}
	return nil
}

func (run *syncRun) fetchQuizzes(ctx context.Context, orgUnitID int, drafts chan<- Draft) error {
	items, err := fetchAllPages(ctx, run.client, run.path("%d/quizzes/", orgUnitID))
	if err != nil {
		return run.skippable(err, orgUnitID, SourceQuiz)
	}
	run.addFetched(len(items))
	for _, raw := range items {
		for _, d := range parseQuiz(raw, orgUnitID, run.client.Host()) {
			drafts <- d
		}
	}
	return nil
}

func (run *syncRun) fetchDiscussions(ctx context.Context, orgUnitID int, drafts chan<- Draft) error {
	items, err := fetchPlainList(ctx, run.client, run.path("%d/discussions/forums/", orgUnitID))
	if err != nil {
		return run.skippable(err, orgUnitID, SourceDiscussionForum)
	}
	run.addFetched(len(items))
	for _, raw := range items {
		for _, d := range parseDiscussionForum(raw, orgUnitID, run.client.Host()) {
			drafts <- d
		}
	}
	return nil
}

func (run *syncRun) fetchChecklists(ctx context.Context, orgUnitID int, drafts chan<- Draft) error {
	items, err := fetchPlainList(ctx, run.client, run.path("%d/checklists/", orgUnitID))
	if err != nil {
		return run.skippable(err, orgUnitID, SourceChecklist)
	}
	run.addFetched(len(items))

	type checklist struct {
		id   int64
		name string
	}
	var lists []checklist
	for _, raw := range items {
		if id, name, ok := parseChecklist(raw); ok {
			lists = append(lists, checklist{id, name})
		}
	}

	itemErrs := make([]error, len(lists))
	runPool(checklistItemWorkers, len(lists), func(i int) {
		raws, fetchErr := fetchPlainList(ctx, run.client, run.path("%d/checklists/%d/items/", orgUnitID, lists[i].id))
		if fetchErr != nil {
			itemErrs[i] = run.skippable(fetchErr, orgUnitID, SourceChecklist)
			return
		}
		run.addFetched(len(raws))
		for _, raw := range raws {
			for _, d := range parseChecklistItem(raw, lists[i].id, lists[i].name, orgUnitID, run.client.Host()) {
				drafts <- d
			}
		}
	})
	for _, itemErr := range itemErrs {
		if itemErr != nil {
			return itemErr
		}
	}
	return nil
}
