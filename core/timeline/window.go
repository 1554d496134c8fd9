package timeline

import "time"

// Window is the rolling date range one sync run considers in scope:
// [start-of-month(now - 3 months), end-of-month(now + 18 months)] in UTC.
// Drafts outside it are discarded before reconciliation and stored rows
// outside it are never touched.
type Window struct {
	Start time.Time
	End   time.Time
}

func ComputeWindow(now time.Time) Window {
	now = now.UTC()
	// anchor on the first of the current month so AddDate never normalizes
	// a short month away (e.g. May 31 - 3 months)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{
		Start: monthStart.AddDate(0, -3, 0),
		End:   monthStart.AddDate(0, 19, 0).Add(-time.Nanosecond),
	}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
