package timeline

import "sort"

type (
	// assocKey links a calendar entry to the LMS object it represents, at
	// an exact instant. Used only for cross-source precedence, never for
	// identity.
	assocKey struct {
		orgUnitID  int
		entityType string
		entityID   string
		startAt    int64 // UnixNano
	}

	// plainKey indexes unassociated calendar entries for the reverse
	// substitution rule.
	plainKey struct {
		orgUnitID int
		startAt   int64
		title     string
	}
)

// reconciler accumulates drafts from all sources into one canonical set
// per sync run. It is single-owner: the orchestrator feeds it from one
// goroutine only (calendar first, then a collector draining the deep-fetch
// channel), so no locking is needed.
//
// Precedence depends on ingestion order: the calendar must be fully
// ingested before any deep-fetch draft arrives.
type reconciler struct {
	window Window

	drafts        map[string]Draft
	calendarAssoc map[assocKey]bool
	calendarPlain map[plainKey]string // -> timeline key of the calendar draft

	sourceCounts      map[SourceType]int
	duplicatesSkipped int
}

func newReconciler(w Window) *reconciler {
	return &reconciler{
		window:        w,
		drafts:        make(map[string]Draft),
		calendarAssoc: make(map[assocKey]bool),
		calendarPlain: make(map[plainKey]string),
		sourceCounts:  make(map[SourceType]int),
	}
}

func (r *reconciler) add(d Draft) {
	// exact-identity dedup
	if _, exists := r.drafts[d.Key()]; exists {
		r.duplicatesSkipped++
		return
	}

	// out-of-window drafts are silently dropped, not counted as duplicates
	if !r.window.Contains(d.StartAt) {
		return
	}

	if d.SourceType != SourceCalendar {
		// associated-entity suppression: the official calendar entry for
		// this exact LMS object at this exact time already won
		if d.hasAssociation() {
			k := assocKey{d.OrgUnitID, d.AssociatedEntityType, d.AssociatedEntityID, d.StartAt.UnixNano()}
			if r.calendarAssoc[k] {
				r.duplicatesSkipped++
				return
			}
		}

		// reverse substitution: a tool-derived due draft supersedes a
		// generic (unassociated) calendar entry for the same occurrence
		if d.DateKind == KindDue {
			pk := plainKey{d.OrgUnitID, d.StartAt.UnixNano(), normalizeTitle(d.Title)}
			if calKey, indexed := r.calendarPlain[pk]; indexed {
				if old, exists := r.drafts[calKey]; exists {
					delete(r.drafts, calKey)
					r.sourceCounts[old.SourceType]--
					r.duplicatesSkipped++
				}
				delete(r.calendarPlain, pk)
			}
		}
	}

	r.drafts[d.Key()] = d
	r.sourceCounts[d.SourceType]++

	if d.SourceType == SourceCalendar {
		if d.hasAssociation() {
			r.calendarAssoc[assocKey{d.OrgUnitID, d.AssociatedEntityType, d.AssociatedEntityID, d.StartAt.UnixNano()}] = true
		} else {
			r.calendarPlain[plainKey{d.OrgUnitID, d.StartAt.UnixNano(), normalizeTitle(d.Title)}] = d.Key()
		}
	}
}

// snapshot returns the canonical draft set, ordered by timeline key for
// deterministic persistence.
func (r *reconciler) snapshot() []Draft {
	keys := make([]string, 0, len(r.drafts))
	for k := range r.drafts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	drafts := make([]Draft, 0, len(keys))
	for _, k := range keys {
		drafts = append(drafts, r.drafts[k])
	}
	return drafts
}

// counts returns a copy of the per-source acceptance counters.
func (r *reconciler) counts() map[SourceType]int {
	counts := make(map[SourceType]int, len(r.sourceCounts))
	for src, n := range r.sourceCounts {
		if n != 0 {
			counts[src] = n
		}
	}
	return counts
}
