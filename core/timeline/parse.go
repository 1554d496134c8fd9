package timeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/athravseruwam07/clarus/core"
)

// Source parsers normalize untyped upstream payloads into Drafts. Every
// field access is defensive: a payload missing its id, or carrying no
// start/due/end date at all, is discarded rather than guessed at
// (undated items are not schedulable).

// parseLMSTime parses the LMS's ISO-8601 timestamps. Returns nil when the
// field is absent or unparseable.
func parseLMSTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// courseURL is the generic deep-link fallback when no item-specific link
// is available.
func courseURL(host string, orgUnitID int) string {
	return fmt.Sprintf("https://%s/d2l/home/%d", host, orgUnitID)
}

// datedItem is the common shape a tool payload reduces to before being
// expanded into start/due/end drafts.
type datedItem struct {
	sourceType  SourceType
	sourceID    string
	orgUnitID   int
	title       string
	description string
	viewURL     string
	assocType   string
	assocID     string
	isAllDay    bool
	raw         json.RawMessage

	start *time.Time
	due   *time.Time
	end   *time.Time
}

// expand yields one draft per present date, up to three. The draft's
// StartAt is the respective date itself; EndAt is left unset for these
// kinds (only raw calendar entries carry ranges).
func (it datedItem) expand() []Draft {
	base := Draft{
		SourceType:           it.sourceType,
		SourceID:             it.sourceID,
		OrgUnitID:            it.orgUnitID,
		Title:                it.title,
		Description:          it.description,
		IsAllDay:             it.isAllDay,
		AssociatedEntityType: it.assocType,
		AssociatedEntityID:   it.assocID,
		ViewURL:              it.viewURL,
		RawData:              it.raw,
	}

	var drafts []Draft
	for _, d := range []struct {
		kind DateKind
		at   *time.Time
	}{
		{KindStart, it.start},
		{KindDue, it.due},
		{KindEnd, it.end},
	} {
		if d.at == nil {
			continue
		}
		draft := base
		draft.DateKind = d.kind
		draft.StartAt = *d.at
		drafts = append(drafts, draft)
	}
	return drafts
}

// normalizeTitle folds a title for cross-source matching.
func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

// --- calendar ---

type calendarEventPayload struct {
	CalendarEventID *int64  `json:"CalendarEventId"`
	OrgUnitID       *int    `json:"OrgUnitId"`
	Title           *string `json:"Title"`
	Description     *string `json:"Description"`
	StartDateTime   *string `json:"StartDateTime"`
	EndDateTime     *string `json:"EndDateTime"`
	IsAllDayEvent   *bool   `json:"IsAllDayEvent"`

	AssociatedEntity *struct {
		Type *string `json:"Type"`
		ID   *string `json:"Id"`
		Link *string `json:"Link"`
	} `json:"AssociatedEntity"`
}

// parseCalendarEvent normalizes one raw calendar entry into an event-kind
// draft. Returns false when the payload is unusable.
func parseCalendarEvent(raw json.RawMessage, host string) (Draft, bool) {
	var payload calendarEventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Draft{}, false
	}
	if payload.CalendarEventID == nil || payload.OrgUnitID == nil {
		return Draft{}, false
	}
	start := parseLMSTime(payload.StartDateTime)
	if start == nil {
		return Draft{}, false
	}

	draft := Draft{
		SourceType: SourceCalendar,
		SourceID:   strconv.FormatInt(*payload.CalendarEventID, 10),
		DateKind:   KindEvent,
		OrgUnitID:  *payload.OrgUnitID,
		StartAt:    *start,
		EndAt:      parseLMSTime(payload.EndDateTime),
		RawData:    raw,
	}
	if payload.Title != nil {
		draft.Title = core.CleanString(*payload.Title)
	}
	if payload.Description != nil {
		draft.Description = *payload.Description
	}
	if payload.IsAllDayEvent != nil {
		draft.IsAllDay = *payload.IsAllDayEvent
	}
	if ae := payload.AssociatedEntity; ae != nil {
		if ae.Type != nil {
			draft.AssociatedEntityType = *ae.Type
		}
		if ae.ID != nil {
			draft.AssociatedEntityID = *ae.ID
		}
		if ae.Link != nil && *ae.Link != "" {
			draft.ViewURL = *ae.Link
		}
	}
	if draft.ViewURL == "" {
		draft.ViewURL = fmt.Sprintf("https://%s/d2l/le/calendar/%d", host, draft.OrgUnitID)
	}
	return draft, true
}
