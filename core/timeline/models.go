package timeline

import (
	"encoding/json"
	"time"
)

// SourceType identifies which LMS resource a timeline item came from.
type SourceType string

const (
	SourceCalendar        SourceType = "calendar"
	SourceContentModule   SourceType = "content_module"
	SourceContentTopic    SourceType = "content_topic"
	SourceDropboxFolder   SourceType = "dropbox_folder"
	SourceQuiz            SourceType = "quiz"
	SourceDiscussionForum SourceType = "discussion_forum"
	SourceDiscussionTopic SourceType = "discussion_topic"
	SourceChecklist       SourceType = "checklist"
	SourceGeneric         SourceType = "generic"
)

// DateKind distinguishes the up-to-three dated facts one logical LMS item
// can yield (start/due/end), plus "event" used exclusively for raw calendar
// entries.
type DateKind string

const (
	KindEvent DateKind = "event"
	KindStart DateKind = "start"
	KindDue   DateKind = "due"
	KindEnd   DateKind = "end"
)

// Draft is an in-memory, not-yet-persisted scheduling fact produced by a
// source parser during one sync run.
type Draft struct {
	SourceType SourceType
	SourceID   string
	DateKind   DateKind
	OrgUnitID  int

	Title       string
	Description string
	StartAt     time.Time
	EndAt       *time.Time
	IsAllDay    bool

	// AssociatedEntityType/ID identify the specific LMS object (dropbox
	// folder, quiz, content topic) this item refers to, when known.
	AssociatedEntityType string
	AssociatedEntityID   string

	ViewURL string
	RawData json.RawMessage
}

// Key returns the Timeline Key, the unique identity of a draft within one
// sync run and within persisted storage. It is only ever compared whole,
// never parsed back into its parts.
func (d Draft) Key() string {
	return string(d.SourceType) + ":" + d.SourceID + ":" + string(d.DateKind)
}

func (d Draft) hasAssociation() bool {
	return d.AssociatedEntityType != "" && d.AssociatedEntityID != ""
}

// EventKey is the persisted identity of a timeline event for one user.
type EventKey struct {
	SourceType SourceType `json:"sourceType"`
	SourceID   string     `json:"sourceId"`
	DateKind   DateKind   `json:"dateKind"`
}

func (k EventKey) String() string {
	return string(k.SourceType) + ":" + k.SourceID + ":" + string(k.DateKind)
}

// Event is a persisted timeline row, keyed by (userId, sourceType,
// sourceId, dateKind). Written exclusively by this package; read-only to
// the rest of the application.
type Event struct {
	ID     string `json:"id"`
	UserID string `json:"-"`

	SourceType SourceType `json:"sourceType"`
	SourceID   string     `json:"sourceId"`
	DateKind   DateKind   `json:"dateKind"`
	OrgUnitID  int        `json:"orgUnitId"`

	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartAt     time.Time  `json:"startAt"`
	EndAt       *time.Time `json:"endAt,omitempty"`
	IsAllDay    bool       `json:"isAllDay"`

	AssociatedEntityType string `json:"associatedEntityType,omitempty"`
	AssociatedEntityID   string `json:"associatedEntityId,omitempty"`

	ViewURL string          `json:"viewUrl,omitempty"`
	RawData json.RawMessage `json:"-"`

	LastSyncedAt time.Time `json:"lastSyncedAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (e Event) Key() EventKey {
	return EventKey{SourceType: e.SourceType, SourceID: e.SourceID, DateKind: e.DateKind}
}

// newEvent builds the persistable row for a draft.
func newEvent(userID string, d Draft, syncedAt time.Time) Event {
	return Event{
		UserID:               userID,
		SourceType:           d.SourceType,
		SourceID:             d.SourceID,
		DateKind:             d.DateKind,
		OrgUnitID:            d.OrgUnitID,
		Title:                d.Title,
		Description:          d.Description,
		StartAt:              d.StartAt.UTC(),
		EndAt:                d.EndAt,
		IsAllDay:             d.IsAllDay,
		AssociatedEntityType: d.AssociatedEntityType,
		AssociatedEntityID:   d.AssociatedEntityID,
		ViewURL:              d.ViewURL,
		RawData:              d.RawData,
		LastSyncedAt:         syncedAt,
	}
}

// Status is the terminal state of one sync run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Outcome records the bookkeeping of one sync run. Created once per run,
// never mutated afterward.
type Outcome struct {
	ID     string `json:"id"`
	UserID string `json:"-"`

	Status            Status             `json:"status"`
	EventsFetched     int                `json:"eventsFetched"`
	EventsUpserted    int                `json:"eventsUpserted"`
	EventsDeleted     int                `json:"eventsDeleted"`
	DuplicatesSkipped int                `json:"duplicatesSkipped"`
	ForbiddenOrgUnits []int              `json:"forbiddenOrgUnits,omitempty"`
	SourceCounts      map[SourceType]int `json:"sourceCounts,omitempty"`

	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`

	Error string `json:"error,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// QueryFilter narrows the timeline read path. Zero values mean "no filter".
type QueryFilter struct {
	From      time.Time
	To        time.Time
	Sources   []SourceType
	OrgUnitID int
}
