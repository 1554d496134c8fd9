package course

import "time"

// Course is a synced LMS course enrollment (an org unit) for one user.
// Rows are produced by the course-sync flow and consumed by the calendar
// timeline sync, which only cares about active enrollments.
type Course struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	OrgUnitID int        `json:"orgUnitId"`
	Name      string     `json:"name"`
	Code      string     `json:"code"`
	Semester  string     `json:"semester,omitempty"`
	StartAt   *time.Time `json:"startAt,omitempty"`
	EndAt     *time.Time `json:"endAt,omitempty"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// OrgUnitIDs extracts the org unit ids of the given courses, in order.
func OrgUnitIDs(courses []Course) []int {
	ids := make([]int, 0, len(courses))
	for _, crs := range courses {
		ids = append(ids, crs.OrgUnitID)
	}
	return ids
}
