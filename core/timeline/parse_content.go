package timeline

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Content object types per the LMS content structure API.
const (
	contentTypeModule = 0
	contentTypeTopic  = 1
)

type contentObjectPayload struct {
	ID    *int64  `json:"Id"`
	Title *string `json:"Title"`
	Type  *int    `json:"Type"`

	// module dates
	ModuleStartDate *string `json:"ModuleStartDate"`
	ModuleEndDate   *string `json:"ModuleEndDate"`
	ModuleDueDate   *string `json:"ModuleDueDate"`

	// topic dates
	StartDate *string `json:"StartDate"`
	EndDate   *string `json:"EndDate"`
	DueDate   *string `json:"DueDate"`

	URL *string `json:"Url"`
}

// parseContentObject normalizes one entry of a module structure listing.
// Modules yield content_module drafts plus their id for further crawling;
// topics yield content_topic drafts.
func parseContentObject(raw json.RawMessage, orgUnitID int, host string) (drafts []Draft, childModuleID int64, isModule bool, ok bool) {
	var payload contentObjectPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, 0, false, false
	}
	if payload.ID == nil || payload.Type == nil {
		return nil, 0, false, false
	}

	item := datedItem{
		orgUnitID: orgUnitID,
		raw:       raw,
	}
	if payload.Title != nil {
		item.title = *payload.Title
	}

	switch *payload.Type {
	case contentTypeModule:
		item.sourceType = SourceContentModule
		item.sourceID = strconv.FormatInt(*payload.ID, 10)
		item.start = parseLMSTime(payload.ModuleStartDate)
		item.due = parseLMSTime(payload.ModuleDueDate)
		item.end = parseLMSTime(payload.ModuleEndDate)
		item.viewURL = fmt.Sprintf("https://%s/d2l/le/content/%d/Home", host, orgUnitID)
		return item.expand(), *payload.ID, true, true

	case contentTypeTopic:
		item.sourceType = SourceContentTopic
		item.sourceID = strconv.FormatInt(*payload.ID, 10)
		item.assocType = "Topic"
		item.assocID = item.sourceID
		item.start = parseLMSTime(payload.StartDate)
		item.due = parseLMSTime(payload.DueDate)
		item.end = parseLMSTime(payload.EndDate)
		if payload.URL != nil && *payload.URL != "" {
			item.viewURL = *payload.URL
		} else {
			item.viewURL = fmt.Sprintf("https://%s/d2l/le/content/%d/viewContent/%d/View", host, orgUnitID, *payload.ID)
		}
		return item.expand(), 0, false, true
	}
	return nil, 0, false, false
}
