package timeline

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// --- dropbox folders ---

type dropboxFolderPayload struct {
	ID      *int64  `json:"Id"`
	Name    *string `json:"Name"`
	DueDate *string `json:"DueDate"`

	Availability *struct {
		StartDate *string `json:"StartDate"`
		EndDate   *string `json:"EndDate"`
	} `json:"Availability"`

	CustomInstructions *struct {
		Text *string `json:"Text"`
		HTML *string `json:"Html"`
	} `json:"CustomInstructions"`
}

func parseDropboxFolder(raw json.RawMessage, orgUnitID int, host string) []Draft {
	var payload dropboxFolderPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ID == nil {
		return nil
	}

	id := strconv.FormatInt(*payload.ID, 10)
	item := datedItem{
		sourceType: SourceDropboxFolder,
		sourceID:   id,
		orgUnitID:  orgUnitID,
		assocType:  "Dropbox",
		assocID:    id,
		viewURL:    fmt.Sprintf("https://%s/d2l/lms/dropbox/user/folder_submit_files.d2l?ou=%d&db=%d", host, orgUnitID, *payload.ID),
		raw:        raw,
		due:        parseLMSTime(payload.DueDate),
	}
	if payload.Name != nil {
		item.title = *payload.Name
	}
	if payload.CustomInstructions != nil && payload.CustomInstructions.Text != nil {
		item.description = *payload.CustomInstructions.Text
	}
	if payload.Availability != nil {
		item.start = parseLMSTime(payload.Availability.StartDate)
		item.end = parseLMSTime(payload.Availability.EndDate)
	}
	return item.expand()
}

// --- quizzes ---

type quizPayload struct {
	QuizID    *int64  `json:"QuizId"`
	Name      *string `json:"Name"`
	StartDate *string `json:"StartDate"`
	EndDate   *string `json:"EndDate"`
	DueDate   *string `json:"DueDate"`

	Description *struct {
		Text *struct {
			Text *string `json:"Text"`
			HTML *string `json:"Html"`
		} `json:"Text"`
	} `json:"Description"`
}

func parseQuiz(raw json.RawMessage, orgUnitID int, host string) []Draft {
	var payload quizPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.QuizID == nil {
		return nil
	}

	id := strconv.FormatInt(*payload.QuizID, 10)
	item := datedItem{
		sourceType: SourceQuiz,
		sourceID:   id,
		orgUnitID:  orgUnitID,
		assocType:  "Quiz",
		assocID:    id,
		viewURL:    fmt.Sprintf("https://%s/d2l/lms/quizzing/user/quizzes_list.d2l?ou=%d", host, orgUnitID),
		raw:        raw,
		start:      parseLMSTime(payload.StartDate),
		due:        parseLMSTime(payload.DueDate),
		end:        parseLMSTime(payload.EndDate),
	}
	if payload.Name != nil {
		item.title = *payload.Name
	}
	if payload.Description != nil && payload.Description.Text != nil && payload.Description.Text.Text != nil {
		item.description = *payload.Description.Text.Text
	}
	return item.expand()
}

// --- checklists ---

type checklistPayload struct {
	ChecklistID *int64  `json:"ChecklistId"`
	Name        *string `json:"Name"`
}

// parseChecklist extracts the checklist id for the per-item fetch; the
// checklist itself carries no dates.
func parseChecklist(raw json.RawMessage) (id int64, name string, ok bool) {
	var payload checklistPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ChecklistID == nil {
		return 0, "", false
	}
	if payload.Name != nil {
		name = *payload.Name
	}
	return *payload.ChecklistID, name, true
}

type checklistItemPayload struct {
	ChecklistItemID *int64  `json:"ChecklistItemId"`
	Name            *string `json:"Name"`
	DueDate         *string `json:"DueDate"`
}

func parseChecklistItem(raw json.RawMessage, checklistID int64, checklistName string, orgUnitID int, host string) []Draft {
	var payload checklistItemPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ChecklistItemID == nil {
		return nil
	}

	item := datedItem{
		sourceType: SourceChecklist,
		// composite id: items are only unique within their checklist
		sourceID:  fmt.Sprintf("%d:%d", checklistID, *payload.ChecklistItemID),
		orgUnitID: orgUnitID,
		viewURL:   fmt.Sprintf("https://%s/d2l/lms/checklist/checklists_list.d2l?ou=%d", host, orgUnitID),
		raw:       raw,
		due:       parseLMSTime(payload.DueDate),
	}
	if payload.Name != nil {
		item.title = *payload.Name
	}
	if checklistName != "" && item.title != "" {
		item.title = checklistName + ": " + item.title
	} else if item.title == "" {
		item.title = checklistName
	}
	return item.expand()
}
