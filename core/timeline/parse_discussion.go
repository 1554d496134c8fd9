package timeline

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type discussionTopicPayload struct {
	TopicID   *int64  `json:"TopicId"`
	Name      *string `json:"Name"`
	StartDate *string `json:"StartDate"`
	EndDate   *string `json:"EndDate"`
	DueDate   *string `json:"DueDate"`
}

type discussionForumPayload struct {
	ForumID     *int64  `json:"ForumId"`
	Name        *string `json:"Name"`
	Description *struct {
		Text *string `json:"Text"`
	} `json:"Description"`

	StartDate *string `json:"StartDate"`
	EndDate   *string `json:"EndDate"`

	// distinct posting window, when the forum restricts when students may post
	PostStartDate *string `json:"PostStartDate"`
	PostEndDate   *string `json:"PostEndDate"`

	Topics []json.RawMessage `json:"Topics"`
}

// parseDiscussionForum normalizes one forum payload. When the forum embeds
// topics, per-topic drafts are emitted alongside any forum-level dates. A
// distinct posting window yields its own drafts under a derived suffixed
// id so it can never collide with the forum's main start/end keys.
func parseDiscussionForum(raw json.RawMessage, orgUnitID int, host string) []Draft {
	var payload discussionForumPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ForumID == nil {
		return nil
	}

	forumID := *payload.ForumID
	forumURL := fmt.Sprintf("https://%s/d2l/le/%d/discussions/List", host, orgUnitID)

	forum := datedItem{
		sourceType: SourceDiscussionForum,
		sourceID:   strconv.FormatInt(forumID, 10),
		orgUnitID:  orgUnitID,
		viewURL:    forumURL,
		raw:        raw,
		start:      parseLMSTime(payload.StartDate),
		end:        parseLMSTime(payload.EndDate),
	}
	if payload.Name != nil {
		forum.title = *payload.Name
	}
	if payload.Description != nil && payload.Description.Text != nil {
		forum.description = *payload.Description.Text
	}
	drafts := forum.expand()

	// posting window, kept apart from the availability window
	posting := datedItem{
		sourceType: SourceDiscussionForum,
		sourceID:   fmt.Sprintf("%d:posting", forumID),
		orgUnitID:  orgUnitID,
		title:      forum.title + " (posting)",
		viewURL:    forumURL,
		raw:        raw,
		start:      parseLMSTime(payload.PostStartDate),
		end:        parseLMSTime(payload.PostEndDate),
	}
	drafts = append(drafts, posting.expand()...)

	for _, rawTopic := range payload.Topics {
		drafts = append(drafts, parseDiscussionTopic(rawTopic, forumID, orgUnitID, host)...)
	}
	return drafts
}

func parseDiscussionTopic(raw json.RawMessage, forumID int64, orgUnitID int, host string) []Draft {
	var payload discussionTopicPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.TopicID == nil {
		return nil
	}

	item := datedItem{
		sourceType: SourceDiscussionTopic,
		sourceID:   fmt.Sprintf("%d:%d", forumID, *payload.TopicID),
		orgUnitID:  orgUnitID,
		viewURL:    fmt.Sprintf("https://%s/d2l/le/%d/discussions/topics/%d/View", host, orgUnitID, *payload.TopicID),
		raw:        raw,
		start:      parseLMSTime(payload.StartDate),
		due:        parseLMSTime(payload.DueDate),
		end:        parseLMSTime(payload.EndDate),
	}
	if payload.Name != nil {
		item.title = *payload.Name
	}
	return item.expand()
}
