package domain

import (
	"slices"
	"strings"
	"time"
)

// Thread is one persisted analytics conversation.
type Thread struct {
	ThreadID        string `json:"threadId"`
	UserID          string `json:"userId"`
	CreatedAt       string `json:"createdAt"`
	Title           string `json:"title"`
	NumOfMsgs       int    `json:"num_of_msgs"`
	Category1       string `json:"title_category_01"`
	Category2       string `json:"title_category_02"`
	StatusIndicator string `json:"status_indicator"`
	Platform        string `json:"platform,omitempty"`
}

// Created parses CreatedAt; the zero time is returned when it is malformed.
func (t Thread) Created() time.Time {
	ts, _ := ParseInstant(t.CreatedAt)
	return ts
}

var threadCategories = map[string][]string{
	"terra": {"retention", "funnel", "general"},
	"game":  {"retention", "funnel", "ftue", "general"},
}

// Categories returns the sidebar grouping for the thread. Unknown top-level
// categories fold into "terra" and unknown sub-categories into "general".
func (t Thread) Categories() (string, string) {
	l1 := strings.ToLower(t.Category1)
	l2 := strings.ToLower(t.Category2)
	valid, ok := threadCategories[l1]
	if !ok {
		l1 = "terra"
		valid = threadCategories[l1]
	}
	if !slices.Contains(valid, l2) {
		l2 = "general"
	}
	return l1, l2
}

// SortThreadsNewestFirst orders threads by creation time, newest first.
func SortThreadsNewestFirst(threads []Thread) {
	slices.SortStableFunc(threads, func(a, b Thread) int {
		return b.Created().Compare(a.Created())
	})
}

// FilterThreads keeps threads whose title contains query, case-insensitively.
func FilterThreads(threads []Thread, query string) []Thread {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return threads
	}
	out := make([]Thread, 0, len(threads))
	for _, t := range threads {
		if strings.Contains(strings.ToLower(t.Title), q) {
			out = append(out, t)
		}
	}
	return out
}

// GroupThreads buckets threads by their normalised categories, preserving
// input order inside each bucket.
func GroupThreads(threads []Thread) map[string]map[string][]Thread {
	groups := make(map[string]map[string][]Thread)
	for _, t := range threads {
		l1, l2 := t.Categories()
		if groups[l1] == nil {
			groups[l1] = make(map[string][]Thread)
		}
		groups[l1][l2] = append(groups[l1][l2], t)
	}
	return groups
}
