package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/soyeahso/querydesk/internal/domain"
)

// ListThreads returns every thread, newest first.
func (c *Client) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	var threads []domain.Thread
	if err := c.do(ctx, call{op: "failed to fetch threads", method: http.MethodGet, path: "threads"}, &threads); err != nil {
		return nil, err
	}
	domain.SortThreadsNewestFirst(threads)
	return threads, nil
}

// CreateThread registers a new thread for platform.
func (c *Client) CreateThread(ctx context.Context, threadID, platform string) error {
	return c.do(ctx, call{
		op:      "failed to create thread",
		method:  http.MethodPost,
		path:    "threads",
		body:    map[string]string{"threadId": threadID, "platform": platform},
		noRetry: true,
	}, nil)
}

// DeleteThread deletes a thread on behalf of userID.
func (c *Client) DeleteThread(ctx context.Context, threadID, userID string) error {
	return c.do(ctx, call{
		op:     "failed to delete thread",
		method: http.MethodDelete,
		path:   "threads/" + seg(threadID),
		header: http.Header{"X-User-Id": []string{userID}},
	}, nil)
}

// ThreadMessages returns the stored history of a thread.
func (c *Client) ThreadMessages(ctx context.Context, threadID string) ([]domain.HistoryRecord, error) {
	var records []domain.HistoryRecord
	if err := c.do(ctx, call{op: "failed to fetch messages", method: http.MethodGet, path: "messages/" + seg(threadID)}, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ThreadPreview returns the backend's preview document for a thread.
func (c *Client) ThreadPreview(ctx context.Context, threadID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{op: "thread fetch failed", method: http.MethodGet, path: "threads-preview/" + seg(threadID)}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DeleteMessages removes messages by id. It is sent exactly once.
func (c *Client) DeleteMessages(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return c.do(ctx, call{
		op:      "failed to delete messages",
		method:  http.MethodPost,
		path:    "messages/delete-batch",
		body:    map[string][]string{"messageIds": ids},
		noRetry: true,
	}, nil)
}

// ListUsers returns the workspace members.
func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := c.do(ctx, call{op: "failed to fetch users", method: http.MethodGet, path: "users"}, &users); err != nil {
		return nil, err
	}
	return users, nil
}
