package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/soyeahso/querydesk/internal/domain"
)

// ListDocs returns the ids of the knowledge documents.
func (c *Client) ListDocs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.do(ctx, call{op: "failed to fetch docs", method: http.MethodGet, path: "llm_docs/"}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetDoc returns a document's content.
func (c *Client) GetDoc(ctx context.Context, docID string) (string, error) {
	var doc struct {
		Content string `json:"content"`
	}
	if err := c.do(ctx, call{op: "failed to fetch doc", method: http.MethodGet, path: "llm_docs/data/" + seg(docID)}, &doc); err != nil {
		return "", err
	}
	return doc.Content, nil
}

// UpdateDoc replaces a document's content.
func (c *Client) UpdateDoc(ctx context.Context, docID, content string) error {
	return c.do(ctx, call{
		op:     "failed to update doc",
		method: http.MethodPut,
		path:   "llm_docs/update/" + seg(docID),
		body:   map[string]string{"content": content},
	}, nil)
}

// AddCSVData imports a workbook sheet into document docID for platform.
func (c *Client) AddCSVData(ctx context.Context, platform, docID, sheetName string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, call{
		op:      "failed to add csv data",
		method:  http.MethodPost,
		path:    "csv/addData/" + seg(platform),
		body:    map[string]string{"doc_id": docID, "sheetName": sheetName},
		noRetry: true,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// UploadResult is the backend's reply to a CSV upload.
type UploadResult struct {
	Filename string `json:"filename"`
}

// UploadCSV uploads a CSV file into document docID.
func (c *Client) UploadCSV(ctx context.Context, docID, filename string, r io.Reader) (UploadResult, error) {
	const op = "upload failed"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, &Error{Op: op, Err: err}
	}
	if _, err := io.Copy(fw, r); err != nil {
		return UploadResult{}, &Error{Op: op, Err: fmt.Errorf("read %s: %w", filename, err)}
	}
	if err := mw.WriteField("doc_id", docID); err != nil {
		return UploadResult{}, &Error{Op: op, Err: err}
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, &Error{Op: op, Err: err}
	}

	var res UploadResult
	err = c.do(ctx, call{
		op:          op,
		method:      http.MethodPost,
		path:        "addData",
		raw:         buf.Bytes(),
		contentType: mw.FormDataContentType(),
		noRetry:     true,
	}, &res)
	if err != nil {
		return UploadResult{}, err
	}
	if res.Filename == "" {
		res.Filename = filename
	}
	return res, nil
}

// ListWorkbooks returns the available workbook sheets.
func (c *Client) ListWorkbooks(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{op: "failed to fetch workbooks", method: http.MethodGet, path: "workbooks/"}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// SheetData returns the rows of one workbook sheet.
func (c *Client) SheetData(ctx context.Context, sheet string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{op: "failed to fetch sheet data", method: http.MethodGet, path: "workbooks/data/" + seg(sheet)}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// LearningQueue returns feedback items awaiting approval.
func (c *Client) LearningQueue(ctx context.Context) ([]domain.LearningItem, error) {
	var items []domain.LearningItem
	if err := c.do(ctx, call{op: "failed to fetch learning queue", method: http.MethodGet, path: "learning-queue"}, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// DenyLearning removes an item from the learning queue.
func (c *Client) DenyLearning(ctx context.Context, learningID string) error {
	return c.do(ctx, call{op: "failed to deny learning item", method: http.MethodDelete, path: "learning/" + seg(learningID)}, nil)
}
