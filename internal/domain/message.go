package domain

import "github.com/google/uuid"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RoleFromBy normalises the "by" field of stored history ("user" | "ai").
func RoleFromBy(by string) Role {
	if by == "ai" {
		return RoleAssistant
	}
	return RoleUser
}

// AttachmentType classifies an attachment for rendering.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentChart AttachmentType = "chart"
	AttachmentData  AttachmentType = "data"
)

// ParseAttachmentType maps a wire type to an attachment type. Anything
// unrecognised is treated as data.
func ParseAttachmentType(s string) AttachmentType {
	switch AttachmentType(s) {
	case AttachmentImage, AttachmentChart:
		return AttachmentType(s)
	default:
		return AttachmentData
	}
}

// Attachment is a rendering hint carried alongside a message.
type Attachment struct {
	Type    AttachmentType `json:"type"`
	URL     string         `json:"url,omitempty"`  // images: data: URL or remote URL
	Data    string         `json:"data,omitempty"` // charts and tables: raw payload
	Caption string         `json:"caption,omitempty"`
}

// Message is one turn in a conversation.
type Message struct {
	ID             string         `json:"messageId"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Timestamp      string         `json:"timestamp"` // display clock, not an instant
	Node           string         `json:"node,omitempty"`
	Attachments    []Attachment   `json:"attachments,omitempty"`
	EChartsOptions map[string]any `json:"echarts_options,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	IsMini         bool           `json:"is_mini,omitempty"`
	IsSystem       bool           `json:"is_system,omitempty"`
	IsInterrupt    bool           `json:"is_interrupt,omitempty"`
	CanEdit        bool           `json:"can_edit,omitempty"`
}

// IsUser reports whether the message was written by the user.
func (m Message) IsUser() bool { return m.Role == RoleUser }

// Anchored reports whether the message is a user turn bound to a pipeline
// node, which makes it a valid target for edits and jumps.
func (m Message) Anchored() bool { return m.Role == RoleUser && m.Node != "" }

// HistoryRecord is a stored message as returned by the history endpoint.
type HistoryRecord struct {
	MessageID      string         `json:"messageId"`
	ThreadID       string         `json:"threadId"`
	By             string         `json:"by"`
	MessageContent string         `json:"messageContent"`
	Timestamp      string         `json:"timestamp"`
	Summary        string         `json:"summary,omitempty"`
	IsMini         bool           `json:"is_mini,omitempty"`
	EChartsOptions map[string]any `json:"echarts_options,omitempty"`
}

// NewMessageID returns a client-side message id.
func NewMessageID() string { return "m-" + uuid.NewString() }

// NewThreadID returns a client-side thread id.
func NewThreadID() string { return "t-" + uuid.NewString() }
