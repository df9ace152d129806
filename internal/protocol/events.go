package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/soyeahso/querydesk/internal/domain"
)

// Inbound event names.
const (
	EventServerStatus      = "server_status"
	EventServerMessage     = "server_message"
	EventServerResults     = "server_results"
	EventLearningQueued    = "Learning_queued"
	EventLearningGenerated = "Learning_generated"
)

// Outbound event names.
const (
	EventUserMessage = "user_message"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrNotEvent     = errors.New("frame is not an event")
	ErrMalformed    = errors.New("malformed event payload")
)

// Event is a decoded inbound event. The concrete type is one of
// *StatusEvent, *MessageEvent, *ResultsEvent or *LearningEvent.
type Event interface {
	EventName() string
}

// LooseString accepts a JSON string or any other JSON value. Non-string
// values keep their raw JSON text, so a stage sent as ["run_jql"] becomes
// the string `["run_jql"]` and is left for the stage sanitiser.
type LooseString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *LooseString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = LooseString(str)
		return nil
	}
	*s = LooseString(data)
	return nil
}

// StatusEvent reports pipeline progress and interruptions.
type StatusEvent struct {
	Status              domain.Status `json:"status"`
	Node                LooseString   `json:"node,omitempty"`
	Phase               string        `json:"phase,omitempty"`
	Step                LooseString   `json:"step,omitempty"`
	CurrentInterruption LooseString   `json:"current_interruption,omitempty"`
	Message             string        `json:"message,omitempty"`
}

func (*StatusEvent) EventName() string { return EventServerStatus }

// Stage returns the stage name used for progress: the step when present,
// else the status itself.
func (e *StatusEvent) Stage() string {
	if e.Step != "" {
		return string(e.Step)
	}
	return string(e.Status)
}

// Plot is an image produced by the pipeline, base64 encoded.
type Plot struct {
	Filename string `json:"filename"`
	Type     string `json:"type"` // MIME type
	Data     string `json:"data"`
}

// DataURL renders the plot as a data: URL.
func (p Plot) DataURL() string {
	return "data:" + p.Type + ";base64," + p.Data
}

// MessageEvent is an assistant message.
type MessageEvent struct {
	MessageID      string         `json:"messageId"`
	Message        string         `json:"message"`
	Timestamp      string         `json:"timestamp"`
	Node           LooseString    `json:"node,omitempty"`
	IsSystem       bool           `json:"is_system,omitempty"`
	IsInterrupt    bool           `json:"is_interrupt,omitempty"`
	IsMini         bool           `json:"is_mini,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Plots          []Plot         `json:"plots,omitempty"`
	EChartsOptions map[string]any `json:"echarts_options,omitempty"`
}

func (*MessageEvent) EventName() string { return EventServerMessage }

// Result is one entry of a result bundle.
type Result struct {
	Type  string          `json:"type"` // image | chart | data
	Data  json.RawMessage `json:"data"`
	Title string          `json:"title"`
}

// DataString returns Data unquoted when it is a JSON string, else its raw text.
func (r Result) DataString() string {
	var s string
	if err := json.Unmarshal(r.Data, &s); err == nil {
		return s
	}
	return string(r.Data)
}

// ResultsEvent is a batch of query results.
type ResultsEvent struct {
	Results []Result `json:"results"`
}

func (*ResultsEvent) EventName() string { return EventServerResults }

// LearningEvent reports that a feedback item was queued or learned.
type LearningEvent struct {
	Name       string `json:"-"`
	LearningID string `json:"learning_id"`
	Timestamp  string `json:"timestamp"`
}

func (e *LearningEvent) EventName() string { return e.Name }

// Decode turns an event frame into its typed variant.
func Decode(f Frame) (Event, error) {
	if f.Type != FrameTypeEvent {
		return nil, ErrNotEvent
	}

	var ev Event
	switch f.Event {
	case EventServerStatus:
		ev = &StatusEvent{}
	case EventServerMessage:
		ev = &MessageEvent{}
	case EventServerResults:
		ev = &ResultsEvent{}
	case EventLearningQueued, EventLearningGenerated:
		ev = &LearningEvent{Name: f.Event}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}

	if len(f.Payload) == 0 || bytes.Equal(f.Payload, []byte("null")) {
		return nil, fmt.Errorf("%w: %s has no payload", ErrMalformed, f.Event)
	}
	if err := json.Unmarshal(f.Payload, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Event, err)
	}
	if st, ok := ev.(*StatusEvent); ok && st.Status == "" {
		return nil, fmt.Errorf("%w: %s without status", ErrMalformed, f.Event)
	}
	return ev, nil
}

// UserMessage is sent for every user turn, including edits and jumps.
type UserMessage struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	ThreadID  string `json:"threadId"`
	MessageID string `json:"messageId"`
	JumpTo    string `json:"jump_to,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// LearningFeedback is the payload of the feedback events. Admin approval
// re-sends it with IsAdminApproved and LearningID set.
type LearningFeedback struct {
	Conversation    []domain.Turn `json:"conversation,omitempty"`
	Feedback        string        `json:"feedback,omitempty"`
	Timestamp       string        `json:"timestamp"`
	MessageID       string        `json:"messageId"`
	ThreadID        string        `json:"threadId"`
	Platform        string        `json:"platform,omitempty"`
	IsAdminApproved bool          `json:"isAdminApproved,omitempty"`
	LearningID      string        `json:"learning_id,omitempty"`
}
