// Package progress maps pipeline stage names onto a five-step progress model.
package progress

import (
	"strings"
	"sync"
)

// Group is one of the coarse progress steps, in pipeline order.
type Group int

const (
	UserQuery Group = iota
	TransformingQuery
	DataExtraction
	DataProcessing
	Output
)

// Groups lists every group in display order.
var Groups = []Group{UserQuery, TransformingQuery, DataExtraction, DataProcessing, Output}

var groupNames = [...]string{
	UserQuery:         "User Query",
	TransformingQuery: "Transforming Query",
	DataExtraction:    "Data Extraction",
	DataProcessing:    "Data Processing",
	Output:            "Output",
}

func (g Group) String() string {
	if g < 0 || int(g) >= len(groupNames) {
		return "unknown"
	}
	return groupNames[g]
}

// DefaultStage is the stage a fresh tracker starts from.
const DefaultStage = "start"

var stageGroups = map[string]Group{
	"start":                 UserQuery,
	"connected":             UserQuery,
	"process_initial_query": UserQuery,

	"find_relevant_feedback":       TransformingQuery,
	"get_game_name":                TransformingQuery,
	"get_events_node":              TransformingQuery,
	"ask_for_event_verification":   TransformingQuery,
	"process_event_verification":   TransformingQuery,
	"get_TQ_node":                  TransformingQuery,
	"ask_for_TQ_verification":      TransformingQuery,
	"process_TQ_verification":      TransformingQuery,
	"verify_info":                  TransformingQuery,
	"ask_for_missing_info":         TransformingQuery,
	"process_verify_info_response": TransformingQuery,

	"generate_jql":               DataExtraction,
	"ask_for_jql_verification":   DataExtraction,
	"process_jql_verification":   DataExtraction,
	"save_jql_feedback":          DataExtraction,
	"run_jql":                    DataExtraction,
	"handle_jql_error":           DataExtraction,
	"process_jql_error_feedback": DataExtraction,

	"generate_python_code": DataProcessing,
	"execute_python_code":  DataProcessing,

	"ask_python_result_verification": Output,
	"process_python_result_feedback": Output,
}

// Stages a pipeline reports once it has produced its final answer.
var terminalStages = map[string]bool{
	"ask_python_result_verification": true,
	"completed":                      true,
}

// GroupOf returns the group of a stage name after sanitising it.
func GroupOf(stage string) (Group, bool) {
	g, ok := stageGroups[Sanitize(stage)]
	return g, ok
}

// Sanitize strips tuple and list punctuation that some backends leave on
// stage names, e.g. "('run_jql',)".
func Sanitize(stage string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '(', ')', '[', ']', '\'', '"', ',':
			return -1
		}
		return r
	}, stage)
	return strings.TrimSpace(cleaned)
}

// StepStatus is the display state of one group.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepCurrent   StepStatus = "current"
	StepPending   StepStatus = "pending"
)

// Step is one rendered row of the progress model.
type Step struct {
	Group  Group      `json:"group"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
}

// Tracker remembers the last recognised stage and derives group states from
// it. Unknown stages never move the tracker backwards or reset it.
type Tracker struct {
	mu     sync.Mutex
	stage  string // last accepted stage
	latest string // last observed stage, sanitised
}

// NewTracker returns a tracker positioned at DefaultStage.
func NewTracker() *Tracker {
	return &Tracker{stage: DefaultStage, latest: DefaultStage}
}

// Observe feeds one stage name to the tracker and reports whether it was
// recognised.
func (t *Tracker) Observe(stage string) bool {
	cleaned := Sanitize(stage)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.latest = cleaned
	if _, ok := stageGroups[cleaned]; !ok {
		return false
	}
	t.stage = cleaned
	return true
}

// Reset returns the tracker to DefaultStage.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = DefaultStage
	t.latest = DefaultStage
}

// Stage returns the last accepted stage.
func (t *Tracker) Stage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

// Active returns the group of the last accepted stage.
func (t *Tracker) Active() Group {
	t.mu.Lock()
	defer t.mu.Unlock()
	return stageGroups[t.stage]
}

// Final reports whether the most recent stage was a terminal marker.
func (t *Tracker) Final() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return terminalStages[t.latest]
}

// Status returns the display state of g.
func (t *Tracker) Status(g Group) StepStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked(g)
}

func (t *Tracker) statusLocked(g Group) StepStatus {
	active := stageGroups[t.stage]
	if g == Output {
		switch {
		case terminalStages[t.latest]:
			return StepCompleted
		case active == Output:
			return StepCurrent
		default:
			return StepPending
		}
	}
	switch {
	case g < active:
		return StepCompleted
	case g == active:
		return StepCurrent
	default:
		return StepPending
	}
}

// Steps returns the state of every group in display order.
func (t *Tracker) Steps() []Step {
	t.mu.Lock()
	defer t.mu.Unlock()

	steps := make([]Step, 0, len(Groups))
	for _, g := range Groups {
		steps = append(steps, Step{Group: g, Label: g.String(), Status: t.statusLocked(g)})
	}
	return steps
}
