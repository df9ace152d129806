package domain

// Learning event names. Each doubles as the outbound feedback event and as the
// event type of a queued learning item.
const (
	LearningPython   = "python_learning"
	LearningJQL      = "jql_learning"
	LearningGenerate = "Generate_learning"
)

// LearningEvents lists the feedback events in queue display order.
var LearningEvents = []string{LearningGenerate, LearningJQL, LearningPython}

// Turn is one entry of a conversation excerpt sent as feedback.
type Turn struct {
	Role    string `json:"role"` // "human" | "ai"
	Content string `json:"content"`
}

// LearningItem is a piece of feedback awaiting admin approval.
type LearningItem struct {
	LearningID   string `json:"learningId"`
	EventType    string `json:"eventType"`
	Feedback     string `json:"feedback,omitempty"`
	Conversation []Turn `json:"conversation,omitempty"`
	Timestamp    string `json:"timestamp"`
	Status       string `json:"status"`
	MessageID    string `json:"messageId"`
	ThreadID     string `json:"threadId"`
}

// Preview returns the headline text shown for an item.
func (i LearningItem) Preview() string {
	if i.Feedback != "" {
		return i.Feedback
	}
	if len(i.Conversation) > 0 {
		return i.Conversation[0].Content
	}
	return "No Content"
}

// GroupLearning buckets queue items by event type. Items with an unknown
// event type are dropped. Every known type has an entry, possibly empty.
func GroupLearning(items []LearningItem) map[string][]LearningItem {
	grouped := make(map[string][]LearningItem, len(LearningEvents))
	for _, ev := range LearningEvents {
		grouped[ev] = []LearningItem{}
	}
	for _, item := range items {
		if _, ok := grouped[item.EventType]; ok {
			grouped[item.EventType] = append(grouped[item.EventType], item)
		}
	}
	return grouped
}

// LearningState tracks feedback for a single message.
type LearningState string

const (
	LearningIdle    LearningState = "idle"
	LearningPending LearningState = "pending"
	LearningLearned LearningState = "learned"
)
