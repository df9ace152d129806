package domain

// Binding identifies one live pipeline connection.
type Binding struct {
	UserID   string `json:"userId"`
	ThreadID string `json:"threadId"`
	Platform string `json:"platform"`
	Endpoint string `json:"endpoint"`
}

// String returns a canonical string form of the binding.
func (b Binding) String() string {
	return b.Platform + ":" + b.UserID + ":" + b.ThreadID + "@" + b.Endpoint
}

// Complete reports whether every component is set. An incomplete binding
// still connects, but receives no thread-scoped history.
func (b Binding) Complete() bool {
	return b.UserID != "" && b.ThreadID != "" && b.Platform != "" && b.Endpoint != ""
}

// Status is the pipeline status reported by the backend.
type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusConnected       Status = "connected"
	StatusProcessing      Status = "processing"
	StatusWaitingForInput Status = "waiting_for_input"
	StatusCompleted       Status = "completed"
	StatusDisconnected    Status = "disconnected"
	StatusError           Status = "error"
	StatusReconnecting    Status = "reconnecting"
)
