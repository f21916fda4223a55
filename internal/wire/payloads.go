package wire

import "time"

// ChatPayload is the payload of a client "chat" command.
type ChatPayload struct {
	Provider string `json:"provider"`
	Text     string `json:"text"`
	Model    string `json:"model,omitempty"`
}

// SpawnPayload is the payload of a client "spawn" command.
type SpawnPayload struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Port     int    `json:"port,omitempty"`
}

// StopPayload is the payload of a client "stop" command.
type StopPayload struct {
	ProcessID string `json:"processId,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

// ScalePayload is the payload of a client "scale" command.
type ScalePayload struct {
	Provider string `json:"provider"`
	Count    int    `json:"count"`
}

// SetModelPayload is the payload of a client "set_model" command.
type SetModelPayload struct {
	ProcessID string `json:"processId"`
	Model     string `json:"model"`
}

// SubscribePayload is the payload of "subscribe"/"unsubscribe" commands.
type SubscribePayload struct {
	ProcessID string `json:"processId,omitempty"`
	Provider  string `json:"provider,omitempty"`
	All       bool   `json:"all,omitempty"`
}

// GetLogsPayload is the payload of a client "get_logs" command.
type GetLogsPayload struct {
	ProcessID string `json:"processId"`
	Tail      int    `json:"tail,omitempty"`
}

// ProcessIDPayload covers the orchestration-forward commands whose only
// required field is the target worker, e.g. get_session/get_agent_state.
type ProcessIDPayload struct {
	ProcessID string `json:"processId"`
}

// WorkerInfo is the snapshot of a worker returned in "spawned",
// "processes" and "/processes" responses.
type WorkerInfo struct {
	ID              string    `json:"id"`
	Provider        string    `json:"provider"`
	Port            int       `json:"port"`
	Status          string    `json:"status"`
	Health          string    `json:"health"`
	Model           string    `json:"model,omitempty"`
	AvailableModels []string  `json:"availableModels,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ConnectedPayload is the first frame sent to a newly attached client.
type ConnectedPayload struct {
	SessionID string   `json:"sessionId"`
	ClientID  string   `json:"clientId"`
	Providers []string `json:"providers"`
}

// PongPayload replies to "ping".
type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorPayload is the payload of every "error" reply.
type ErrorPayload struct {
	Message string      `json:"message"`
	Hint    interface{} `json:"hint,omitempty"`
}

// SpawnHint is the structured hint attached to a chat auto-spawn failure.
type SpawnHint struct {
	Type     string `json:"type"`
	Provider string `json:"provider"`
}

// StoppedPayload replies to "stop".
type StoppedPayload struct {
	ProcessID string `json:"processId,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Count     int    `json:"count"`
}

// ScaledPayload replies to "scale".
type ScaledPayload struct {
	Provider string `json:"provider"`
	Previous int    `json:"previous"`
	Current  int    `json:"current"`
}

// SubscriptionsPayload replies to "list_subscriptions".
type SubscriptionsPayload struct {
	Processes []string `json:"processes"`
	Providers []string `json:"providers"`
}

// LogsPayload replies to "get_logs".
type LogsPayload struct {
	ProcessID string   `json:"processId"`
	Logs      []string `json:"logs"`
}

// StreamPayload wraps a worker event for subscription-delivered fanout
// (spec.md §4.9 step 2/3).
type StreamPayload struct {
	Source      string          `json:"source"` // "process" | "provider"
	Event       string          `json:"event"`
	Payload     interface{}     `json:"payload,omitempty"`
	Provider    string          `json:"provider"`
	ProcessID   string          `json:"processId"`
	ProcessName string          `json:"processName,omitempty"`
}

// StatusPayload replies to "status".
type StatusPayload struct {
	Providers []string     `json:"providers"`
	Workers   []WorkerInfo `json:"workers"`
	Clients   int          `json:"clients"`
	Uptime    float64      `json:"uptimeSeconds"`
}
