package chat

// Server -> client event types.
const (
	EventSessionReady = "session_ready"
	EventCatchup      = "catchup"
	EventSettingsOK   = "settings_ok"
	EventWarning      = "warning"
	EventKeyRequired  = "key_required"
	EventUserMessage  = "user_message"
	EventTextDelta    = "text_delta"
	EventMessageDone  = "message_done"
	EventError        = "error"
	EventCleared      = "cleared"
)

// Client -> server event types.
const (
	ClientSettings  = "settings"
	ClientMessage   = "message"
	ClientInterrupt = "interrupt"
	ClientClear     = "clear"
)

// WireEvent is the JSON envelope sent server->client.
// Every event except session_ready and catchup has a monotonic Seq for
// catchup replay.
type WireEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// session_ready
	SessionID    string        `json:"session_id,omitempty"`
	Provider     string        `json:"provider,omitempty"`
	History      []HistoryItem `json:"history,omitempty"`
	Models       []string      `json:"models,omitempty"`
	DashboardURL string        `json:"dashboard_url,omitempty"`
	Streaming    bool          `json:"streaming,omitempty"`
	Partial      string        `json:"partial,omitempty"`
	LastSeq      int64         `json:"last_seq,omitempty"`
	Resync       bool          `json:"resync,omitempty"`

	// session_ready / settings_ok
	HasKey bool   `json:"has_key,omitempty"`
	Model  string `json:"model,omitempty"`

	// catchup
	Events []WireEvent `json:"events,omitempty"`

	// user_message / text_delta / message_done
	Text string `json:"text,omitempty"`
	// message_done
	HTML string `json:"html,omitempty"`

	// warning / error
	Message string `json:"message,omitempty"`
}

type HistoryItem struct {
	Role string `json:"role"`
	Text string `json:"text"`
	HTML string `json:"html,omitempty"`
}

// ClientEvent is the JSON envelope sent client->server.
type ClientEvent struct {
	Type string `json:"type"`

	// message
	Text string `json:"text,omitempty"`

	// settings
	APIKey string `json:"api_key,omitempty"`
	Model  string `json:"model,omitempty"`
}
