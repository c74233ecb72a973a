package types

// EvaluateRequest is the payload of POST /v1/evaluate.
type EvaluateRequest struct {
	// Optional system prompt; omitted from the request slots when empty.
	// example: You are a helpful NPC in a fantasy game.
	System string `json:"system,omitempty" example:"You are a helpful NPC in a fantasy game."`
	// Required user prompt.
	// example: Where can I buy a sword?
	User string `json:"user" example:"Where can I buy a sword?"`
	// Optional assistant prompt; omitted from the request slots when empty.
	Assistant string `json:"assistant,omitempty"`
	// If true, stream filtered fragments as NDJSON lines.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
}

// EvaluateResponse is returned by POST /v1/evaluate when not streaming.
type EvaluateResponse struct {
	// Full accumulated response text.
	Text string `json:"text"`
	// Terminal execution state reported by the plugin.
	// example: done
	State string `json:"state" example:"done"`
	// Feature id that produced the response.
	Feature string `json:"feature"`
	// Wall time of the evaluation in milliseconds.
	// example: 812
	DurationMS int64 `json:"duration_ms" example:"812"`
}

// Chunk is one NDJSON line of a streamed evaluation.
type Chunk struct {
	// Filtered fragment text (empty on the final line).
	Text string `json:"text,omitempty"`
	// True on the final line.
	Done bool `json:"done,omitempty"`
	// Terminal execution state, set on the final line.
	State string `json:"state,omitempty"`
	// Error that ended the stream early, if any.
	Error string `json:"error,omitempty"`
}

// FeatureStatus summarizes one discovered plugin for GET /features.
type FeatureStatus struct {
	// Feature id.
	ID string `json:"id"`
	// Plugin name reported by the core.
	// example: nvigi.plugin.gpt.ggml.cuda
	Name string `json:"name" example:"nvigi.plugin.gpt.ggml.cuda"`
	// Required adapter vendor (any, none, nvidia, ...).
	// example: nvidia
	RequiredVendor string `json:"required_vendor" example:"nvidia"`
	// Minimum adapter architecture ordinal.
	RequiredArchitecture uint32 `json:"required_architecture"`
	// Minimum driver version, major.minor.
	// example: 555.85
	RequiredDriver string `json:"required_driver" example:"555.85"`
	// Whether the plugin can run on the selected adapter.
	Compatible bool `json:"compatible"`
	// Reason the plugin is incompatible, if any.
	Reason string `json:"reason,omitempty"`
	// Whether the feature interface is currently loaded.
	Loaded bool `json:"loaded"`
}

// FeaturesResponse is returned by GET /features.
type FeaturesResponse struct {
	Features []FeatureStatus `json:"features"`
}

// AdaptersResponse is returned by GET /adapters.
type AdaptersResponse struct {
	Adapters []AdapterInfo `json:"adapters"`
	// Index of the selected adapter, -1 when none.
	// example: 0
	Selected int `json:"selected" example:"0"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// SessionStatus summarizes a live session for /status.
type SessionStatus struct {
	// Session kind.
	// example: gpt
	Kind string `json:"kind" example:"gpt"`
	// Lifecycle state of the session.
	// example: ready
	State string `json:"state" example:"ready"`
	// Feature id the session was created from.
	Feature string `json:"feature"`
	// Backend block chained at creation (none, d3d12, vulkan).
	// example: none
	Backend string `json:"backend" example:"none"`
	// Completed evaluations.
	Evaluations uint64 `json:"evaluations"`
	// Callers waiting for the evaluation slot.
	QueueLen int `json:"queue_len"`
	// 1 while an evaluation is running.
	Inflight int `json:"inflight"`
	// Last time an evaluation finished (unix seconds).
	LastUsed int64 `json:"last_used_unix,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Whether the core runtime is loaded and initialized.
	CoreLoaded bool `json:"core_loaded"`
	// Path the core library was loaded from.
	CorePath string `json:"core_path,omitempty"`
	// Index of the selected adapter, -1 when none.
	SelectedAdapter int `json:"selected_adapter"`
	// Feature ids whose interfaces are currently loaded.
	LoadedFeatures []string `json:"loaded_features"`
	// Live sessions.
	Sessions []SessionStatus `json:"sessions"`
	// Last error observed by the registry (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
