package core

// ResultMetadata describes how a Result was produced.
type ResultMetadata struct {
	ToolName      string `json:"tool_name,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Depth         int    `json:"depth"`
	DurationMs    int64  `json:"duration_ms"`
	// Cached marks results served from the dedup cache.
	Cached bool `json:"cached,omitempty"`
}

// Result is the uniform outcome of a tool call.
type Result struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata ResultMetadata `json:"metadata"`
}

// Success creates a successful result carrying data.
func Success(data any) *Result { return &Result{Success: true, Data: data} }

// Failure creates a failed result with a message.
func Failure(msg string) *Result {
	if msg == "" {
		msg = UnknownErrorMessage
	}
	return &Result{Success: false, Error: msg}
}

// Clone returns a shallow copy so metadata can be adjusted per caller.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
