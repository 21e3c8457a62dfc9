package protocol

// InvocationRequest is the body of a correlated request posted to the callback address.
type InvocationRequest struct {
	// SessionID references the push-channel session.
	SessionID string `json:"session_id"`
	// ToolName is the capability to invoke.
	ToolName string `json:"tool_name"`
	// Arguments are passed to the capability handler.
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of one invocation.
// Exactly one of Result and Error is set.
type ToolResult struct {
	// ToolName is the invoked capability.
	ToolName string `json:"-"`
	// Result is the handler text output.
	Result string `json:"result,omitempty"`
	// Error describes a capability failure.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the invocation failed.
func (r ToolResult) Failed() bool {
	return r.Error != ""
}

// ErrorResponse is the body of every 4xx/5xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Accepted acknowledges a push-mode invocation.
type Accepted struct {
	// Status is always "accepted".
	Status string `json:"status"`
	// RequestID correlates the later result event.
	RequestID string `json:"request_id"`
}

// Delivery is a result pushed on the session stream in push mode.
type Delivery struct {
	RequestID string `json:"request_id"`
	ToolName  string `json:"tool_name"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Endpoint is the payload of the handshake event.
type Endpoint struct {
	// MessagesURL is the private callback address of the session.
	MessagesURL string `json:"messages_url"`
}

// HandlerRequest is the single line written to a capability handler's stdin.
type HandlerRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// HandlerResponse is the single line a capability handler writes to stdout.
type HandlerResponse struct {
	Result *string `json:"result,omitempty"`
	Error  *string `json:"error,omitempty"`
}

// ToolInfo describes a capability in the /tools listing.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}
