package constants

// Delivery modes for tool results.
const (
	// DeliverySync returns the result in the POST response.
	DeliverySync = "sync"
	// DeliveryPush acknowledges the POST and pushes the result on the session stream.
	DeliveryPush = "push"
)

// Stream event names.
const (
	EventEndpoint = "endpoint"
	EventResult   = "result"
)

// Result cache key strategies.
const (
	CacheKeyStrategyArgumentsHash = "arguments_hash"
	CacheKeyStrategyNone          = "none"
)

// SessionIDArgument is the argument key injected into every outgoing tool call.
const SessionIDArgument = "session_id"
