package chat

// State tracks where the active conversation is in its lifecycle.
//
//	Idle → Loaded → AwaitingTitle → Streaming → Loaded
//
// Idle means no conversation is bound (empty title); AwaitingTitle covers the
// first message of a brand-new conversation while its title is generated;
// Streaming covers the window in which the trailing assistant message grows.
type State int

const (
	StateIdle State = iota
	StateLoaded
	StateAwaitingTitle
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StateAwaitingTitle:
		return "awaiting_title"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// EventKind identifies what part of the engine's state changed.
type EventKind int

const (
	// EventStateChanged fires on lifecycle transitions of the active conversation.
	EventStateChanged EventKind = iota
	// EventMessagesChanged fires when the active conversation's message list
	// grows or its trailing message is rewritten.
	EventMessagesChanged
	// EventDirectoryChanged fires when any conversation is created, appended
	// to, renamed or removed.
	EventDirectoryChanged
)

// Event is delivered to subscribers after a mutation has been applied.
// Title names the affected conversation and is empty for engine-wide
// changes such as DeleteAll.
type Event struct {
	Kind  EventKind
	Title string
}
