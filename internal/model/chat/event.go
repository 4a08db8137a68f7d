package chat

// EventKind names a transcript change.
type EventKind string

const (
	EventSnapshot EventKind = "snapshot"
	EventAppended EventKind = "appended"
	EventDelta    EventKind = "delta"
	EventReplaced EventKind = "replaced"
	EventIdle     EventKind = "idle"
)

// Event describes one transcript change, in the order it was applied.
// Content holds the affected message's full content after the change, so a
// reader that only keeps the latest event per message still converges.
type Event struct {
	Kind      EventKind `json:"event"`
	Version   uint64    `json:"version"`
	State     State     `json:"state"`
	SessionID string    `json:"sessionId,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Delta     string    `json:"delta,omitempty"`
	Content   string    `json:"content,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
}
