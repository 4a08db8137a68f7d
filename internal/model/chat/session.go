package chat

import "time"

// State is the engine-wide streaming state.
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
)

// StreamSession binds one submission to the assistant entry its stream fills.
type StreamSession struct {
	ID                 string    `json:"id"`
	UserMessageID      string    `json:"userMessageId"`
	AssistantMessageID string    `json:"assistantMessageId"`
	Prompt             string    `json:"prompt"`
	StartedAt          time.Time `json:"startedAt"`
}
