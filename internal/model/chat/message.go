package chat

import "time"

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrorMarker replaces an assistant reply whose stream failed.
const ErrorMarker = "[Error: Failed to get response from OpenAI]"

// Message is one transcript entry. Role never changes after creation;
// Content of an assistant entry grows while its stream is active.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
