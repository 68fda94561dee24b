// internal/models/conversation.go
package models

// Turn roles mirror the conversation roles of the inference service.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of a session's append-only conversation log. The log is
// handed opaquely to collaborators; nothing in the pipeline interprets it.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
