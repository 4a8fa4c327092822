package llm

// Role tags who produced a conversation message.
type Role string

const (
	// RoleSystem is the persona instruction seeded at session creation.
	RoleSystem Role = "system"

	// RoleUser is a transcribed member utterance.
	RoleUser Role = "user"

	// RoleAssistant is a model reply.
	RoleAssistant Role = "assistant"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message represents a single message in a conversation history.
type Message struct {
	// Role tags the message producer.
	Role Role

	// Content is the text content of the message.
	Content string
}
