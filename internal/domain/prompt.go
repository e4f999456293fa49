package domain

import "strings"

// Message roles understood by chat models.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    string
	Content string
}

// Prompt is the structured input handed to the generative model.
type Prompt struct {
	Version  string
	Messages []Message
}

// Render returns a stable textual form of the prompt.
func (p Prompt) Render() string {
	var b strings.Builder
	for i, m := range p.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[")
		b.WriteString(m.Role)
		b.WriteString("]\n")
		b.WriteString(m.Content)
	}
	return b.String()
}

// SystemContent returns the content of the leading system message, if any.
func (p Prompt) SystemContent() string {
	if len(p.Messages) > 0 && p.Messages[0].Role == RoleSystem {
		return p.Messages[0].Content
	}
	return ""
}
