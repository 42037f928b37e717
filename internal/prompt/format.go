// Package prompt turns a role-tagged conversation into the single prompt
// string sent to /api/generate.
package prompt

import (
	"strings"

	"github.com/nubank/neura-chat/internal"
)

const (
	humanLabel     = "Human"
	assistantLabel = "Assistant"
)

// Format renders messages as
//
//	<system>\n\n
//	Human: ...\n
//	Assistant: ...\n
//	Assistant:
//
// Only the first system message is used. Roles other than user and assistant
// are dropped.
func Format(messages []internal.Message) string {
	var b strings.Builder

	if system := firstSystem(messages); system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}

	for _, m := range messages {
		var label string
		switch m.Role {
		case internal.RoleUser:
			label = humanLabel
		case internal.RoleAssistant:
			label = assistantLabel
		default:
			continue
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}

	b.WriteString(assistantLabel)
	b.WriteByte(':')
	return b.String()
}

func firstSystem(messages []internal.Message) string {
	for _, m := range messages {
		if m.Role == internal.RoleSystem {
			return m.Content
		}
	}
	return ""
}
