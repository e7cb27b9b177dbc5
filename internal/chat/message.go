package chat

import (
	"encoding/json"
	"strings"
)

// Role tags a conversation turn.
type Role string

// Conversation roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind discriminates the content variants of a Part.
type PartKind string

// Part kinds.
const (
	PartText       PartKind = "text"
	PartToolCall   PartKind = "tool-call"
	PartToolResult PartKind = "tool-result"
)

// Message is one role-tagged conversation turn. Content is a tagged union
// over text, tool-call and tool-result parts rather than duck-typed
// branching; TextMessage covers the common plain-text case.
type Message struct {
	Role  Role
	Parts []Part
}

// Part is one content element of a Message. Exactly one of Text,
// ToolCall or ToolResult is meaningful, selected by Kind.
type Part struct {
	Kind       PartKind
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// ToolCall is a structured request from the completion capability to
// invoke one of the bound tools.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult carries one executed tool call's output back into history.
// Failed marks tool execution errors, which are folded into the
// conversation rather than aborting the request.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	Failed  bool
}

// TextMessage builds a single-part plain-text message.
func TextMessage(role Role, text string) Message {
	return Message{
		Role:  role,
		Parts: []Part{{Kind: PartText, Text: text}},
	}
}

// Text flattens the message's text parts into one string. Tool parts are
// rendered as their textual content so a flattened history remains
// readable in span attributes.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		switch p.Kind {
		case PartText:
			b.WriteString(p.Text)
		case PartToolCall:
			if p.ToolCall != nil {
				b.WriteString("[tool-call " + p.ToolCall.Name + "]")
			}
		case PartToolResult:
			if p.ToolResult != nil {
				b.WriteString(p.ToolResult.Content)
			}
		}
	}
	return b.String()
}

// flattenHistory renders the whole message sequence for span input
// attributes, one "role: text" line per turn.
func flattenHistory(msgs []Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, string(m.Role)+": "+m.Text())
	}
	return strings.Join(lines, "\n")
}
