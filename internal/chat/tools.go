package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Tool names exposed to the completion capability. These are the only
// two tools in the system.
const (
	ToolAddResource    = "addResource"
	ToolGetInformation = "getInformation"
)

// ToolDef describes one tool to the completion capability. Parameters is
// a JSON Schema object.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// KnowledgeBase is the orchestrator's view of the knowledge system:
// ingestion and retrieval, nothing else. Retrieve never errors; it
// degrades to sentinel text (see internal/knowledge).
type KnowledgeBase interface {
	AddResource(ctx context.Context, content string) (int, error)
	Retrieve(ctx context.Context, question string) string
}

// toolDefs builds the two tool schemas bound to the knowledge base.
func toolDefs() []ToolDef {
	return []ToolDef{
		{
			Name:        ToolAddResource,
			Description: "Add a resource to your knowledge base. If the user provides a random piece of knowledge unprompted, use this tool without asking for confirmation.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "the content or resource to add to the knowledge base",
					},
				},
				"required": []string{"content"},
			},
		},
		{
			Name:        ToolGetInformation,
			Description: "Get information from your knowledge base to answer questions.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{
						"type":        "string",
						"description": "the user's question",
					},
				},
				"required": []string{"question"},
			},
		},
	}
}

type addResourceArgs struct {
	Content string `json:"content"`
}

type getInformationArgs struct {
	Question string `json:"question"`
}

// executeTool runs one tool call against the knowledge base and returns
// its result. Execution errors become failed tool results folded back
// into history — they never abort the request.
func (c *Chat) executeTool(ctx context.Context, call ToolCall) ToolResult {
	result := ToolResult{CallID: call.ID, Name: call.Name}

	switch call.Name {
	case ToolAddResource:
		var args addResourceArgs
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			result.Failed = true
			result.Content = fmt.Sprintf("invalid arguments: %v", err)
			return result
		}
		n, err := c.knowledge.AddResource(ctx, args.Content)
		if err != nil {
			c.logger.Warn("addResource tool failed", "error", err)
			result.Failed = true
			result.Content = fmt.Sprintf("failed to add resource: %v", err)
			return result
		}
		result.Content = "Resource successfully added to the knowledge base (" + strconv.Itoa(n) + " chunks)."

	case ToolGetInformation:
		var args getInformationArgs
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			result.Failed = true
			result.Content = fmt.Sprintf("invalid arguments: %v", err)
			return result
		}
		result.Content = c.knowledge.Retrieve(ctx, args.Question)

	default:
		result.Failed = true
		result.Content = "unknown tool: " + call.Name
	}

	return result
}
