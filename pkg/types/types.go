// Package types holds the few values shared by the chat backend, the live
// transport and the session controller.
package types

// Roles in a chat history. The live transport keeps its own turn model.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a text conversation.
type Message struct {
	Role    string
	Content string
}

// ToolDefinition declares a function the model may call. Parameters is a JSON
// Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}
