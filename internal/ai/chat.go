package ai

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	StopEndTurn = "end_turn"
	StopToolUse = "tool_use"
)

type ToolParam struct {
	Name        string
	Type        string // "string", "number", "integer", "boolean"
	Description string
	Required    bool
}

type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

type ToolResult struct {
	ID      string
	Name    string
	Content map[string]interface{}
}

type ImageBlock struct {
	MIMEType string
	Data     []byte
}

// ChatMessage is one turn of a conversation. A message carries either
// text/images, or the assistant's requested tool calls, or the tool
// results answering them.
type ChatMessage struct {
	Role        string
	Text        string
	Images      []ImageBlock
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

type ChatTurn struct {
	Message    ChatMessage
	StopReason string
}

func TextMessage(role, text string) ChatMessage {
	return ChatMessage{Role: role, Text: text}
}
