package modelservice

import (
	"encoding/json"
	"strings"
)

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// PartKind is the discriminator tag for Part.
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
)

// ToolCallData represents a model-initiated tool invocation. Arguments are
// carried verbatim as provided by the service; they are untrusted until the
// dispatcher validates them.
type ToolCallData struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResultData holds the outcome of a tool execution, fed back to the
// service as a function response. Exactly one of output or error semantics
// applies, discriminated by IsError.
type ToolResultData struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// Part is a tagged union representing one part of a turn.
type Part struct {
	Kind       PartKind        `json:"kind"`
	Text       string          `json:"text,omitempty"`
	ToolCall   *ToolCallData   `json:"tool_call,omitempty"`
	ToolResult *ToolResultData `json:"tool_result,omitempty"`
}

// TextPart creates a text Part.
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// ToolCallPart creates a tool call Part.
func ToolCallPart(id, name string, args json.RawMessage) Part {
	return Part{
		Kind:     PartToolCall,
		ToolCall: &ToolCallData{ID: id, Name: name, Arguments: args},
	}
}

// ToolResultPart creates a tool result Part.
func ToolResultPart(toolCallID, name, content string, isError bool) Part {
	return Part{
		Kind: PartToolResult,
		ToolResult: &ToolResultData{
			ToolCallID: toolCallID,
			Name:       name,
			Content:    content,
			IsError:    isError,
		},
	}
}

// Turn is one entry in the conversation log. Turns are immutable once
// appended to a transcript.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// UserTurn creates a user Turn with text content.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Parts: []Part{TextPart(text)}}
}

// ModelTurn creates a model Turn from arbitrary parts.
func ModelTurn(parts ...Part) Turn {
	return Turn{Role: RoleModel, Parts: parts}
}

// ToolTurn creates a tool Turn wrapping a single tool result.
func ToolTurn(result ToolResultData) Turn {
	return Turn{Role: RoleTool, Parts: []Part{{Kind: PartToolResult, ToolResult: &result}}}
}

// Text returns the concatenation of all text parts in the turn.
func (t Turn) Text() string {
	var sb strings.Builder
	for _, part := range t.Parts {
		if part.Kind == PartText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// ToolCalls extracts all tool call data from the turn, in part order.
func (t Turn) ToolCalls() []ToolCallData {
	var calls []ToolCallData
	for _, part := range t.Parts {
		if part.Kind == PartToolCall && part.ToolCall != nil {
			calls = append(calls, *part.ToolCall)
		}
	}
	return calls
}

// ParamType enumerates the parameter value shapes a tool schema may declare.
type ParamType string

const (
	ParamString      ParamType = "string"
	ParamStringArray ParamType = "string_array"
)

// ParameterSpec describes one named parameter of a tool.
type ParameterSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
}

// ToolSchema describes a tool for the service: its name, what it does, and
// the shape of its arguments.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ParameterSpec `json:"parameters"`
}

// Usage tracks token consumption for diagnostics.
type Usage struct {
	PromptTokens   int `json:"prompt_tokens"`
	ResponseTokens int `json:"response_tokens"`
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:   u.PromptTokens + other.PromptTokens,
		ResponseTokens: u.ResponseTokens + other.ResponseTokens,
	}
}

// Request is the input to a single service round trip.
type Request struct {
	Model             string       `json:"model"`
	Turns             []Turn       `json:"turns"`
	Tools             []ToolSchema `json:"tools,omitempty"`
	SystemInstruction string       `json:"system_instruction,omitempty"`
	Provider          string       `json:"provider,omitempty"`
}

// Response is the output of a single service round trip.
type Response struct {
	Turns []Turn `json:"turns"`
	Usage Usage  `json:"usage"`
}

// Text returns the finished text of the response: the concatenated text
// parts across all returned turns.
func (r Response) Text() string {
	var sb strings.Builder
	for _, turn := range r.Turns {
		sb.WriteString(turn.Text())
	}
	return sb.String()
}

// ToolCalls returns every tool call in the response, in the order the
// service requested them.
func (r Response) ToolCalls() []ToolCallData {
	var calls []ToolCallData
	for _, turn := range r.Turns {
		calls = append(calls, turn.ToolCalls()...)
	}
	return calls
}
