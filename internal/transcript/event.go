// Package transcript decodes the newline-delimited JSON transcript an AI
// coding agent appends while it runs. Parsing is deliberately permissive:
// unknown fields are ignored and malformed records are skipped, never fatal.
package transcript

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Event types seen in transcript records.
const (
	TypeUser       = "user"
	TypeAssistant  = "assistant"
	TypeToolUse    = "tool_use"
	TypeToolResult = "tool_result"
	TypeSummary    = "summary"
)

// Event is one parsed transcript record. Immutable once decoded.
type Event struct {
	Type        string        `json:"type"`
	UUID        string        `json:"uuid"`
	RequestID   string        `json:"requestId"`
	SessionID   string        `json:"sessionId"`
	Timestamp   string        `json:"timestamp"`
	IsSidechain bool          `json:"isSidechain"`
	IsMeta      bool          `json:"isMeta"`
	Summary     string        `json:"summary"`
	Message     *Message      `json:"message"`
	Tool        *LegacyTool   `json:"tool"`
	Result      *LegacyResult `json:"result"`
}

// LegacyTool is the flat tool field carried by older transcript formats.
type LegacyTool struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// LegacyResult is the flat result field carried by older transcript formats.
type LegacyResult struct {
	ToolUseID string `json:"tool_use_id"`
	IsError   bool   `json:"is_error"`
}

// Message holds the model-facing part of a record.
type Message struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Usage   *Usage          `json:"usage"`
	Content json.RawMessage `json:"content"`
}

// Usage is the provider's token accounting for one assistant turn.
type Usage struct {
	InputTokens              int     `json:"input_tokens"`
	OutputTokens             int     `json:"output_tokens"`
	CacheCreationInputTokens int     `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int     `json:"cache_read_input_tokens"`
	ReportedCost             float64 `json:"reported_cost"`
	ReasoningTokens          int     `json:"reasoning_tokens"`
}

// ContextSize is the provider-defined context occupancy after this turn:
// everything that counted as input, cached or not.
func (u Usage) ContextSize() int {
	return u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// Block is one element of a message's content sequence. The concrete type
// is determined by the record's type tag; a block with an unknown tag is
// dropped during decoding.
type Block interface {
	blockType() string
}

type TextBlock struct {
	Text string
}

type ThinkingBlock struct {
	Thinking string
}

type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

type ToolResultBlock struct {
	ToolUseID string
	IsError   bool
	Content   json.RawMessage
}

func (TextBlock) blockType() string       { return "text" }
func (ThinkingBlock) blockType() string   { return "thinking" }
func (ToolUseBlock) blockType() string    { return TypeToolUse }
func (ToolResultBlock) blockType() string { return TypeToolResult }

// Blocks decodes the message content into its ordered block sequence.
// Plain-string content becomes a single TextBlock. Returns nil when the
// event carries no message or the content cannot be decoded.
func (e *Event) Blocks() []Block {
	if e.Message == nil || len(e.Message.Content) == 0 {
		return nil
	}
	raw := bytes.TrimSpace(e.Message.Content)
	if len(raw) == 0 {
		return nil
	}

	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return nil
		}
		if s == "" {
			return nil
		}
		return []Block{TextBlock{Text: s}}
	}

	var rawBlocks []json.RawMessage
	if json.Unmarshal(raw, &rawBlocks) != nil {
		return nil
	}

	blocks := make([]Block, 0, len(rawBlocks))
	for _, rb := range rawBlocks {
		if b, ok := decodeBlock(rb); ok {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

func decodeBlock(raw json.RawMessage) (Block, bool) {
	var tag struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(raw, &tag) != nil {
		return nil, false
	}

	switch tag.Type {
	case "text":
		var b struct {
			Text string `json:"text"`
		}
		if json.Unmarshal(raw, &b) != nil {
			return nil, false
		}
		return TextBlock{Text: b.Text}, true

	case "thinking":
		var b struct {
			Thinking string `json:"thinking"`
		}
		if json.Unmarshal(raw, &b) != nil {
			return nil, false
		}
		return ThinkingBlock{Thinking: b.Thinking}, true

	case TypeToolUse:
		var b struct {
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}
		if json.Unmarshal(raw, &b) != nil {
			return nil, false
		}
		return ToolUseBlock{ID: b.ID, Name: b.Name, Input: b.Input}, true

	case TypeToolResult:
		var b struct {
			ToolUseID string          `json:"tool_use_id"`
			IsError   bool            `json:"is_error"`
			Content   json.RawMessage `json:"content"`
		}
		if json.Unmarshal(raw, &b) != nil {
			return nil, false
		}
		return ToolResultBlock{ToolUseID: b.ToolUseID, IsError: b.IsError, Content: b.Content}, true
	}

	return nil, false
}

// VisibleText concatenates the event's text blocks. Thinking and tool
// blocks are not visible text.
func (e *Event) VisibleText() string {
	var sb strings.Builder
	for _, b := range e.Blocks() {
		if tb, ok := b.(TextBlock); ok {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

// Usage returns the event's usage record. Only assistant events carry one.
func (e *Event) Usage() *Usage {
	if e.Type != TypeAssistant || e.Message == nil {
		return nil
	}
	return e.Message.Usage
}

// Time parses the event timestamp. Returns ok=false for missing or
// unparseable timestamps.
func (e *Event) Time() (time.Time, bool) {
	if e.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
