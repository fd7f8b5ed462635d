// Package stats aggregates a deduplicated transcript event stream into the
// session's live metrics: token and cost totals, per-model and per-tool
// breakdowns, a bounded timeline, task state, latency cycles, context
// attribution, and compaction events.
package stats

import (
	"encoding/json"
	"time"
)

// TokenTotals accumulates token counts across the whole session.
type TokenTotals struct {
	Input         int `json:"input"`
	Output        int `json:"output"`
	CacheCreation int `json:"cacheCreation"`
	CacheRead     int `json:"cacheRead"`
	Reasoning     int `json:"reasoning,omitempty"`
}

// Total is the all-in token count used for burn-rate calculations.
func (t TokenTotals) Total() int {
	return t.Input + t.Output + t.CacheCreation + t.CacheRead
}

// TokenUsage is one assistant turn's usage record, as published on the bus.
type TokenUsage struct {
	InputTokens         int       `json:"inputTokens"`
	OutputTokens        int       `json:"outputTokens"`
	CacheCreationTokens int       `json:"cacheCreationTokens"`
	CacheReadTokens     int       `json:"cacheReadTokens"`
	ReasoningTokens     int       `json:"reasoningTokens,omitempty"`
	Model               string    `json:"model"`
	Timestamp           time.Time `json:"timestamp"`
	CostUSD             float64   `json:"costUsd,omitempty"`
}

// ModelStats is the per-model rollup.
type ModelStats struct {
	Calls               int `json:"calls"`
	InputTokens         int `json:"inputTokens"`
	OutputTokens        int `json:"outputTokens"`
	CacheCreationTokens int `json:"cacheCreationTokens"`
	CacheReadTokens     int `json:"cacheReadTokens"`
}

// ToolCall tracks one tool invocation from tool_use block to its result.
type ToolCall struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Input         json.RawMessage `json:"input,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Completed     bool            `json:"completed"`
	IsError       bool            `json:"isError"`
	DurationMs    int64           `json:"durationMs"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	ErrorCategory string          `json:"errorCategory,omitempty"`
}

// ToolAnalytics is the per-tool-name rollup.
type ToolAnalytics struct {
	Calls           int   `json:"calls"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	Completed       int   `json:"completed"`
	Pending         int   `json:"pending"`
	TotalDurationMs int64 `json:"totalDurationMs"`
}

// Timeline event kinds.
const (
	TimelineUserPrompt        = "user_prompt"
	TimelineAssistantResponse = "assistant_response"
	TimelineToolCall          = "tool_call"
	TimelineToolResult        = "tool_result"
	TimelineError             = "error"
	TimelineCompaction        = "compaction"
)

// Timeline noise classifications.
const (
	NoiseUser   = "user"
	NoiseAI     = "ai"
	NoiseSystem = "system"
	NoiseNoise  = "noise"
)

// TimelineEvent is a display-oriented projection of one event or derived
// signal, stored most-recent-first.
type TimelineEvent struct {
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Noise       string    `json:"noise"`
	Timestamp   time.Time `json:"timestamp"`
}

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskDeleted    = "deleted"
)

// TrackedTask is one entry in the session's task graph. BlockedBy and
// Blocks hold free-form task id references; the engine stores them verbatim
// and never validates the graph.
type TrackedTask struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	BlockedBy    []string  `json:"blockedBy,omitempty"`
	Blocks       []string  `json:"blocks,omitempty"`
	IsSubagent   bool      `json:"isSubagent,omitempty"`
	SubagentType string    `json:"subagentType,omitempty"`
	ToolCallIDs  []string  `json:"toolCallIds,omitempty"`
}

// ResponseLatency records one user-request → response cycle.
type ResponseLatency struct {
	PromptAt            time.Time `json:"promptAt"`
	FirstTokenLatencyMs int64     `json:"firstTokenLatencyMs"`
	TotalResponseTimeMs int64     `json:"totalResponseTimeMs"`
}

// LatencyStats summarizes the recorded latency cycles.
type LatencyStats struct {
	Count               int   `json:"count"`
	AvgFirstTokenMs     int64 `json:"avgFirstTokenMs"`
	AvgTotalMs          int64 `json:"avgTotalMs"`
	MaxTotalMs          int64 `json:"maxTotalMs"`
	LastFirstTokenMs    int64 `json:"lastFirstTokenMs"`
	LastTotalResponseMs int64 `json:"lastTotalResponseMs"`
}

// CompactionEvent records a sharp drop in computed context size.
type CompactionEvent struct {
	Timestamp       time.Time `json:"timestamp"`
	BeforeSize      int       `json:"beforeSize"`
	AfterSize       int       `json:"afterSize"`
	TokensReclaimed int       `json:"tokensReclaimed"`
}

// ContextAttribution holds estimated token counts per content category.
type ContextAttribution struct {
	SystemPrompt       int `json:"systemPrompt"`
	UserMessages       int `json:"userMessages"`
	AssistantResponses int `json:"assistantResponses"`
	ToolInputs         int `json:"toolInputs"`
	ToolOutputs        int `json:"toolOutputs"`
	Thinking           int `json:"thinking"`
	Other              int `json:"other"`
}

// ToolErrorDetail is one categorized tool failure, kept for later reporting.
type ToolErrorDetail struct {
	Tool      string    `json:"tool"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a self-contained copy of the aggregate state. Everything in
// it belongs to the caller; mutating it cannot affect the engine.
type Snapshot struct {
	SessionPath       string                    `json:"sessionPath,omitempty"`
	SessionStart      time.Time                 `json:"sessionStart"`
	MessageCount      int                       `json:"messageCount"`
	Totals            TokenTotals               `json:"totals"`
	TotalCostUSD      float64                   `json:"totalCostUsd"`
	Models            map[string]ModelStats     `json:"models"`
	ToolCalls         []ToolCall                `json:"toolCalls"`
	Tools             map[string]ToolAnalytics  `json:"tools"`
	Timeline          []TimelineEvent           `json:"timeline"`
	Tasks             []TrackedTask             `json:"tasks"`
	ActiveTaskID      string                    `json:"activeTaskId,omitempty"`
	Latencies         []ResponseLatency         `json:"latencies"`
	LatencyStats      LatencyStats              `json:"latencyStats"`
	Compactions       []CompactionEvent         `json:"compactions"`
	Attribution       ContextAttribution        `json:"attribution"`
	ContextSize       int                       `json:"contextSize"`
	BurnRatePerMinute float64                   `json:"burnRatePerMinute"`
	ToolErrors        []ToolErrorDetail         `json:"toolErrors,omitempty"`
	PID               int                       `json:"pid,omitempty"`
	CPUPercent        float64                   `json:"cpuPercent,omitempty"`
}
