package ws

import (
	"github.com/agent-pulse/backend/internal/stats"
)

type MessageType string

const (
	MsgSnapshot      MessageType = "snapshot"
	MsgTokenUsage    MessageType = "token_usage"
	MsgToolCall      MessageType = "tool_call"
	MsgToolAnalytics MessageType = "tool_analytics"
	MsgTimeline      MessageType = "timeline"
	MsgSessionStart  MessageType = "session_start"
	MsgSessionEnd    MessageType = "session_end"
	MsgDiscoveryMode MessageType = "discovery_mode"
	MsgLatency       MessageType = "latency"
	MsgCompaction    MessageType = "compaction"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload carries the full aggregate state plus the lifecycle
// status. Sent on connect and after every session start.
type SnapshotPayload struct {
	Stats  *stats.Snapshot `json:"stats"`
	State  string          `json:"state"`
	Pinned bool            `json:"pinned"`
}

// SessionPayload identifies a session for start/end messages.
type SessionPayload struct {
	Path string `json:"path"`
	ID   string `json:"id"`
}

type DiscoveryPayload struct {
	Discovery bool `json:"discovery"`
}
