package stats

import "github.com/agent-pulse/backend/internal/pubsub"

// Bus carries every event kind the monitor publishes, one typed topic per
// kind. Delivery is synchronous and in-order; consumers must treat payloads
// as immutable snapshots.
type Bus struct {
	TokenUsage    *pubsub.Topic[TokenUsage]
	ToolCall      *pubsub.Topic[ToolCall]
	SessionStart  *pubsub.Topic[string]
	SessionEnd    *pubsub.Topic[string]
	ToolAnalytics *pubsub.Topic[map[string]ToolAnalytics]
	Timeline      *pubsub.Topic[TimelineEvent]
	DiscoveryMode *pubsub.Topic[bool]
	Latency       *pubsub.Topic[LatencyStats]
	Compaction    *pubsub.Topic[CompactionEvent]
}

func NewBus() *Bus {
	return &Bus{
		TokenUsage:    pubsub.NewTopic[TokenUsage](),
		ToolCall:      pubsub.NewTopic[ToolCall](),
		SessionStart:  pubsub.NewTopic[string](),
		SessionEnd:    pubsub.NewTopic[string](),
		ToolAnalytics: pubsub.NewTopic[map[string]ToolAnalytics](),
		Timeline:      pubsub.NewTopic[TimelineEvent](),
		DiscoveryMode: pubsub.NewTopic[bool](),
		Latency:       pubsub.NewTopic[LatencyStats](),
		Compaction:    pubsub.NewTopic[CompactionEvent](),
	}
}

// Close releases every topic. Safe to call more than once.
func (b *Bus) Close() {
	b.TokenUsage.Close()
	b.ToolCall.Close()
	b.SessionStart.Close()
	b.SessionEnd.Close()
	b.ToolAnalytics.Close()
	b.Timeline.Close()
	b.DiscoveryMode.Close()
	b.Latency.Close()
	b.Compaction.Close()
}
