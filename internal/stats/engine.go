package stats

import (
	"fmt"
	"time"

	"github.com/agent-pulse/backend/internal/transcript"
)

// Options holds the engine's operational knobs. Zero values fall back to
// the documented defaults.
type Options struct {
	MaxTimeline         int
	MaxLatencyRecords   int
	StaleRequestTimeout time.Duration
	RecentUsageWindow   time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxTimeline <= 0 {
		o.MaxTimeline = 100
	}
	if o.MaxLatencyRecords <= 0 {
		o.MaxLatencyRecords = 100
	}
	if o.StaleRequestTimeout <= 0 {
		o.StaleRequestTimeout = 10 * time.Minute
	}
	if o.RecentUsageWindow <= 0 {
		o.RecentUsageWindow = 5 * time.Minute
	}
	return o
}

// compactionDropRatio is the fractional context-size drop that counts as a
// compaction. Smaller dips are normal turn-to-turn variance.
const compactionDropRatio = 0.2

type usagePoint struct {
	tokens int
	at     time.Time
}

type pendingRequest struct {
	promptAt     time.Time
	firstTokenAt time.Time
}

// Engine owns all per-session aggregate state. It is single-writer: every
// mutation happens inside HandleEvent, invoked by the monitor in event
// order. Readers get defensive copies via Snapshot.
type Engine struct {
	opts Options
	bus  *Bus

	sessionStart time.Time
	lastEventAt  time.Time
	messageCount int

	totals  TokenTotals
	costUSD float64
	models  map[string]*ModelStats

	toolCalls    []ToolCall
	pendingCalls map[string]int // tool_use id → index into toolCalls
	tools        map[string]*ToolAnalytics
	toolErrors   []ToolErrorDetail

	timeline []TimelineEvent

	tasks        map[string]*TrackedTask
	taskOrder    []string
	activeTaskID string

	pendingReq *pendingRequest
	latencies  []ResponseLatency

	compactions []CompactionEvent
	contextSize int
	recentUsage []usagePoint

	attribution ContextAttribution
}

// NewEngine creates an engine publishing derived events on bus. A nil bus
// disables publication.
func NewEngine(opts Options, bus *Bus) *Engine {
	e := &Engine{opts: opts.withDefaults(), bus: bus}
	e.Reset()
	return e
}

// Reset discards all per-session state. Called on attach and detach.
func (e *Engine) Reset() {
	e.sessionStart = time.Time{}
	e.lastEventAt = time.Time{}
	e.messageCount = 0
	e.totals = TokenTotals{}
	e.costUSD = 0
	e.models = make(map[string]*ModelStats)
	e.toolCalls = nil
	e.pendingCalls = make(map[string]int)
	e.tools = make(map[string]*ToolAnalytics)
	e.toolErrors = nil
	e.timeline = nil
	e.tasks = make(map[string]*TrackedTask)
	e.taskOrder = nil
	e.activeTaskID = ""
	e.pendingReq = nil
	e.latencies = nil
	e.compactions = nil
	e.contextSize = 0
	e.recentUsage = nil
	e.attribution = ContextAttribution{}
}

// ResetDerivable zeroes the counters a file replay re-derives: token and
// cost totals, message count, per-model stats, context size, attribution,
// and in-flight correlation state. Append-style views (timeline, tool-call
// history, tasks, latencies, compactions) are kept — they are not
// retroactively corrected by a truncation.
func (e *Engine) ResetDerivable() {
	e.messageCount = 0
	e.totals = TokenTotals{}
	e.costUSD = 0
	e.models = make(map[string]*ModelStats)
	e.contextSize = 0
	e.recentUsage = nil
	e.attribution = ContextAttribution{}
	e.pendingReq = nil
	e.pendingCalls = make(map[string]int)
}

// HandleEvent folds one non-duplicate event into the aggregate state.
func (e *Engine) HandleEvent(ev transcript.Event) {
	now, ok := ev.Time()
	if !ok {
		now = time.Now()
	}
	e.lastEventAt = now
	e.messageCount++
	if e.sessionStart.IsZero() {
		e.sessionStart = now
	}

	switch ev.Type {
	case transcript.TypeUser:
		e.handleUser(ev, now)
	case transcript.TypeAssistant:
		e.handleAssistant(ev, now)
	case transcript.TypeToolUse:
		// Legacy flat form: the tool lives on the record itself.
		if ev.Tool != nil {
			e.registerToolCall(ev.UUID, ev.Tool.Name, ev.Tool.Input, now, ev.IsSidechain)
		}
	case transcript.TypeToolResult:
		if ev.Result != nil {
			e.resolveToolResult(ev.Result.ToolUseID, ev.Result.IsError, "", now, ev.IsSidechain)
		}
	}

	e.attribute(ev)
}

func (e *Engine) handleUser(ev transcript.Event, now time.Time) {
	for _, b := range ev.Blocks() {
		if tr, isResult := b.(transcript.ToolResultBlock); isResult {
			e.resolveToolResult(tr.ToolUseID, tr.IsError, resultText(tr.Content), now, ev.IsSidechain)
		}
	}

	text := ev.VisibleText()
	if text == "" || ev.IsMeta {
		return
	}

	// Open a latency cycle. A pending request that outlived the stale
	// timeout was abandoned (the user walked away or the agent died);
	// otherwise the earlier request keeps its claim.
	if e.pendingReq != nil && now.Sub(e.pendingReq.promptAt) > e.opts.StaleRequestTimeout {
		e.pendingReq = nil
	}
	if e.pendingReq == nil && !ev.IsSidechain {
		e.pendingReq = &pendingRequest{promptAt: now}
	}

	e.pushTimeline(TimelineUserPrompt, text, noiseFor(ev, NoiseUser), now)
}

func (e *Engine) handleAssistant(ev transcript.Event, now time.Time) {
	text := ev.VisibleText()

	if e.pendingReq != nil && e.pendingReq.firstTokenAt.IsZero() && text != "" && !ev.IsSidechain {
		e.pendingReq.firstTokenAt = now
	}

	if u := ev.Usage(); u != nil {
		e.closeLatencyCycle(now)
		e.recordUsage(ev, u, now)
	}

	for _, b := range ev.Blocks() {
		if tu, isUse := b.(transcript.ToolUseBlock); isUse {
			e.registerToolCall(tu.ID, tu.Name, tu.Input, now, ev.IsSidechain)
		}
	}

	if text != "" {
		e.pushTimeline(TimelineAssistantResponse, text, noiseFor(ev, NoiseAI), now)
	}
}

func (e *Engine) recordUsage(ev transcript.Event, u *transcript.Usage, now time.Time) {
	e.totals.Input += u.InputTokens
	e.totals.Output += u.OutputTokens
	e.totals.CacheCreation += u.CacheCreationInputTokens
	e.totals.CacheRead += u.CacheReadInputTokens
	e.totals.Reasoning += u.ReasoningTokens
	e.costUSD += u.ReportedCost

	model := "unknown"
	if ev.Message != nil && ev.Message.Model != "" {
		model = ev.Message.Model
	}
	ms := e.models[model]
	if ms == nil {
		ms = &ModelStats{}
		e.models[model] = ms
	}
	ms.Calls++
	ms.InputTokens += u.InputTokens
	ms.OutputTokens += u.OutputTokens
	ms.CacheCreationTokens += u.CacheCreationInputTokens
	ms.CacheReadTokens += u.CacheReadInputTokens

	if size := u.ContextSize(); size > 0 {
		e.detectCompaction(size, now)
		e.contextSize = size
	}

	e.recentUsage = append(e.recentUsage, usagePoint{tokens: e.totals.Total(), at: now})
	e.pruneRecentUsage(now)

	if e.bus != nil {
		e.bus.TokenUsage.Publish(TokenUsage{
			InputTokens:         u.InputTokens,
			OutputTokens:        u.OutputTokens,
			CacheCreationTokens: u.CacheCreationInputTokens,
			CacheReadTokens:     u.CacheReadInputTokens,
			ReasoningTokens:     u.ReasoningTokens,
			Model:               model,
			Timestamp:           now,
			CostUSD:             u.ReportedCost,
		})
	}
}

func (e *Engine) detectCompaction(size int, now time.Time) {
	prev := e.contextSize
	if prev <= 0 || size >= prev {
		return
	}
	drop := float64(prev-size) / float64(prev)
	if drop <= compactionDropRatio {
		return
	}

	ce := CompactionEvent{
		Timestamp:       now,
		BeforeSize:      prev,
		AfterSize:       size,
		TokensReclaimed: prev - size,
	}
	e.compactions = append(e.compactions, ce)
	e.pushTimeline(TimelineCompaction,
		fmt.Sprintf("Context compacted: %d → %d tokens", prev, size),
		NoiseSystem, now)
	if e.bus != nil {
		e.bus.Compaction.Publish(ce)
	}
}

func (e *Engine) closeLatencyCycle(now time.Time) {
	if e.pendingReq == nil {
		return
	}
	req := e.pendingReq
	e.pendingReq = nil

	firstToken := req.firstTokenAt
	if firstToken.IsZero() {
		firstToken = now
	}

	rec := ResponseLatency{
		PromptAt:            req.promptAt,
		FirstTokenLatencyMs: firstToken.Sub(req.promptAt).Milliseconds(),
		TotalResponseTimeMs: now.Sub(req.promptAt).Milliseconds(),
	}
	e.latencies = append(e.latencies, rec)
	if len(e.latencies) > e.opts.MaxLatencyRecords {
		e.latencies = e.latencies[len(e.latencies)-e.opts.MaxLatencyRecords:]
	}

	if e.bus != nil {
		e.bus.Latency.Publish(e.latencyStats())
	}
}

func (e *Engine) latencyStats() LatencyStats {
	ls := LatencyStats{Count: len(e.latencies)}
	if ls.Count == 0 {
		return ls
	}
	var sumFirst, sumTotal int64
	for _, r := range e.latencies {
		sumFirst += r.FirstTokenLatencyMs
		sumTotal += r.TotalResponseTimeMs
		if r.TotalResponseTimeMs > ls.MaxTotalMs {
			ls.MaxTotalMs = r.TotalResponseTimeMs
		}
	}
	ls.AvgFirstTokenMs = sumFirst / int64(ls.Count)
	ls.AvgTotalMs = sumTotal / int64(ls.Count)
	last := e.latencies[len(e.latencies)-1]
	ls.LastFirstTokenMs = last.FirstTokenLatencyMs
	ls.LastTotalResponseMs = last.TotalResponseTimeMs
	return ls
}

func (e *Engine) pruneRecentUsage(now time.Time) {
	cutoff := now.Add(-e.opts.RecentUsageWindow)
	keep := 0
	for keep < len(e.recentUsage) && !e.recentUsage[keep].at.After(cutoff) {
		keep++
	}
	if keep > 0 {
		e.recentUsage = append([]usagePoint(nil), e.recentUsage[keep:]...)
	}
}

// BurnRate computes tokens consumed per minute across the recent-usage
// window. Needs two points at least five seconds apart to avoid noise.
func (e *Engine) BurnRate() float64 {
	if len(e.recentUsage) < 2 {
		return 0
	}
	oldest := e.recentUsage[0]
	latest := e.recentUsage[len(e.recentUsage)-1]
	delta := latest.tokens - oldest.tokens
	span := latest.at.Sub(oldest.at)
	if span.Seconds() < 5 || delta <= 0 {
		return 0
	}
	return float64(delta) / span.Minutes()
}

func (e *Engine) pushTimeline(kind, description, noise string, at time.Time) {
	tev := TimelineEvent{
		Kind:        kind,
		Description: truncate(description, 80),
		Noise:       noise,
		Timestamp:   at,
	}
	e.timeline = append(e.timeline, TimelineEvent{})
	copy(e.timeline[1:], e.timeline)
	e.timeline[0] = tev
	if len(e.timeline) > e.opts.MaxTimeline {
		e.timeline = e.timeline[:e.opts.MaxTimeline]
	}
	if e.bus != nil {
		e.bus.Timeline.Publish(tev)
	}
}

func noiseFor(ev transcript.Event, base string) string {
	if ev.IsSidechain {
		return NoiseNoise
	}
	if ev.IsMeta {
		return NoiseSystem
	}
	return base
}

// Snapshot returns a deep copy of the aggregate state.
func (e *Engine) Snapshot() *Snapshot {
	snap := &Snapshot{
		SessionStart:      e.sessionStart,
		MessageCount:      e.messageCount,
		Totals:            e.totals,
		TotalCostUSD:      e.costUSD,
		Models:            make(map[string]ModelStats, len(e.models)),
		ToolCalls:         append([]ToolCall(nil), e.toolCalls...),
		Tools:             make(map[string]ToolAnalytics, len(e.tools)),
		Timeline:          append([]TimelineEvent(nil), e.timeline...),
		Tasks:             make([]TrackedTask, 0, len(e.taskOrder)),
		ActiveTaskID:      e.activeTaskID,
		Latencies:         append([]ResponseLatency(nil), e.latencies...),
		LatencyStats:      e.latencyStats(),
		Compactions:       append([]CompactionEvent(nil), e.compactions...),
		Attribution:       e.attribution,
		ContextSize:       e.contextSize,
		BurnRatePerMinute: e.BurnRate(),
		ToolErrors:        append([]ToolErrorDetail(nil), e.toolErrors...),
	}
	for name, ms := range e.models {
		snap.Models[name] = *ms
	}
	for name, ta := range e.tools {
		snap.Tools[name] = *ta
	}
	for _, id := range e.taskOrder {
		if task := e.tasks[id]; task != nil {
			t := *task
			t.BlockedBy = append([]string(nil), task.BlockedBy...)
			t.Blocks = append([]string(nil), task.Blocks...)
			t.ToolCallIDs = append([]string(nil), task.ToolCallIDs...)
			snap.Tasks = append(snap.Tasks, t)
		}
	}
	for i := range snap.ToolCalls {
		snap.ToolCalls[i].Input = append([]byte(nil), e.toolCalls[i].Input...)
	}
	return snap
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
