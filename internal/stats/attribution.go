package stats

import (
	"strings"

	"github.com/agent-pulse/backend/internal/transcript"
)

// estimateTokens approximates a token count from text length. Four bytes
// per token is the usual rule of thumb for English-heavy content.
func estimateTokens(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// attribute classifies an event's content into the context-attribution
// buckets. Heuristic: the transcript does not label content by category.
func (e *Engine) attribute(ev transcript.Event) {
	blocks := ev.Blocks()
	if len(blocks) == 0 {
		// Legacy flat events and summaries still occupy context.
		if ev.Tool != nil {
			e.attribution.ToolInputs += estimateTokens(len(ev.Tool.Input))
		} else if ev.Summary != "" {
			e.attribution.Other += estimateTokens(len(ev.Summary))
		}
		return
	}

	for _, b := range blocks {
		switch blk := b.(type) {
		case transcript.TextBlock:
			n := estimateTokens(len(blk.Text))
			switch {
			case ev.Type == transcript.TypeUser && isSystemText(ev, blk.Text):
				e.attribution.SystemPrompt += n
			case ev.Type == transcript.TypeUser:
				e.attribution.UserMessages += n
			case ev.Type == transcript.TypeAssistant:
				e.attribution.AssistantResponses += n
			default:
				e.attribution.Other += n
			}
		case transcript.ThinkingBlock:
			e.attribution.Thinking += estimateTokens(len(blk.Thinking))
		case transcript.ToolUseBlock:
			e.attribution.ToolInputs += estimateTokens(len(blk.Input))
		case transcript.ToolResultBlock:
			e.attribution.ToolOutputs += estimateTokens(len(blk.Content))
		}
	}
}

// isSystemText spots injected system material inside user records: meta
// records, XML-ish system markers, and the caveat preamble the host wraps
// around command output.
func isSystemText(ev transcript.Event, text string) bool {
	if ev.IsMeta {
		return true
	}
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "<system") ||
		strings.HasPrefix(trimmed, "<command-") ||
		strings.HasPrefix(trimmed, "<local-command-") ||
		strings.HasPrefix(trimmed, "Caveat:")
}
