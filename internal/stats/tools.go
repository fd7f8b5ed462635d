package stats

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Tool error categories.
const (
	ErrPermission = "permission"
	ErrNotFound   = "not-found"
	ErrTimeout    = "timeout"
	ErrSyntax     = "syntax"
	ErrExitCode   = "exit-code"
	ErrToolError  = "tool-error"
	ErrOther      = "other"
)

func (e *Engine) registerToolCall(id, name string, input json.RawMessage, now time.Time, sidechain bool) {
	if name == "" {
		return
	}
	if id == "" {
		// Legacy flat events carry no tool-use id; synthesize a stable one
		// so a later result can still never collide with a real id.
		id = fmt.Sprintf("call-%d", len(e.toolCalls))
	}

	e.toolCalls = append(e.toolCalls, ToolCall{
		ID:        id,
		Name:      name,
		Input:     append([]byte(nil), input...),
		Timestamp: now,
	})
	e.pendingCalls[id] = len(e.toolCalls) - 1

	ta := e.tools[name]
	if ta == nil {
		ta = &ToolAnalytics{}
		e.tools[name] = ta
	}
	ta.Calls++
	ta.Pending++

	e.handleTaskTool(id, name, input, now)

	noise := NoiseAI
	if sidechain {
		noise = NoiseNoise
	}
	e.pushTimeline(TimelineToolCall, describeToolCall(name, input), noise, now)

	if e.bus != nil {
		e.bus.ToolCall.Publish(e.toolCalls[len(e.toolCalls)-1])
	}
}

func (e *Engine) resolveToolResult(toolUseID string, isError bool, message string, now time.Time, sidechain bool) {
	noise := NoiseSystem
	if sidechain {
		noise = NoiseNoise
	}

	idx, ok := e.pendingCalls[toolUseID]
	if !ok || idx >= len(e.toolCalls) {
		// No pending call: duplicate result id or truncation rollover.
		// The aggregate state is untouched; the timeline gets a generic
		// entry so the activity is still visible.
		e.pushTimeline(TimelineToolResult, "Tool result", noise, now)
		return
	}
	delete(e.pendingCalls, toolUseID)

	tc := &e.toolCalls[idx]
	tc.Completed = true
	tc.IsError = isError
	if d := now.Sub(tc.Timestamp); d > 0 {
		tc.DurationMs = d.Milliseconds()
	}

	if ta := e.tools[tc.Name]; ta != nil {
		if ta.Pending > 0 {
			ta.Pending--
		}
		ta.Completed++
		if isError {
			ta.Failed++
		} else {
			ta.Succeeded++
		}
		ta.TotalDurationMs += tc.DurationMs
	}

	if isError {
		tc.ErrorMessage = truncate(message, 200)
		tc.ErrorCategory = classifyToolError(message)
		e.toolErrors = append(e.toolErrors, ToolErrorDetail{
			Tool:      tc.Name,
			Category:  tc.ErrorCategory,
			Message:   tc.ErrorMessage,
			Timestamp: now,
		})
	}

	// A Task tool result means the subagent finished.
	if task, tracked := e.tasks[toolUseID]; tracked && task.IsSubagent && task.Status != TaskCompleted {
		task.Status = TaskCompleted
		task.UpdatedAt = now
	}

	kind := TimelineToolResult
	desc := tc.Name + " completed"
	if isError {
		kind = TimelineError
		desc = tc.Name + " failed"
		if message != "" {
			desc += ": " + message
		}
	}
	e.pushTimeline(kind, desc, noise, now)

	if e.bus != nil {
		e.bus.ToolAnalytics.Publish(e.toolAnalyticsCopy())
	}
}

func (e *Engine) toolAnalyticsCopy() map[string]ToolAnalytics {
	out := make(map[string]ToolAnalytics, len(e.tools))
	for name, ta := range e.tools {
		out[name] = *ta
	}
	return out
}

// classifyToolError buckets an error message into the fixed taxonomy.
func classifyToolError(message string) string {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "permission") || strings.Contains(m, "denied") || strings.Contains(m, "eacces"):
		return ErrPermission
	case strings.Contains(m, "no such file") || strings.Contains(m, "not found") || strings.Contains(m, "enoent") || strings.Contains(m, "does not exist"):
		return ErrNotFound
	case strings.Contains(m, "timed out") || strings.Contains(m, "timeout"):
		return ErrTimeout
	case strings.Contains(m, "syntax"):
		return ErrSyntax
	case strings.Contains(m, "exit code") || strings.Contains(m, "exit status"):
		return ErrExitCode
	case m != "":
		return ErrToolError
	default:
		return ErrOther
	}
}

// toolInputFields is the subset of tool inputs the timeline cares about.
type toolInputFields struct {
	FilePath     string `json:"file_path"`
	NotebookPath string `json:"notebook_path"`
	Command      string `json:"command"`
	Pattern      string `json:"pattern"`
	Query        string `json:"query"`
	URL          string `json:"url"`
	Description  string `json:"description"`
	Prompt       string `json:"prompt"`
}

// describeToolCall builds a short, tool-aware description. File tools show
// the basename, shell tools the command, search tools the pattern, web
// tools the host.
func describeToolCall(name string, input json.RawMessage) string {
	var in toolInputFields
	if len(input) > 0 {
		_ = json.Unmarshal(input, &in)
	}

	switch name {
	case "Read", "Write", "Edit", "MultiEdit":
		if in.FilePath != "" {
			return name + " " + filepath.Base(in.FilePath)
		}
	case "NotebookEdit":
		if in.NotebookPath != "" {
			return name + " " + filepath.Base(in.NotebookPath)
		}
	case "Bash", "BashOutput":
		if in.Command != "" {
			return name + ": " + truncate(in.Command, 50)
		}
	case "Grep", "Glob":
		if in.Pattern != "" {
			return name + " " + truncate(in.Pattern, 50)
		}
	case "WebFetch":
		if host := hostOf(in.URL); host != "" {
			return name + " " + host
		}
	case "WebSearch":
		if in.Query != "" {
			return name + " " + truncate(in.Query, 50)
		}
	case "Task":
		if in.Description != "" {
			return name + ": " + truncate(in.Description, 50)
		}
		if in.Prompt != "" {
			return name + ": " + truncate(in.Prompt, 50)
		}
	}
	return name
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// resultText extracts the human-readable portion of a tool_result content
// payload, which may be a plain string or a block list.
func resultText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if json.Unmarshal(content, &s) == nil {
			return s
		}
		return ""
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(content, &blocks) != nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
