package stats

import (
	"fmt"
	"testing"
)

func toolUse(ts, id, name, inputJSON string) string {
	return fmt.Sprintf(`{"type":"assistant","timestamp":%q,"message":{"content":[{"type":"tool_use","id":%q,"name":%q,"input":%s}]}}`,
		ts, id, name, inputJSON)
}

func toolResult(ts, id string, isError bool, content string) string {
	return fmt.Sprintf(`{"type":"user","timestamp":%q,"message":{"content":[{"type":"tool_result","tool_use_id":%q,"is_error":%t,"content":%q}]}}`,
		ts, id, isError, content)
}

func TestToolCallCorrelation(t *testing.T) {
	e := NewEngine(Options{}, nil)
	e.HandleEvent(event(t, toolUse("2026-01-30T10:00:00Z", "toolu_1", "Bash", `{"command":"go test ./..."}`)))
	e.HandleEvent(event(t, toolResult("2026-01-30T10:00:03Z", "toolu_1", false, "ok")))

	snap := e.Snapshot()
	if len(snap.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(snap.ToolCalls))
	}
	tc := snap.ToolCalls[0]
	if !tc.Completed || tc.IsError {
		t.Errorf("tool call not finalized cleanly: %+v", tc)
	}
	if tc.DurationMs != 3000 {
		t.Errorf("DurationMs = %d, want 3000", tc.DurationMs)
	}

	ta := snap.Tools["Bash"]
	if ta.Calls != 1 || ta.Succeeded != 1 || ta.Failed != 0 || ta.Pending != 0 {
		t.Errorf("analytics = %+v", ta)
	}
	if ta.TotalDurationMs != 3000 {
		t.Errorf("TotalDurationMs = %d, want 3000", ta.TotalDurationMs)
	}
}

func TestToolCallFailure(t *testing.T) {
	e := NewEngine(Options{}, nil)
	e.HandleEvent(event(t, toolUse("2026-01-30T10:00:00Z", "toolu_1", "Read", `{"file_path":"/etc/shadow"}`)))
	e.HandleEvent(event(t, toolResult("2026-01-30T10:00:01Z", "toolu_1", true, "EACCES: permission denied")))

	snap := e.Snapshot()
	tc := snap.ToolCalls[0]
	if !tc.IsError {
		t.Error("IsError not set")
	}
	if tc.ErrorCategory != ErrPermission {
		t.Errorf("ErrorCategory = %q, want %q", tc.ErrorCategory, ErrPermission)
	}
	if snap.Tools["Read"].Failed != 1 {
		t.Errorf("Failed = %d, want 1", snap.Tools["Read"].Failed)
	}
	if len(snap.ToolErrors) != 1 || snap.ToolErrors[0].Tool != "Read" {
		t.Errorf("ToolErrors = %+v", snap.ToolErrors)
	}
	// The failure shows on the timeline as an error entry.
	if snap.Timeline[0].Kind != TimelineError {
		t.Errorf("timeline head kind = %q, want error", snap.Timeline[0].Kind)
	}
}

func TestUnmatchedResultIgnored(t *testing.T) {
	e := NewEngine(Options{}, nil)
	e.HandleEvent(event(t, toolResult("2026-01-30T10:00:00Z", "toolu_ghost", false, "ok")))

	snap := e.Snapshot()
	if len(snap.ToolCalls) != 0 {
		t.Errorf("unmatched result created %d tool calls", len(snap.ToolCalls))
	}
	if len(snap.Tools) != 0 {
		t.Errorf("unmatched result mutated analytics: %+v", snap.Tools)
	}
	// Still visible as a generic timeline entry.
	if len(snap.Timeline) != 1 || snap.Timeline[0].Kind != TimelineToolResult {
		t.Errorf("timeline = %+v, want one generic tool_result entry", snap.Timeline)
	}
}

func TestDuplicateResultIdempotent(t *testing.T) {
	e := NewEngine(Options{}, nil)
	e.HandleEvent(event(t, toolUse("2026-01-30T10:00:00Z", "toolu_1", "Grep", `{"pattern":"TODO"}`)))
	e.HandleEvent(event(t, toolResult("2026-01-30T10:00:01Z", "toolu_1", false, "3 matches")))
	e.HandleEvent(event(t, toolResult("2026-01-30T10:00:02Z", "toolu_1", true, "late duplicate")))

	snap := e.Snapshot()
	tc := snap.ToolCalls[0]
	if tc.IsError {
		t.Error("duplicate result overwrote the finalized call")
	}
	ta := snap.Tools["Grep"]
	if ta.Completed != 1 || ta.Succeeded != 1 || ta.Failed != 0 {
		t.Errorf("analytics after duplicate result = %+v", ta)
	}
}

func TestPendingNeverFinalized(t *testing.T) {
	e := NewEngine(Options{}, nil)
	e.HandleEvent(event(t, toolUse("2026-01-30T10:00:00Z", "toolu_1", "Bash", `{"command":"sleep 999"}`)))

	snap := e.Snapshot()
	ta := snap.Tools["Bash"]
	if ta.Pending != 1 || ta.Completed != 0 {
		t.Errorf("analytics = %+v, want one pending call", ta)
	}
	if snap.ToolCalls[0].Completed {
		t.Error("call marked completed without a result")
	}
}

func TestClassifyToolError(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"permission denied", ErrPermission},
		{"EACCES: cannot open", ErrPermission},
		{"no such file or directory", ErrNotFound},
		{"command timed out after 120s", ErrTimeout},
		{"syntax error near unexpected token", ErrSyntax},
		{"exit status 1", ErrExitCode},
		{"something else went wrong", ErrToolError},
		{"", ErrOther},
	}
	for _, tt := range tests {
		if got := classifyToolError(tt.message); got != tt.want {
			t.Errorf("classifyToolError(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestDescribeToolCall(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Read", `{"file_path":"/home/user/project/main.go"}`, "Read main.go"},
		{"Bash", `{"command":"ls -la"}`, "Bash: ls -la"},
		{"Grep", `{"pattern":"func main"}`, "Grep func main"},
		{"WebFetch", `{"url":"https://pkg.go.dev/path"}`, "WebFetch pkg.go.dev"},
		{"Task", `{"description":"explore the codebase"}`, "Task: explore the codebase"},
		{"Mystery", `{}`, "Mystery"},
	}
	for _, tt := range tests {
		if got := describeToolCall(tt.name, []byte(tt.input)); got != tt.want {
			t.Errorf("describeToolCall(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLegacyFlatToolEvents(t *testing.T) {
	e := NewEngine(Options{}, nil)
	e.HandleEvent(event(t, `{"type":"tool_use","uuid":"u1","timestamp":"2026-01-30T10:00:00Z","tool":{"name":"Bash","input":{"command":"make"}}}`))
	e.HandleEvent(event(t, `{"type":"tool_result","timestamp":"2026-01-30T10:00:02Z","result":{"tool_use_id":"u1","is_error":false}}`))

	snap := e.Snapshot()
	if len(snap.ToolCalls) != 1 || !snap.ToolCalls[0].Completed {
		t.Fatalf("legacy tool events not correlated: %+v", snap.ToolCalls)
	}
	if snap.ToolCalls[0].DurationMs != 2000 {
		t.Errorf("DurationMs = %d, want 2000", snap.ToolCalls[0].DurationMs)
	}
}
