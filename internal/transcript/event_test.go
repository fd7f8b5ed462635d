package transcript

import (
	"encoding/json"
	"testing"
)

func decodeEvent(t *testing.T, line string) Event {
	t.Helper()
	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestBlocksFromString(t *testing.T) {
	ev := decodeEvent(t, `{"type":"user","message":{"role":"user","content":"plain text"}}`)
	blocks := ev.Blocks()
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	tb, ok := blocks[0].(TextBlock)
	if !ok || tb.Text != "plain text" {
		t.Errorf("got %#v, want TextBlock(plain text)", blocks[0])
	}
}

func TestBlocksTaggedVariants(t *testing.T) {
	ev := decodeEvent(t, `{"type":"assistant","message":{"content":[
		{"type":"thinking","thinking":"hmm"},
		{"type":"text","text":"answer"},
		{"type":"tool_use","id":"toolu_1","name":"Read","input":{"file_path":"/tmp/a.go"}},
		{"type":"mystery","foo":1}
	]}}`)

	blocks := ev.Blocks()
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3 (unknown tag dropped)", len(blocks))
	}
	if _, ok := blocks[0].(ThinkingBlock); !ok {
		t.Errorf("block 0 = %#v, want ThinkingBlock", blocks[0])
	}
	tu, ok := blocks[2].(ToolUseBlock)
	if !ok {
		t.Fatalf("block 2 = %#v, want ToolUseBlock", blocks[2])
	}
	if tu.ID != "toolu_1" || tu.Name != "Read" {
		t.Errorf("ToolUseBlock = %+v", tu)
	}
}

func TestBlocksToolResult(t *testing.T) {
	ev := decodeEvent(t, `{"type":"user","message":{"content":[
		{"type":"tool_result","tool_use_id":"toolu_1","is_error":true,"content":"permission denied"}
	]}}`)

	blocks := ev.Blocks()
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	tr, ok := blocks[0].(ToolResultBlock)
	if !ok {
		t.Fatalf("block = %#v, want ToolResultBlock", blocks[0])
	}
	if tr.ToolUseID != "toolu_1" || !tr.IsError {
		t.Errorf("ToolResultBlock = %+v", tr)
	}
}

func TestVisibleText(t *testing.T) {
	ev := decodeEvent(t, `{"type":"assistant","message":{"content":[
		{"type":"thinking","thinking":"internal"},
		{"type":"text","text":"hello"},
		{"type":"text","text":"world"}
	]}}`)
	if got := ev.VisibleText(); got != "hello\nworld" {
		t.Errorf("VisibleText() = %q", got)
	}

	empty := decodeEvent(t, `{"type":"user"}`)
	if got := empty.VisibleText(); got != "" {
		t.Errorf("VisibleText() on empty event = %q", got)
	}
}

func TestUsageOnlyFromAssistant(t *testing.T) {
	user := decodeEvent(t, `{"type":"user","message":{"usage":{"input_tokens":10}}}`)
	if user.Usage() != nil {
		t.Error("user event reported usage")
	}

	assistant := decodeEvent(t, `{"type":"assistant","message":{"usage":{"input_tokens":10,"output_tokens":5,"cache_creation_input_tokens":20,"cache_read_input_tokens":100}}}`)
	u := assistant.Usage()
	if u == nil {
		t.Fatal("assistant event reported no usage")
	}
	if u.ContextSize() != 130 {
		t.Errorf("ContextSize() = %d, want 130", u.ContextSize())
	}
}

func TestEventTime(t *testing.T) {
	ev := Event{Timestamp: "2026-01-30T10:00:00.500Z"}
	ts, ok := ev.Time()
	if !ok {
		t.Fatal("Time() failed on valid timestamp")
	}
	if ts.UTC().Hour() != 10 {
		t.Errorf("parsed hour = %d, want 10", ts.UTC().Hour())
	}

	if _, ok := (&Event{Timestamp: "not a time"}).Time(); ok {
		t.Error("Time() ok on invalid timestamp")
	}
	if _, ok := (&Event{}).Time(); ok {
		t.Error("Time() ok on missing timestamp")
	}
}
