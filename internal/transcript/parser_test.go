package transcript

import (
	"testing"
)

const sampleLines = `{"type":"user","timestamp":"2026-01-30T10:00:00.000Z","message":{"role":"user","content":"hello"}}
{"type":"assistant","timestamp":"2026-01-30T10:00:01.000Z","message":{"model":"claude-opus-4","role":"assistant","content":[{"type":"text","text":"hi"}],"usage":{"input_tokens":100,"output_tokens":50}}}
{"type":"user","timestamp":"2026-01-30T10:00:02.000Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"done"}]}}
`

func collectEvents(t *testing.T) (*LineParser, *[]Event, *int) {
	t.Helper()
	var events []Event
	errors := 0
	p := NewLineParser(
		func(ev Event) { events = append(events, ev) },
		func(error, string) { errors++ },
	)
	// The parser stores into the captured slice; return pointers so the
	// caller sees appends.
	return p, &events, &errors
}

func TestProcessChunkWholeContent(t *testing.T) {
	p, events, _ := collectEvents(t)
	p.ProcessChunk([]byte(sampleLines))

	if len(*events) != 3 {
		t.Fatalf("decoded %d events, want 3", len(*events))
	}
	if (*events)[0].Type != TypeUser || (*events)[1].Type != TypeAssistant {
		t.Errorf("unexpected event types: %s, %s", (*events)[0].Type, (*events)[1].Type)
	}
}

func TestChunkingInvariance(t *testing.T) {
	// Whole-content parse is the reference.
	ref, refEvents, _ := collectEvents(t)
	ref.ProcessChunk([]byte(sampleLines))

	for _, chunkSize := range []int{1, 3, 7, 16, 64, 1024} {
		p, events, _ := collectEvents(t)
		data := []byte(sampleLines)
		for i := 0; i < len(data); i += chunkSize {
			end := i + chunkSize
			if end > len(data) {
				end = len(data)
			}
			p.ProcessChunk(data[i:end])
		}
		p.Flush()

		if len(*events) != len(*refEvents) {
			t.Fatalf("chunk size %d: decoded %d events, want %d", chunkSize, len(*events), len(*refEvents))
		}
		for i := range *events {
			if (*events)[i].Type != (*refEvents)[i].Type || (*events)[i].Timestamp != (*refEvents)[i].Timestamp {
				t.Errorf("chunk size %d: event %d differs from whole-content parse", chunkSize, i)
			}
		}
	}
}

func TestMalformedLineSkipped(t *testing.T) {
	p, events, errors := collectEvents(t)
	content := `{"type":"user","timestamp":"t1"}
{"type":"assistant","broken
{"type":"user","timestamp":"t2"}
`
	p.ProcessChunk([]byte(content))

	if len(*events) != 2 {
		t.Fatalf("decoded %d events, want 2", len(*events))
	}
	if *errors != 1 {
		t.Errorf("error callback fired %d times, want 1", *errors)
	}
}

func TestNonObjectLineRejectedWithoutError(t *testing.T) {
	p, events, errors := collectEvents(t)
	content := "garbage prefix\n[1,2,3]\n{\"type\":\"user\"}\n"
	p.ProcessChunk([]byte(content))

	if len(*events) != 1 {
		t.Fatalf("decoded %d events, want 1", len(*events))
	}
	// Non-object lines don't reach the JSON decoder, so no error report.
	if *errors != 0 {
		t.Errorf("error callback fired %d times, want 0", *errors)
	}
}

func TestPartialLineHeldUntilComplete(t *testing.T) {
	p, events, _ := collectEvents(t)
	p.ProcessChunk([]byte(`{"type":"user","time`))

	if len(*events) != 0 {
		t.Fatalf("partial line decoded prematurely: %d events", len(*events))
	}
	if p.Buffered() == 0 {
		t.Error("expected bytes buffered for incomplete line")
	}

	p.ProcessChunk([]byte("stamp\":\"t1\"}\n"))
	if len(*events) != 1 {
		t.Fatalf("decoded %d events after completing line, want 1", len(*events))
	}
	if (*events)[0].Timestamp != "t1" {
		t.Errorf("reassembled event timestamp = %q, want t1", (*events)[0].Timestamp)
	}
}

func TestResetDropsBuffer(t *testing.T) {
	p, events, _ := collectEvents(t)
	p.ProcessChunk([]byte(`{"type":"user"`))
	p.Reset()
	p.ProcessChunk([]byte(",\"timestamp\":\"t1\"}\n"))

	// After reset the fragment is gone; the remaining bytes are not a
	// valid object start and must be rejected.
	if len(*events) != 0 {
		t.Errorf("decoded %d events after reset, want 0", len(*events))
	}
}

func TestFlushDecodesFinalFragment(t *testing.T) {
	p, events, _ := collectEvents(t)
	p.ProcessChunk([]byte(`{"type":"summary"}`)) // no trailing newline
	if len(*events) != 0 {
		t.Fatal("fragment decoded before flush")
	}
	p.Flush()
	if len(*events) != 1 || (*events)[0].Type != TypeSummary {
		t.Fatalf("flush produced %d events, want 1 summary", len(*events))
	}
}
