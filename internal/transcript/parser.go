package transcript

import (
	"bytes"
	"encoding/json"
)

// LineParser turns arbitrary byte chunks into decoded events. Chunks need
// not align with line boundaries: the trailing fragment of each chunk is
// buffered until the rest of the line arrives. A malformed line invokes the
// error callback and parsing continues with the next line.
type LineParser struct {
	buf     []byte
	onEvent func(Event)
	onError func(err error, line string)
}

// NewLineParser creates a parser. onEvent receives each decoded event in
// order; onError (optional) receives decode failures with the offending line.
func NewLineParser(onEvent func(Event), onError func(err error, line string)) *LineParser {
	return &LineParser{onEvent: onEvent, onError: onError}
}

// ProcessChunk appends chunk to the internal buffer and decodes every
// complete line in it. The final fragment (no trailing newline) is retained
// for the next chunk.
func (p *LineParser) ProcessChunk(chunk []byte) {
	p.buf = append(p.buf, chunk...)

	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			return
		}
		line := p.buf[:i]
		p.buf = p.buf[i+1:]
		p.decodeLine(line)
	}
}

// Flush decodes whatever fragment remains buffered. Used at end of stream;
// during normal tailing the fragment is an in-progress write and is left
// alone.
func (p *LineParser) Flush() {
	if len(p.buf) == 0 {
		return
	}
	line := p.buf
	p.buf = nil
	p.decodeLine(line)
}

// Reset discards the buffered fragment. Called on truncation or session
// switch, when buffered bytes no longer belong to the stream being read.
func (p *LineParser) Reset() {
	p.buf = nil
}

// Buffered reports how many bytes are waiting for the rest of their line.
func (p *LineParser) Buffered() int {
	return len(p.buf)
}

func (p *LineParser) decodeLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	// Cheap corruption filter: transcript records are JSON objects, so
	// anything else is rejected without attempting a full decode.
	if line[0] != '{' {
		return
	}

	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		if p.onError != nil {
			p.onError(err, string(line))
		}
		return
	}
	p.onEvent(ev)
}
