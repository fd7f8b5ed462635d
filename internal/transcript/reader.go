package transcript

import (
	"io"
	"os"
)

const readChunkSize = 64 * 1024

// Reader maintains a byte cursor over one session file and decodes exactly
// the bytes appended since the last read. A file that shrank below the
// cursor is treated as truncated: the cursor and line buffer reset and the
// whole file is replayed on that same read.
type Reader struct {
	path      string
	offset    int64
	parser    *LineParser
	pending   []Event
	truncated bool
}

// NewReader creates a reader positioned at the start of path. onParseError
// (optional) receives malformed-line reports.
func NewReader(path string, onParseError func(err error, line string)) *Reader {
	r := &Reader{path: path}
	r.parser = NewLineParser(func(ev Event) {
		r.pending = append(r.pending, ev)
	}, onParseError)
	return r
}

func (r *Reader) Path() string { return r.path }

// Offset returns the current byte cursor.
func (r *Reader) Offset() int64 { return r.offset }

// Exists reports whether the session file is still present on disk.
func (r *Reader) Exists() bool {
	_, err := os.Stat(r.path)
	return err == nil
}

// WasTruncated reports whether the most recent ReadNew detected a shrink.
// The caller uses this to reset derivable aggregate state before consuming
// the replayed events.
func (r *Reader) WasTruncated() bool { return r.truncated }

// ReadNew returns the events decoded from bytes appended since the last
// call. A partial trailing line is buffered, not returned, so callers never
// see an event split across writes.
func (r *Reader) ReadNew() ([]Event, error) {
	r.truncated = false

	f, err := os.Open(r.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	if info.Size() < r.offset {
		// The file shrank under us: rotation or rewrite. Everything we
		// knew about it is stale.
		r.offset = 0
		r.parser.Reset()
		r.truncated = true
	}

	if info.Size() == r.offset {
		return nil, nil
	}

	if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
		return nil, err
	}

	buf := make([]byte, readChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			r.parser.ProcessChunk(buf[:n])
			r.offset += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			events := r.take()
			return events, err
		}
	}

	return r.take(), nil
}

func (r *Reader) take() []Event {
	events := r.pending
	r.pending = nil
	return events
}
