package transcript

import "hash/fnv"

// Deduplicator filters events already seen, so that a re-read of an
// overlapping byte range does not double count. Identity is a content hash
// over the event type, timestamp, and embedded message/request identifiers.
// The set is insertion ordered and bounded: at capacity the oldest quarter
// is pruned, which keeps memory flat on long sessions while covering any
// single re-read window.
type Deduplicator struct {
	capacity int
	seen     map[uint64]struct{}
	order    []uint64
}

func NewDeduplicator(capacity int) *Deduplicator {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Deduplicator{
		capacity: capacity,
		seen:     make(map[uint64]struct{}, capacity),
	}
}

// IsDuplicate reports whether ev was seen before, recording it if not.
func (d *Deduplicator) IsDuplicate(ev Event) bool {
	key := eventKey(ev)
	if _, ok := d.seen[key]; ok {
		return true
	}

	if len(d.order) >= d.capacity {
		d.prune()
	}
	d.seen[key] = struct{}{}
	d.order = append(d.order, key)
	return false
}

// Reset forgets everything. Used after truncation, when the rewritten file
// legitimately replays byte-identical lines.
func (d *Deduplicator) Reset() {
	d.seen = make(map[uint64]struct{}, d.capacity)
	d.order = nil
}

// Len reports the number of remembered entries.
func (d *Deduplicator) Len() int { return len(d.order) }

func (d *Deduplicator) prune() {
	n := d.capacity / 4
	if n < 1 {
		n = 1
	}
	if n > len(d.order) {
		n = len(d.order)
	}
	for _, key := range d.order[:n] {
		delete(d.seen, key)
	}
	d.order = append([]uint64(nil), d.order[n:]...)
}

func eventKey(ev Event) uint64 {
	h := fnv.New64a()
	h.Write([]byte(ev.Type))
	h.Write([]byte{0})
	h.Write([]byte(ev.Timestamp))
	h.Write([]byte{0})
	h.Write([]byte(ev.UUID))
	h.Write([]byte{0})
	h.Write([]byte(ev.RequestID))
	if ev.Message != nil {
		h.Write([]byte{0})
		h.Write(ev.Message.Content)
	}
	return h.Sum64()
}
