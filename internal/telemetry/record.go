package telemetry

import "time"

// DefaultHistorySize is the default capacity of the recent-record ring.
const DefaultHistorySize = 10000

// Record is one fully parsed data line. It is immutable once created:
// the engine builds it, hands it to the schema, writer and statistics,
// then appends it to the history ring.
type Record struct {
	Timestamp time.Time
	Raw       string
	Fields    []Field
}

// History is a bounded FIFO ring of recently completed records, kept
// for introspection (status reporting, post-mortems). When full, the
// oldest record is evicted; order is never shuffled.
//
// History is not safe for concurrent use; it is owned by the engine.
type History struct {
	records []Record
	head    int
	full    bool
}

// NewHistory creates a ring holding up to capacity records.
// A capacity <= 0 uses DefaultHistorySize.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{records: make([]Record, 0, capacity)}
}

// Append adds a record, evicting the oldest if the ring is full.
func (h *History) Append(r Record) {
	if !h.full {
		h.records = append(h.records, r)
		h.full = len(h.records) == cap(h.records)
		return
	}
	h.records[h.head] = r
	h.head = (h.head + 1) % len(h.records)
}

// Len returns the number of retained records.
func (h *History) Len() int {
	return len(h.records)
}

// Last returns the most recently appended record, if any.
func (h *History) Last() (Record, bool) {
	if len(h.records) == 0 {
		return Record{}, false
	}
	idx := len(h.records) - 1
	if h.full {
		idx = (h.head + len(h.records) - 1) % len(h.records)
	}
	return h.records[idx], true
}

// Snapshot returns the retained records oldest-first.
func (h *History) Snapshot() []Record {
	out := make([]Record, 0, len(h.records))
	if !h.full {
		return append(out, h.records...)
	}
	out = append(out, h.records[h.head:]...)
	return append(out, h.records[:h.head]...)
}
