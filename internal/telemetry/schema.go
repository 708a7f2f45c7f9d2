package telemetry

// TimestampColumn is the fixed first column of every record file.
const TimestampColumn = "timestamp"

// Schema tracks the ordered set of CSV columns for the record file.
//
// The column sequence starts with "timestamp" and grows monotonically as
// new parameter codes are observed, preserving first-seen order. Columns
// are never removed or reordered, so rows written under an older schema
// remain aligned with the columns they were written against.
//
// Schema is not safe for concurrent use; it is owned by the single
// engine loop.
type Schema struct {
	columns []string
	seen    map[string]struct{}
}

// NewSchema returns a schema pre-seeded with the timestamp column.
func NewSchema() *Schema {
	return &Schema{
		columns: []string{TimestampColumn},
		seen:    map[string]struct{}{TimestampColumn: {}},
	}
}

// Observe registers any unseen parameter codes from the field list,
// appending them to the column sequence in first-seen order.
// It reports whether the schema grew.
func (s *Schema) Observe(fields []Field) bool {
	grew := false
	for _, f := range fields {
		if _, ok := s.seen[f.Code]; ok {
			continue
		}
		s.seen[f.Code] = struct{}{}
		s.columns = append(s.columns, f.Code)
		grew = true
	}
	return grew
}

// Columns returns a copy of the current column sequence.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Len returns the number of known columns, including timestamp.
func (s *Schema) Len() int {
	return len(s.columns)
}
