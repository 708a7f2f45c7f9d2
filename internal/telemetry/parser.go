package telemetry

import "strings"

// Field is a single parameter code / value pair parsed from a data line.
// The value is kept as text: classification decides later whether it is
// numeric, a sentinel, or garbage.
type Field struct {
	Code  string
	Value string
}

// ParseLine parses one Trisonica data line into an ordered field list.
//
// Two tokenisation modes are supported, chosen per line:
//
//   - Comma-delimited ("S 03.2,D 180,T 21.5"): each non-empty segment is
//     split on its first space into code and value. Segments without a
//     space are malformed and silently dropped.
//   - Whitespace-delimited ("S 03.2 D 180 T 21.5"): tokens are paired
//     positionally; a trailing unpaired token is dropped.
//
// Field order is the order of first appearance in the line. A code that
// repeats within one line keeps its original position but takes the last
// value seen. Parsing never fails: a blank or fully malformed line
// yields an empty result, which callers must treat as "no data".
func ParseLine(line string) []Field {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if strings.Contains(line, ",") {
		return parseCommaDelimited(line)
	}
	return parseWhitespaceDelimited(line)
}

// parseCommaDelimited handles the "code value,code value" form.
func parseCommaDelimited(line string) []Field {
	var fields []Field
	index := make(map[string]int)

	for _, segment := range strings.Split(line, ",") {
		segment = strings.TrimSpace(segment)
		if !strings.Contains(segment, " ") {
			continue // malformed token, not an error
		}

		parts := strings.SplitN(segment, " ", 2)
		code := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if code == "" {
			continue
		}

		if i, ok := index[code]; ok {
			fields[i].Value = value // duplicate code: last value wins
			continue
		}
		index[code] = len(fields)
		fields = append(fields, Field{Code: code, Value: value})
	}

	return fields
}

// parseWhitespaceDelimited handles the positional "code value code value"
// form used when the sensor emits space-separated output.
func parseWhitespaceDelimited(line string) []Field {
	tokens := strings.Fields(line)

	var fields []Field
	index := make(map[string]int)

	for i := 0; i+1 < len(tokens); i += 2 {
		code := tokens[i]
		value := tokens[i+1]

		if j, ok := index[code]; ok {
			fields[j].Value = value
			continue
		}
		index[code] = len(fields)
		fields = append(fields, Field{Code: code, Value: value})
	}

	return fields
}

// FieldMap converts a parsed field list into a code → value map.
// Order is lost; use the slice form where column order matters.
func FieldMap(fields []Field) map[string]string {
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f.Code] = f.Value
	}
	return m
}
