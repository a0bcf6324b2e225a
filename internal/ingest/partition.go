package ingest

import (
	"fmt"
	"strings"
)

// Partitions groups accepted lines by partition key.
type Partitions struct {
	Keys    []string             // first-appearance order
	Lines   map[string][]RawLine // source order within each key
	Total   int                  // lines accepted
	Dropped int                  // lines with fewer than MinFields fields
}

// Len returns the number of partitions.
func (p *Partitions) Len() int { return len(p.Keys) }

// LineSource is the sequence consumed by Partition. *LineReader satisfies it.
type LineSource interface {
	Next() bool
	Line() RawLine
	Err() error
}

// Partition consumes src and groups its lines by partition key.
//
// In lenient mode lines with fewer than MinFields fields are counted in
// Dropped and otherwise ignored. In strict mode the first such line aborts
// with an error matching ErrMalformedLine.
func Partition(src LineSource, strict bool) (*Partitions, error) {
	p := &Partitions{Lines: make(map[string][]RawLine)}

	for src.Next() {
		line := src.Line()
		fields := SplitFields(line.Text)
		if len(fields) < MinFields {
			if strict {
				return nil, fmt.Errorf("%w: line %d has %d fields, want at least %d",
					ErrMalformedLine, line.Number, len(fields), MinFields)
			}
			p.Dropped++
			continue
		}

		key := CleanField(fields[fieldPartitionKey])
		if _, ok := p.Lines[key]; !ok {
			p.Keys = append(p.Keys, key)
		}
		p.Lines[key] = append(p.Lines[key], line)
		p.Total++
	}

	if err := src.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// SplitFields splits a line on FieldDelimiter. Trailing empty fields are
// discarded, so "A|B|C|" and "A|B|C" both yield three fields.
func SplitFields(text string) []string {
	fields := strings.Split(text, FieldDelimiter)
	n := len(fields)
	for n > 0 && fields[n-1] == "" {
		n--
	}
	return fields[:n]
}

// CleanField trims whitespace and enclosing quote characters.
func CleanField(s string) string {
	return strings.Trim(strings.TrimSpace(s), QuoteChar)
}
