package stats

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hypermedia-lab/labclient/resource"
)

const (
	tableColumnWidth  = 12
	tableCaptionWidth = 10
)

// Snapshot is one timestamped set of rows for a query. Columns are the query's stats, in
// query order.
type Snapshot struct {
	Timestamp int64
	query     *Query
	columns   map[string]int
	values    [][]interface{}
}

func newSnapshot(raw *resource.Object, q *Query) (*Snapshot, error) {
	ts, err := raw.IntField("timestamp")
	if err != nil {
		return nil, err
	}
	s := &Snapshot{Timestamp: ts, query: q, columns: make(map[string]int)}
	for i, stat := range q.Stats() {
		s.columns[stat.Definition()] = i
	}
	if !raw.Has("values") {
		return s, nil
	}
	rows, err := raw.ListField("values")
	if err != nil {
		return nil, err
	}
	for i, item := range rows.Items() {
		row, ok := item.(*resource.List)
		if !ok {
			return nil, fmt.Errorf("row %d of snapshot %d is %T, not a list", i, ts, item)
		}
		s.values = append(s.values, row.Items())
	}
	return s, nil
}

func (s *Snapshot) Query() *Query { return s.query }

// Columns returns the stat definitions the rows are indexed by.
func (s *Snapshot) Columns() []string {
	stats := s.query.Stats()
	ret := make([]string, len(stats))
	for i, stat := range stats {
		ret[i] = stat.Definition()
	}
	return ret
}

func (s *Snapshot) Len() int { return len(s.values) }

// Row returns the row at index i, which must be in range.
func (s *Snapshot) Row(i int) Row {
	return Row{index: i, snapshot: s}
}

func (s *Snapshot) Rows() []Row {
	ret := make([]Row, len(s.values))
	for i := range s.values {
		ret[i] = s.Row(i)
	}
	return ret
}

// Summary is a one-line description of the snapshot.
func (s *Snapshot) Summary() string {
	return fmt.Sprintf("Query Id:%s, Group: %s, TS:%d, %d rows", s.query.ID, s.query.GroupName(), s.Timestamp, len(s.values))
}

// Table renders the snapshot as fixed-width text, showing the given columns or, if none are
// given, all of them. Column captions are wrapped over as many header lines as the longest
// one needs; cell values are cut to fit their column. Unknown columns are left blank.
func (s *Snapshot) Table(columns ...string) string {
	if len(columns) == 0 {
		columns = s.Columns()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Query Id:%s, Group: %s\n", s.query.ID, s.query.GroupName())

	captions := make([][]string, len(columns))
	lines := 1
	for i, c := range columns {
		captions[i] = wrapText(c, tableCaptionWidth)
		if len(captions[i]) > lines {
			lines = len(captions[i])
		}
	}
	for line := 0; line < lines; line++ {
		first := ""
		if line == 0 {
			first = "Timestamp"
		}
		fmt.Fprintf(&b, "%*s", tableColumnWidth, first)
		for _, c := range captions {
			text := ""
			if line < len(c) {
				text = c[line]
			}
			fmt.Fprintf(&b, "%*s", tableColumnWidth, text)
		}
		b.WriteByte('\n')
	}
	for _, row := range s.Rows() {
		fmt.Fprintf(&b, "%*d", tableColumnWidth, s.Timestamp)
		for _, c := range columns {
			cell, _ := row.Value(c)
			fmt.Fprintf(&b, "%*s", tableColumnWidth, truncate(resource.ValueText(cell), tableColumnWidth-1))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Row is one row of a Snapshot.
type Row struct {
	index    int
	snapshot *Snapshot
}

func (r Row) Index() int { return r.index }

func (r Row) Timestamp() int64 { return r.snapshot.Timestamp }

// Value returns the cell for a stat definition. It fails if the query has no such stat.
func (r Row) Value(definition string) (interface{}, error) {
	col, ok := r.snapshot.columns[definition]
	if !ok {
		return nil, &resource.FieldNotFoundError{Name: definition}
	}
	cells := r.snapshot.values[r.index]
	if col >= len(cells) {
		return nil, fmt.Errorf("row %d has no value for '%s'", r.index, definition)
	}
	return cells[col], nil
}

// Float64 returns a numeric cell. The server sends some numbers as strings; those are parsed.
func (r Row) Float64(definition string) (float64, error) {
	v, err := r.Value(definition)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, &resource.FieldTypeError{Name: definition, Want: "a number", Value: v}
}

// wrapText breaks s into lines of at most width characters, preferring spaces and the
// punctuation that separates parts of a stat definition. Widths count runes.
func wrapText(s string, width int) []string {
	var lines []string
	for _, field := range strings.Fields(s) {
		word := []rune(field)
		for len(word) > width {
			cut := width
			if i := strings.LastIndexAny(string(word[:width]), "-_./"); i > 0 {
				cut = utf8.RuneCountInString(string(word[:width])[:i]) + 1
			}
			lines = appendWord(lines, string(word[:cut]), width)
			word = word[cut:]
		}
		if len(word) > 0 {
			lines = appendWord(lines, string(word), width)
		}
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

func appendWord(lines []string, word string, width int) []string {
	if n := len(lines); n > 0 && utf8.RuneCountInString(lines[n-1])+1+utf8.RuneCountInString(word) <= width {
		lines[n-1] += " " + word
		return lines
	}
	return append(lines, word)
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
