package columns

import (
	"io"
	"strings"
	"text/tabwriter"
)

// TableSink renders rows as an aligned text table. Multi-valued cells
// (endpoints, eventpoll targets) are flattened onto one line.
type TableSink struct {
	w      *tabwriter.Writer
	header bool
}

var _ Sink = (*TableSink)(nil)

func NewTableSink(out io.Writer) *TableSink {
	return &TableSink{w: tabwriter.NewWriter(out, 0, 8, 1, ' ', 0)}
}

func (s *TableSink) Row(cols []ColumnID, get Getter) error {
	if !s.header {
		s.header = true
		names := make([]string, len(cols))
		for i, id := range cols {
			names[i] = id.String()
		}
		if _, err := io.WriteString(s.w, strings.Join(names, "\t")+"\n"); err != nil {
			return err
		}
	}

	cells := make([]string, len(cols))
	for i, id := range cols {
		v, ok := get(id)
		if !ok || v == "" {
			v = "-"
		}
		cells[i] = strings.ReplaceAll(v, "\n", ",")
	}
	_, err := io.WriteString(s.w, strings.Join(cells, "\t")+"\n")
	return err
}

func (s *TableSink) Flush() error {
	return s.w.Flush()
}
