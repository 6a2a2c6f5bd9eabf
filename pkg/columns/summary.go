package columns

// Counter pairs a display name with a row predicate. The predicate is
// usually backed by the external filter-expression evaluator, but any
// RowFilter works.
type Counter struct {
	Name   string
	Filter RowFilter
}

// Summary accumulates per-counter totals over all emitted rows.
type Summary struct {
	counters []Counter
	values   []uint64
}

func NewSummary(counters []Counter) *Summary {
	return &Summary{
		counters: counters,
		values:   make([]uint64, len(counters)),
	}
}

// Observe re-evaluates every counter predicate against one row.
func (s *Summary) Observe(get Getter) {
	for i := range s.counters {
		if s.counters[i].Filter != nil && s.counters[i].Filter.Matches(get) {
			s.values[i]++
		}
	}
}

// Values returns (name, count) pairs in registration order.
func (s *Summary) Values() []struct {
	Name  string
	Count uint64
} {
	out := make([]struct {
		Name  string
		Count uint64
	}, len(s.counters))
	for i := range s.counters {
		out[i].Name = s.counters[i].Name
		out[i].Count = s.values[i]
	}
	return out
}

// FilterFunc adapts a plain function to RowFilter.
type FilterFunc func(get Getter) bool

func (f FilterFunc) Matches(get Getter) bool { return f(get) }

// DefaultCounters mirrors the stock summary: one row per process is
// recognized by its cwd association.
func DefaultCounters() []Counter {
	return []Counter{
		{Name: "processes", Filter: FilterFunc(func(get Getter) bool {
			v, ok := get(ColAssoc)
			return ok && v == "cwd"
		})},
		{Name: "root owned processes", Filter: FilterFunc(func(get Getter) bool {
			a, ok := get(ColAssoc)
			if !ok || a != "cwd" {
				return false
			}
			u, ok := get(ColUID)
			return ok && u == "0"
		})},
		{Name: "kernel threads", Filter: FilterFunc(func(get Getter) bool {
			a, ok := get(ColAssoc)
			if !ok || a != "cwd" {
				return false
			}
			k, ok := get(ColKThread)
			return ok && k == "1"
		})},
		{Name: "open files", Filter: FilterFunc(func(get Getter) bool {
			_, ok := get(ColFD)
			return ok
		})},
		{Name: "shared mappings", Filter: FilterFunc(func(get Getter) bool {
			v, ok := get(ColAssoc)
			return ok && v == "shm"
		})},
	}
}
