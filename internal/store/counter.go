package store

import (
	"fmt"
	"sort"
)

// Counter is a persistent label -> count mapping.
type Counter struct {
	file *JSONFile[map[string]int]
}

// NewCounter creates a counter backed by path.
func NewCounter(path string) *Counter {
	return &Counter{
		file: NewJSONFile(path, func() map[string]int { return map[string]int{} }),
	}
}

// Record increments label, creating it at 1.
func (c *Counter) Record(label string) error {
	if label == "" {
		return fmt.Errorf("empty label")
	}
	return c.file.Update(func(counts *map[string]int) error {
		if *counts == nil {
			*counts = map[string]int{}
		}
		(*counts)[label]++
		return nil
	})
}

// Counts returns a copy of the mapping.
func (c *Counter) Counts() (map[string]int, error) {
	return c.file.Load()
}

// LabelStat is one row of Stats.
type LabelStat struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Stats summarises a counter. Most and Least are nil when nothing was counted.
type Stats struct {
	Total   int         `json:"total"`
	Entries []LabelStat `json:"entries"`
	Most    *LabelStat  `json:"most,omitempty"`
	Least   *LabelStat  `json:"least,omitempty"`
}

// Stats computes the total and per-label percentages. Entries are sorted by
// count descending; ties go to the alphabetically first label.
func (c *Counter) Stats() (*Stats, error) {
	counts, err := c.Counts()
	if err != nil {
		return nil, err
	}
	return ComputeStats(counts), nil
}

// ComputeStats derives Stats from a raw mapping.
func ComputeStats(counts map[string]int) *Stats {
	stats := &Stats{}
	for _, n := range counts {
		stats.Total += n
	}

	for label, n := range counts {
		pct := 0.0
		if stats.Total > 0 {
			pct = float64(n) / float64(stats.Total) * 100
		}
		stats.Entries = append(stats.Entries, LabelStat{Label: label, Count: n, Percentage: pct})
	}
	sort.Slice(stats.Entries, func(i, j int) bool {
		a, b := stats.Entries[i], stats.Entries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Label < b.Label
	})

	if len(stats.Entries) == 0 {
		return stats
	}

	most := stats.Entries[0]
	least := stats.Entries[0]
	for _, e := range stats.Entries[1:] {
		if e.Count < least.Count {
			least = e
		}
	}
	stats.Most = &most
	stats.Least = &least
	return stats
}

// Get returns the row for label, or a zero row.
func (s *Stats) Get(label string) LabelStat {
	for _, e := range s.Entries {
		if e.Label == label {
			return e
		}
	}
	return LabelStat{Label: label}
}
