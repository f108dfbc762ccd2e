package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/RyanBlaney/magictales/emotion"
	"github.com/RyanBlaney/magictales/internal/store"
	"github.com/xuri/excelize/v2"
)

const SheetName = "Analytics"

// Dashboard is the admin landing summary.
type Dashboard struct {
	TotalUsers    int               `json:"total_users"`
	TotalEmotions int               `json:"total_emotions"`
	Most          *store.LabelStat  `json:"most,omitempty"`
	Least         *store.LabelStat  `json:"least,omitempty"`
	Emotions      []store.LabelStat `json:"emotions"`
}

// Row joins the emotion and story counters for one label.
type Row struct {
	Label           string  `json:"label"`
	Display         string  `json:"display"`
	Detected        int     `json:"detected"`
	DetectedPercent float64 `json:"detected_percent"`
	Stories         int     `json:"stories"`
	StoriesPercent  float64 `json:"stories_percent"`
}

// Visualization is the chart data for the admin visualization page.
type Visualization struct {
	Labels        []string `json:"labels"`
	Emotions      []int    `json:"emotions"`
	Stories       []int    `json:"stories"`
	TotalEmotions int      `json:"total_emotions"`
	TotalStories  int      `json:"total_stories"`
	Rows          []Row    `json:"rows"`
}

// Reporter reads the stores for the admin pages.
type Reporter struct {
	users    *store.Users
	emotions *store.Counter
	stories  *store.Counter
}

// New creates a Reporter over the given stores.
func New(users *store.Users, emotions, stories *store.Counter) *Reporter {
	return &Reporter{users: users, emotions: emotions, stories: stories}
}

// Dashboard computes the totals and per-label stats. Every known label is
// listed, including those never detected.
func (r *Reporter) Dashboard() (*Dashboard, error) {
	users, err := r.users.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	stats, err := r.emotions.Stats()
	if err != nil {
		return nil, fmt.Errorf("failed to read emotion analytics: %w", err)
	}

	d := &Dashboard{
		TotalUsers:    users,
		TotalEmotions: stats.Total,
		Most:          stats.Most,
		Least:         stats.Least,
	}
	for _, label := range labels(stats) {
		d.Emotions = append(d.Emotions, stats.Get(label))
	}
	return d, nil
}

// Visualization merges the emotion and story counters.
func (r *Reporter) Visualization() (*Visualization, error) {
	emotions, err := r.emotions.Stats()
	if err != nil {
		return nil, fmt.Errorf("failed to read emotion analytics: %w", err)
	}
	stories, err := r.stories.Stats()
	if err != nil {
		return nil, fmt.Errorf("failed to read story analytics: %w", err)
	}

	v := &Visualization{
		TotalEmotions: emotions.Total,
		TotalStories:  stories.Total,
	}
	for _, label := range labels(emotions, stories) {
		e, s := emotions.Get(label), stories.Get(label)
		v.Labels = append(v.Labels, label)
		v.Emotions = append(v.Emotions, e.Count)
		v.Stories = append(v.Stories, s.Count)
		v.Rows = append(v.Rows, Row{
			Label:           label,
			Display:         emotion.Label(label).Display(),
			Detected:        e.Count,
			DetectedPercent: e.Percentage,
			Stories:         s.Count,
			StoriesPercent:  s.Percentage,
		})
	}
	return v, nil
}

// labels returns the known labels in order, then any other counted label sorted.
func labels(stats ...*store.Stats) []string {
	seen := make(map[string]bool, emotion.NumLabels)
	out := make([]string, 0, emotion.NumLabels)
	for _, l := range emotion.Labels {
		seen[string(l)] = true
		out = append(out, string(l))
	}

	var extra []string
	for _, s := range stats {
		for _, e := range s.Entries {
			if !seen[e.Label] {
				seen[e.Label] = true
				extra = append(extra, e.Label)
			}
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// WriteXLSX writes v as a single-sheet workbook, one row per label.
func WriteXLSX(w io.Writer, v *Visualization) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
	})
	if err != nil {
		return err
	}
	percent, err := f.NewStyle(&excelize.Style{NumFmt: 10})
	if err != nil {
		return err
	}

	_ = f.SetColWidth(SheetName, "A", "A", 14)
	_ = f.SetColWidth(SheetName, "B", "E", 12)

	if err := f.SetSheetRow(SheetName, "A1", &[]any{"Emotion", "Detected", "Detected %", "Stories", "Stories %"}); err != nil {
		return err
	}
	_ = f.SetCellStyle(SheetName, "A1", "E1", header)

	for i, row := range v.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []any{row.Display, row.Detected, row.DetectedPercent / 100, row.Stories, row.StoriesPercent / 100}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %s: %w", row.Label, err)
		}
	}

	last := len(v.Rows) + 1
	totals, _ := excelize.CoordinatesToCellName(1, last+1)
	if err := f.SetSheetRow(SheetName, totals, &[]any{"Total", v.TotalEmotions, nil, v.TotalStories}); err != nil {
		return err
	}
	_ = f.SetCellStyle(SheetName, totals, totals, header)

	if last > 1 {
		_ = f.SetCellStyle(SheetName, "C2", fmt.Sprintf("C%d", last), percent)
		_ = f.SetCellStyle(SheetName, "E2", fmt.Sprintf("E%d", last), percent)
	}

	return f.Write(w)
}
