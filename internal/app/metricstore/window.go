package metricstore

import (
	"fmt"
	"sort"
	"time"

	"github.com/trackfit/trackfit/internal/domain/metric"
)

// Window is a trailing period used to filter entries for charting.
type Window string

const (
	Window7d  Window = "7d"
	Window30d Window = "30d"
	Window90d Window = "90d"

	DefaultWindow = Window30d
)

func ParseWindow(s string) (Window, error) {
	if s == "" {
		return DefaultWindow, nil
	}
	switch Window(s) {
	case Window7d, Window30d, Window90d:
		return Window(s), nil
	}
	return "", fmt.Errorf("invalid window %q", s)
}

func (w Window) Days() int {
	switch w {
	case Window7d:
		return 7
	case Window90d:
		return 90
	default:
		return 30
	}
}

// FilterWindow returns the entries whose date falls within the
// trailing window ending today, sorted ascending by date for
// time-series rendering. The comparison is whole-day: the window
// start is today minus N calendar days, so the included set does not
// shift with the time of day the chart is drawn.
func FilterWindow(entries []metric.Entry, w Window, now time.Time) []metric.Entry {
	today := now.Format(metric.DateLayout)
	start := now.AddDate(0, 0, -w.Days()).Format(metric.DateLayout)

	out := make([]metric.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Date >= start && e.Date <= today {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date < out[j].Date
	})
	return out
}

// Variations computes, for entries in display order, each row's
// signed difference against the immediately preceding row. The first
// row has no prior value in view and gets nil. Display-only, derived
// per render.
func Variations(entries []metric.Entry) []*float64 {
	deltas := make([]*float64, len(entries))
	for i := 1; i < len(entries); i++ {
		d := entries[i].Value - entries[i-1].Value
		deltas[i] = &d
	}
	return deltas
}
