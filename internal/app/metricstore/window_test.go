package metricstore_test

import (
	"math"
	"testing"

	"github.com/trackfit/trackfit/internal/app/metricstore"
	"github.com/trackfit/trackfit/internal/domain/metric"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		raw     string
		want    metricstore.Window
		wantErr bool
	}{
		{"7d", metricstore.Window7d, false},
		{"30d", metricstore.Window30d, false},
		{"90d", metricstore.Window90d, false},
		{"", metricstore.DefaultWindow, false},
		{"365d", "", true},
		{"week", "", true},
	}
	for _, tc := range tests {
		got, err := metricstore.ParseWindow(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseWindow(%q): expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseWindow(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseWindow(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestFilterWindow(t *testing.T) {
	entries := []metric.Entry{
		{ID: 1, Date: day(0), Value: 80},
		{ID: 2, Date: day(-6), Value: 79.5},
		{ID: 3, Date: day(-10), Value: 79},
		{ID: 4, Date: day(-40), Value: 78},
	}

	tests := []struct {
		window  metricstore.Window
		wantIDs []int64
	}{
		{metricstore.Window7d, []int64{2, 1}},
		{metricstore.Window30d, []int64{3, 2, 1}},
		{metricstore.Window90d, []int64{4, 3, 2, 1}},
	}
	for _, tc := range tests {
		t.Run(string(tc.window), func(t *testing.T) {
			got := metricstore.FilterWindow(entries, tc.window, noon)
			if len(got) != len(tc.wantIDs) {
				t.Fatalf("got %d entries, want %d: %+v", len(got), len(tc.wantIDs), got)
			}
			for i, id := range tc.wantIDs {
				if got[i].ID != id {
					t.Fatalf("entry %d: got id %d, want %d (result must be date-ascending)", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestFilterWindow_DropsFutureEntries(t *testing.T) {
	entries := []metric.Entry{
		{ID: 1, Date: day(0)},
		{ID: 2, Date: day(2)},
	}
	got := metricstore.FilterWindow(entries, metricstore.Window7d, noon)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("entries after today must be excluded, got %+v", got)
	}
}

func TestVariations(t *testing.T) {
	entries := []metric.Entry{
		{ID: 1, Date: day(0), Value: 10.0},
		{ID: 2, Date: day(-1), Value: 9.5},
		{ID: 3, Date: day(-2), Value: 9.5},
		{ID: 4, Date: day(-3), Value: 10.2},
	}

	got := metricstore.Variations(entries)
	if len(got) != 4 {
		t.Fatalf("got %d variations, want 4", len(got))
	}
	if got[0] != nil {
		t.Fatalf("first row has nothing to compare against, got %v", *got[0])
	}
	want := []float64{-0.5, 0.0, 0.7}
	for i, w := range want {
		v := got[i+1]
		if v == nil {
			t.Fatalf("variation %d: got nil, want %v", i+1, w)
		}
		if math.Abs(*v-w) > 1e-9 {
			t.Fatalf("variation %d: got %v, want %v", i+1, *v, w)
		}
	}
}

func TestVariations_Empty(t *testing.T) {
	if got := metricstore.Variations(nil); len(got) != 0 {
		t.Fatalf("expected no variations, got %v", got)
	}
}
