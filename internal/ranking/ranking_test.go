package ranking

import (
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestHotness(t *testing.T) {
	tests := []struct {
		name  string
		fmv   float64
		price float64
		views int
		hours float64
		want  int
	}{
		{"floor applies", 1000, 800, 10, 0.1, 4000},
		{"no floor", 1000, 800, 10, 2, 1000},
		{"overpriced", 1000, 1200, 50, 1, 0},
		{"no views", 1000, 500, 0, 1, 0},
		{"rounded", 1000, 900, 1, 3, 33},
	}
	for _, tt := range tests {
		if got := Hotness(tt.fmv, tt.price, tt.views, tt.hours); got != tt.want {
			t.Errorf("%s: Hotness = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRank(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	published := now.Add(-6 * time.Minute)

	got := Scorer{}.Rank(ptr(1000.0), 800, 10, &published, now)
	if got.Hotness != 4000 || !got.Hot {
		t.Errorf("Rank = %+v, want hotness 4000 and hot", got)
	}
	if got.Velocity != 20 {
		t.Errorf("Velocity = %v, want 20", got.Velocity)
	}

	cold := Scorer{Threshold: 5000}.Rank(ptr(1000.0), 800, 10, &published, now)
	if cold.Hot {
		t.Error("hotness 4000 flagged above threshold 5000")
	}

	// No publish time ranks like a fresh listing.
	unknown := Scorer{}.Rank(ptr(1000.0), 800, 10, nil, now)
	if unknown.Velocity != 20 || unknown.Hotness != 4000 {
		t.Errorf("Rank without publish time = %+v, want velocity 20 and hotness 4000", unknown)
	}

	none := Scorer{}.Rank(nil, 800, 10, &published, now)
	if none.Hotness != 0 || none.Hot {
		t.Errorf("Rank without FMV = %+v", none)
	}
}

func TestHoursSince(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if got := HoursSince(nil, now); got != 0 {
		t.Errorf("HoursSince(nil) = %v, want 0", got)
	}
	future := now.Add(time.Hour)
	if got := HoursSince(&future, now); got != 0 {
		t.Errorf("HoursSince(future) = %v, want 0", got)
	}
	past := now.Add(-90 * time.Minute)
	if got := HoursSince(&past, now); got != 1.5 {
		t.Errorf("HoursSince = %v, want 1.5", got)
	}
}
