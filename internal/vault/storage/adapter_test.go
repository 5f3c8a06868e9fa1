package storage

import (
	"testing"
	"time"
)

func TestNormalizeLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{in: 0, want: DefaultListLimit},
		{in: -5, want: DefaultListLimit},
		{in: 1, want: 1},
		{in: 100, want: 100},
	}
	for _, tt := range tests {
		if got := NormalizeLimit(tt.in); got != tt.want {
			t.Errorf("NormalizeLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNextStamp(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		previous time.Time
		want     time.Time
	}{
		{name: "first write", now: base.Add(1500 * time.Microsecond), want: base.Add(time.Millisecond)},
		{name: "clock moved forward", now: base.Add(time.Second), previous: base, want: base.Add(time.Second)},
		{name: "clock went backwards", now: base.Add(-time.Minute), previous: base, want: base},
		{name: "same millisecond", now: base, previous: base, want: base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextStamp(tt.now, tt.previous)
			if !got.Equal(tt.want) {
				t.Errorf("NextStamp() = %v, want %v", got, tt.want)
			}
		})
	}
}
