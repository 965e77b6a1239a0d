package handlers

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "0h 0m 0s"},
		{"seconds only", 42 * time.Second, "0h 0m 42s"},
		{"hours and minutes", 3*time.Hour + 25*time.Minute, "3h 25m 0s"},
		{"with days", 49*time.Hour + 61*time.Second, "2d 1h 1m 1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatDuration(tt.d); got != tt.want {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}
