package util

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{-time.Second, "-"},
		{750 * time.Microsecond, "750µs"},
		{1500*time.Millisecond + 400*time.Microsecond, "1.5s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(1, 0); got != "-" {
		t.Errorf("FormatPercent(1, 0) = %q, want -", got)
	}
	if got := FormatPercent(1, 8); got != "12.5%" {
		t.Errorf("FormatPercent(1, 8) = %q, want 12.5%%", got)
	}
}
