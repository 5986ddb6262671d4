package tracker

import "testing"

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "1m"},
		{1, "1m"},
		{45, "45m"},
		{60, "1h"},
		{61, "1h 1m"},
		{125, "2h 5m"},
		{-5, "1m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.minutes); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		want int
	}{
		{"1m", 1},
		{"45m", 45},
		{"1h", 60},
		{"1h 1m", 61},
		{"2h 5m", 125},
		{"1d", 480},
		{"1d 2h", 600},
		{"", 1},
		{"0m", 1},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.text); got != tt.want {
			t.Errorf("ParseDuration(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestDurationRoundTrip(t *testing.T) {
	t.Parallel()
	for _, minutes := range []int{1, 30, 60, 90, 125, 480, 500} {
		formatted := FormatDuration(minutes)
		if got := ParseDuration(formatted); got != minutes {
			t.Errorf("ParseDuration(FormatDuration(%d)) = %d, want %d (formatted %q)", minutes, got, minutes, formatted)
		}
	}
}
