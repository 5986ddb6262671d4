package tracker

import (
	"strconv"
	"strings"
)

// FormatDuration renders minutes in the tracker's compact duration
// encoding: "{h}h {m}m", omitting either part when zero, with "1m" as
// the floor so a worklog is never posted with an empty duration.
func FormatDuration(minutes int) string {
	if minutes <= 0 {
		return "1m"
	}
	h := minutes / 60
	m := minutes % 60

	var parts []string
	if h > 0 {
		parts = append(parts, strconv.Itoa(h)+"h")
	}
	if m > 0 {
		parts = append(parts, strconv.Itoa(m)+"m")
	}
	if len(parts) == 0 {
		return "1m"
	}
	return strings.Join(parts, " ")
}

// ParseDuration parses the tracker's compact duration encoding back to
// minutes: "<n>d" contributes n*480, "<n>h" contributes n*60, "<n>m"
// contributes n. The result is never less than 1.
func ParseDuration(text string) int {
	total := 0
	var num strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			num.WriteRune(r)
		case r == 'd' || r == 'h' || r == 'm':
			n, _ := strconv.Atoi(num.String())
			num.Reset()
			switch r {
			case 'd':
				total += n * 480
			case 'h':
				total += n * 60
			case 'm':
				total += n
			}
		default:
			num.Reset()
		}
	}
	if total < 1 {
		return 1
	}
	return total
}
