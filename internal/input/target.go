package input

import (
	"fmt"
	"strconv"
	"strings"
)

// Target is a parsed go-to destination.
type Target struct {
	Time      float64
	IsMeasure bool
	// Measure is zero based.
	Measure int
}

// ParseTarget accepts "83.5", "1:23.5" or "m12" (measure 12 as displayed,
// counting from 1).
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Target{}, fmt.Errorf("empty target")
	}
	if strings.HasPrefix(s, "m") {
		n, err := strconv.Atoi(strings.TrimSpace(s[1:]))
		if err != nil || n < 1 {
			return Target{}, fmt.Errorf("bad measure %q", s)
		}
		return Target{IsMeasure: true, Measure: n - 1}, nil
	}
	var minutes float64
	if i := strings.IndexByte(s, ':'); i >= 0 {
		m, err := strconv.Atoi(s[:i])
		if err != nil || m < 0 {
			return Target{}, fmt.Errorf("bad minutes in %q", s)
		}
		minutes = float64(m)
		s = s[i+1:]
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil || sec < 0 {
		return Target{}, fmt.Errorf("bad time %q", s)
	}
	return Target{Time: minutes*60 + sec}, nil
}

// FormatTime renders seconds as m:ss.s.
func FormatTime(t float64) string {
	if t < 0 {
		t = 0
	}
	m := int(t) / 60
	return fmt.Sprintf("%d:%04.1f", m, t-float64(m*60))
}
