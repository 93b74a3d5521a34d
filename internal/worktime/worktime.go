// Package worktime holds the hour/minute arithmetic shared by the
// aggregation and upload stages.
package worktime

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const isoPrefix = "PT"

// durationPattern covers the subset of ISO-8601 durations the time-tracking
// API emits for whole-minute entries: optional hours, optional minutes.
var durationPattern = regexp.MustCompile(`^PT(?:([0-9]{1,2})H)?(?:([0-9]{1,2})M)?`)

// Span is a worked amount of time. Minutes are kept below 60 at rest; any
// overflow is carried into hours when spans are combined.
type Span struct {
	Hours   int `yaml:"h" json:"h"`
	Minutes int `yaml:"m" json:"m"`
}

// Parse reads an ISO-8601-like duration token such as "PT1H30M". The second
// return value reports whether the token was usable; an unusable token is a
// data-quality signal for the caller, not an error.
func Parse(s string) (Span, bool) {
	if !strings.HasPrefix(s, isoPrefix) {
		return Span{}, false
	}

	match := durationPattern.FindStringSubmatch(s)
	if match == nil {
		return Span{}, false
	}

	return Span{Hours: atoiOrZero(match[1]), Minutes: atoiOrZero(match[2])}, true
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Add combines two spans, carrying minute overflow into hours.
func (s Span) Add(other Span) Span {
	minutes := s.Minutes + other.Minutes
	return Span{
		Hours:   s.Hours + other.Hours + minutes/60,
		Minutes: minutes % 60,
	}
}

// InHours returns the span as a fractional hour count.
func (s Span) InHours() float64 {
	return float64(s.Hours) + float64(s.Minutes)/60.0
}

// Presentation renders the span the way the tracker's duration field
// expects it, e.g. "1h 30m".
func (s Span) Presentation() string {
	return fmt.Sprintf("%dh %dm", s.Hours, s.Minutes)
}

// SplitSeconds converts a second count into whole hours and minutes,
// wrapping around full days and truncating fractions toward zero.
func SplitSeconds(seconds float64) (hours, minutes int) {
	seconds = math.Mod(seconds, 24*3600)
	hours = int(seconds / 3600)
	seconds = math.Mod(seconds, 3600)
	minutes = int(seconds / 60)
	return hours, minutes
}
