package scheduling

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidDuration = errors.New("invalid appointment duration")

// ParseAppointmentDuration parses the duration strings doctors configure,
// e.g. "15min", "30min", "1hour", "1.5hour". Plain Go durations ("45m") are
// accepted too. The result is always a positive whole number of minutes.
func ParseAppointmentDuration(s string) (time.Duration, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return 0, ErrInvalidDuration
	}

	var unit time.Duration
	var num string
	switch {
	case strings.HasSuffix(raw, "min"):
		unit = time.Minute
		num = strings.TrimSuffix(raw, "min")
	case strings.HasSuffix(raw, "hour"):
		unit = time.Hour
		num = strings.TrimSuffix(raw, "hour")
	default:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		return validateDuration(s, d)
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return validateDuration(s, time.Duration(n*float64(unit)))
}

func validateDuration(s string, d time.Duration) (time.Duration, error) {
	if d <= 0 || d%time.Minute != 0 || d > 24*time.Hour {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return d, nil
}

// GenerateSlots splits an open-hour window into consecutive fixed-duration
// candidate slots. A slot is emitted only if it fits entirely inside the
// window; a trailing remainder shorter than the duration is dropped. The
// function is pure and returns slots in ascending start order.
func GenerateSlots(window TimeWindow, duration time.Duration) ([]CandidateSlot, error) {
	if duration <= 0 || duration%time.Minute != 0 {
		return nil, ErrInvalidDuration
	}
	if window.Start >= window.End {
		return nil, nil
	}

	step := TimeOfDay(duration / time.Minute)
	var slots []CandidateSlot
	for start := window.Start; start+step <= window.End; start += step {
		slots = append(slots, CandidateSlot{Start: start, End: start + step})
	}
	return slots, nil
}

// overlaps reports true interval overlap of [aStart, aEnd) and [bStart, bEnd),
// not mere containment.
func overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && aEnd > bStart
}
