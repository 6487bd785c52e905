// Package rotation computes which member of a schedule's rotation list is
// on duty at a given instant. The calculation is a pure function of the
// schedule definition and the clock: elapsed time since the schedule's
// creation, divided into rotation intervals, modulo the member count.
package rotation

import (
	"fmt"
	"time"

	"github.com/tpark252/rotationpress/internal/domain"
	"github.com/tpark252/rotationpress/internal/duration"
)

const dayMillis = 86_400_000

var frequencyMillis = map[domain.Frequency]int64{
	domain.FrequencyDaily:  dayMillis,
	domain.FrequencyWeekly: 7 * dayMillis,
	// Fixed 30-day month, not calendar-aware.
	domain.FrequencyMonthly: 30 * dayMillis,
}

// CurrentIndex returns the index into sched.Members that is on duty at now.
// The result is always in [0, len(Members)), even for instants before the
// schedule's creation. Returns 0 for empty members; callers must treat an
// empty rotation as "nobody on call", not as an error.
func CurrentIndex(sched domain.Schedule, now time.Time) (int, error) {
	if len(sched.Members) == 0 {
		return 0, nil
	}

	intervalMs, err := intervalMillis(sched)
	if err != nil {
		return 0, err
	}

	start, err := rotationStartToday(sched, now)
	if err != nil {
		return 0, err
	}

	elapsedMs := now.Sub(sched.CreatedAt).Milliseconds()

	// A rotation configured to flip at, say, 09:00 local time must not
	// advance at midnight. Before today's boundary we are still inside
	// yesterday's rotation. This is a day-boundary adjustment only; DST
	// shifts inside the elapsed interval are not compensated.
	if now.Before(start) {
		elapsedMs -= dayMillis
	}

	rotations := floorDiv(elapsedMs, intervalMs)

	n := int64(len(sched.Members))
	idx := ((rotations % n) + n) % n
	return int(idx), nil
}

func intervalMillis(sched domain.Schedule) (int64, error) {
	if sched.Frequency == domain.FrequencyCustom {
		d, err := duration.Parse(sched.CustomInterval)
		if err != nil {
			return 0, fmt.Errorf("custom interval: %w", err)
		}
		return d.Millis, nil
	}

	ms, ok := frequencyMillis[sched.Frequency]
	if !ok {
		return 0, fmt.Errorf("unknown frequency %q", sched.Frequency)
	}
	return ms, nil
}

// rotationStartToday returns today's rotation boundary: the current date in
// the schedule's local calendar at RotationStart, truncated to the minute.
func rotationStartToday(sched domain.Schedule, now time.Time) (time.Time, error) {
	tz := sched.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("load tz %s: %w", tz, err)
	}

	hour, minute, err := parseClock(sched.RotationStart)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc), nil
}

// parseClock parses the "HH:MM" rotation start time. Empty means midnight.
func parseClock(s string) (int, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("rotation start %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// floorDiv divides rounding toward negative infinity so that elapsed
// values before the rotation epoch still map to a well-defined rotation
// count.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
