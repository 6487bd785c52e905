// Package duration parses the compact duration tokens used by override
// requests and custom rotation intervals: "30m", "8h", "3d", "2w".
package duration

import (
	"errors"
	"fmt"
)

// ErrInvalidDuration is returned for tokens that do not match ^\d+[mhdw]$,
// have a zero value, or exceed maxValue.
var ErrInvalidDuration = errors.New("invalid duration token")

// maxValue bounds the numeric part of a token. Anything larger is garbage
// input, and the bound keeps the millisecond conversion inside int64.
const maxValue = 1<<31 - 1

type Unit string

const (
	UnitMinute Unit = "m"
	UnitHour   Unit = "h"
	UnitDay    Unit = "d"
	UnitWeek   Unit = "w"
)

var unitMillis = map[Unit]int64{
	UnitMinute: 60_000,
	UnitHour:   3_600_000,
	UnitDay:    86_400_000,
	UnitWeek:   604_800_000,
}

// Duration is a parsed token: the original value and unit plus the
// equivalent millisecond count.
type Duration struct {
	Value  int
	Unit   Unit
	Millis int64
}

// Parse parses a compact duration token. It is pure and has no side effects.
func Parse(token string) (Duration, error) {
	if len(token) < 2 {
		return Duration{}, fmt.Errorf("%w: %q", ErrInvalidDuration, token)
	}

	unit := Unit(token[len(token)-1])
	millis, ok := unitMillis[unit]
	if !ok {
		return Duration{}, fmt.Errorf("%w: %q: unknown unit", ErrInvalidDuration, token)
	}

	digits := token[:len(token)-1]
	value := 0
	for _, c := range digits {
		if c < '0' || c > '9' {
			return Duration{}, fmt.Errorf("%w: %q", ErrInvalidDuration, token)
		}
		if value > (maxValue-int(c-'0'))/10 {
			return Duration{}, fmt.Errorf("%w: %q: value out of range", ErrInvalidDuration, token)
		}
		value = value*10 + int(c-'0')
	}
	if value < 1 {
		return Duration{}, fmt.Errorf("%w: %q: value must be positive", ErrInvalidDuration, token)
	}

	return Duration{
		Value:  value,
		Unit:   unit,
		Millis: int64(value) * millis,
	}, nil
}
