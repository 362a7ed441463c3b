package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// computeNextRun resolves a schedule expression to the next firing time
// strictly after from. Supported forms:
//
//	"every 8h" / "every 30m" / "every 1d"
//	"daily 09:00" / "daily 09:00,21:00"
func computeNextRun(schedule string, from time.Time) (time.Time, error) {
	schedule = strings.TrimSpace(strings.ToLower(schedule))

	if interval, ok := strings.CutPrefix(schedule, "every "); ok {
		return nextInterval(strings.TrimSpace(interval), from)
	}

	if times, ok := strings.CutPrefix(schedule, "daily "); ok {
		return nextDaily(strings.TrimSpace(times), from)
	}

	return time.Time{}, fmt.Errorf("unsupported schedule %q (use 'every Xm/Xh/Xd' or 'daily HH:MM[,HH:MM]')", schedule)
}

func nextInterval(interval string, from time.Time) (time.Time, error) {
	if len(interval) < 2 {
		return time.Time{}, fmt.Errorf("invalid interval %q", interval)
	}

	unit := interval[len(interval)-1]
	num, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || num <= 0 {
		return time.Time{}, fmt.Errorf("invalid interval number in %q", interval)
	}

	switch unit {
	case 'm':
		return from.Add(time.Duration(num) * time.Minute), nil
	case 'h':
		return from.Add(time.Duration(num) * time.Hour), nil
	case 'd':
		return from.Add(time.Duration(num) * 24 * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unknown interval unit %q (use m, h, or d)", string(unit))
	}
}

func nextDaily(timesSpec string, from time.Time) (time.Time, error) {
	var candidates []time.Time

	for _, spec := range strings.Split(timesSpec, ",") {
		spec = strings.TrimSpace(spec)
		parsed, err := time.Parse("15:04", spec)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time %q (use HH:MM)", spec)
		}

		today := time.Date(from.Year(), from.Month(), from.Day(),
			parsed.Hour(), parsed.Minute(), 0, 0, from.Location())
		if today.After(from) {
			candidates = append(candidates, today)
		} else {
			candidates = append(candidates, today.Add(24*time.Hour))
		}
	}

	if len(candidates) == 0 {
		return time.Time{}, fmt.Errorf("no times in daily schedule")
	}

	next := candidates[0]
	for _, c := range candidates[1:] {
		if c.Before(next) {
			next = c
		}
	}
	return next, nil
}
