package slots

import (
	"sort"
	"time"
)

// DefaultTimes is used when an account defines no posting times.
var DefaultTimes = []string{"08:00", "14:00", "19:00"}

// Schedule is a list of local "HH:MM" times in an IANA timezone.
type Schedule struct {
	Times    []string
	Timezone string
}

// DueSlots returns today's slots, in the schedule's own timezone, for which
// now lies in [slot, slot+window). Slots are returned earliest first.
//
// Only today's slots are considered: a slot missed by more than window is
// never returned again. Malformed times are ignored. The only error is an
// unknown timezone.
func DueSlots(now time.Time, s Schedule, window time.Duration) ([]time.Time, error) {
	loc, err := LoadZone(s.Timezone)
	if err != nil {
		return nil, err
	}

	times := s.Times
	if len(times) == 0 {
		times = DefaultTimes
	}

	today := CivilDateIn(now, loc)
	seen := make(map[int64]struct{}, len(times))
	var due []time.Time
	for _, tod := range times {
		slot, ok := ResolveLocalTime(today, tod, loc)
		if !ok {
			continue
		}
		if !IsDue(now, slot, window) {
			continue
		}
		if _, dup := seen[slot.Unix()]; dup {
			continue
		}
		seen[slot.Unix()] = struct{}{}
		due = append(due, slot)
	}

	sort.Slice(due, func(i, j int) bool { return due[i].Before(due[j]) })
	return due, nil
}

// IsDue reports whether now falls inside [slot, slot+window).
func IsDue(now, slot time.Time, window time.Duration) bool {
	return !now.Before(slot) && now.Before(slot.Add(window))
}
