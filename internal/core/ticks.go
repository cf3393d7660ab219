package core

import "time"

// Ticks are 100-nanosecond units counted from 0001-01-01 00:00:00 UTC.
const (
	TicksPerSecond      = int64(10_000_000)
	TicksPerMillisecond = TicksPerSecond / 1000

	// ticksAtUnixEpoch is 1970-01-01 in ticks.
	ticksAtUnixEpoch = int64(621_355_968_000_000_000)

	// MaxTicks is the last instant of year 9999.
	MaxTicks = int64(3_155_378_975_999_999_999)
)

// TicksFromTime converts t to ticks. Timestamps outside years 0001-9999
// are rejected with ErrBadTimestamp; corrupt capture records produce them.
func TicksFromTime(t time.Time) (int64, error) {
	ticks := ticksAtUnixEpoch + t.Unix()*TicksPerSecond + int64(t.Nanosecond())/100
	if t.Unix() < -ticksAtUnixEpoch/TicksPerSecond || ticks < 0 || ticks > MaxTicks {
		return 0, ErrBadTimestamp
	}
	return ticks, nil
}

// TimeFromTicks converts ticks back to a UTC time.
func TimeFromTicks(ticks int64) time.Time {
	rel := ticks - ticksAtUnixEpoch
	sec := rel / TicksPerSecond
	rem := rel % TicksPerSecond
	if rem < 0 {
		sec--
		rem += TicksPerSecond
	}
	return time.Unix(sec, rem*100).UTC()
}

// DurationFromTicks converts a tick delta to a time.Duration.
func DurationFromTicks(delta int64) time.Duration {
	return time.Duration(delta * 100)
}
