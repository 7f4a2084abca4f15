package service

import "time"

const (
	msPerDay    = 86_400_000
	msPerHour   = 3_600_000
	msPerMinute = 60_000
	msPerSecond = 1_000
)

// CountdownResult is the time left until a drop opens.
type CountdownResult struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
	IsLive  bool  `json:"is_live"`
}

// Countdown breaks start-now into days, hours, minutes and seconds. Every
// unit is floored so the display never overshoots. Once now reaches start
// all fields are zero and IsLive is set.
func Countdown(start, now time.Time) CountdownResult {
	if !now.Before(start) {
		return CountdownResult{IsLive: true}
	}
	ms := start.Sub(now).Milliseconds()
	return CountdownResult{
		Days:    ms / msPerDay,
		Hours:   ms % msPerDay / msPerHour,
		Minutes: ms % msPerHour / msPerMinute,
		Seconds: ms % msPerMinute / msPerSecond,
	}
}
