// Package countdown derives live remaining-time displays for milestone
// deadlines. Nothing here is persisted; callers re-evaluate on a tick.
package countdown

import (
	"fmt"
	"time"
)

// Remaining is a days/hours/minutes/seconds breakdown of the time left
// until a target. Overdue is the terminal state: once the target has passed
// the breakdown stays zeroed instead of going negative.
type Remaining struct {
	Days    int  `json:"days"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Seconds int  `json:"seconds"`
	Overdue bool `json:"overdue"`
}

func (r Remaining) Duration() time.Duration {
	return time.Duration(r.Days)*24*time.Hour +
		time.Duration(r.Hours)*time.Hour +
		time.Duration(r.Minutes)*time.Minute +
		time.Duration(r.Seconds)*time.Second
}

func (r Remaining) String() string {
	if r.Overdue {
		return "overdue"
	}
	return fmt.Sprintf("%dd %02dh %02dm %02ds", r.Days, r.Hours, r.Minutes, r.Seconds)
}

// Until computes the breakdown for a fixed target timestamp.
func Until(target, now time.Time) Remaining {
	d := target.Sub(now)
	if d <= 0 {
		return Remaining{Overdue: true}
	}
	d = d.Round(time.Second)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	return Remaining{
		Days:    days,
		Hours:   hours,
		Minutes: minutes,
		Seconds: int(d / time.Second),
	}
}

// NextDailyDeadline resolves a wall-clock time of day ("15:04") to its next
// occurrence: today if the time has not passed yet, otherwise the same time
// tomorrow. This re-anchors every day without new input, unlike a fixed
// target.
func NextDailyDeadline(timeOfDay string, now time.Time) (time.Time, error) {
	tod, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline time %q: %w", timeOfDay, err)
	}
	target := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour(), tod.Minute(), 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target, nil
}

// Urgency buckets remaining time for color-coding.
type Urgency string

const (
	Overdue  Urgency = "overdue"
	Urgent   Urgency = "urgent"
	Soon     Urgency = "soon"
	Upcoming Urgency = "upcoming"
	Relaxed  Urgency = "relaxed"
)

// Thresholds are presentation policy, supplied from configuration.
type Thresholds struct {
	Urgent   time.Duration
	Soon     time.Duration
	Upcoming time.Duration
}

// DefaultThresholds mirror the classic 4h / 24h / 3d bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Urgent:   4 * time.Hour,
		Soon:     24 * time.Hour,
		Upcoming: 72 * time.Hour,
	}
}

// Classify maps a breakdown onto an urgency band.
func Classify(r Remaining, t Thresholds) Urgency {
	if r.Overdue {
		return Overdue
	}
	d := r.Duration()
	switch {
	case d < t.Urgent:
		return Urgent
	case d < t.Soon:
		return Soon
	case d < t.Upcoming:
		return Upcoming
	default:
		return Relaxed
	}
}

// Ticker re-derives a countdown on a fixed interval and delivers it on C
// until the stop function is called. The tick interval is one second, the
// refresh rate of the display it feeds.
type Ticker struct {
	C    <-chan Remaining
	stop func()
}

func NewTicker(target time.Time, now func() time.Time) *Ticker {
	if now == nil {
		now = time.Now
	}
	out := make(chan Remaining, 1)
	done := make(chan struct{})
	tk := time.NewTicker(time.Second)
	go func() {
		defer close(out)
		defer tk.Stop()
		for {
			select {
			case <-done:
				return
			case <-tk.C:
				select {
				case out <- Until(target, now()):
				default:
				}
			}
		}
	}()
	var stopped bool
	return &Ticker{
		C: out,
		stop: func() {
			if !stopped {
				stopped = true
				close(done)
			}
		},
	}
}

func (t *Ticker) Stop() { t.stop() }
