package gate

import (
	"errors"
	"sync"
	"time"
)

const (
	dateLayout       = "2006-01-02"
	usageRetention   = 30
	maxHeartbeatSpan = 5 * time.Minute
)

// ErrNegativeLimit is returned when a daily limit below zero is set.
var ErrNegativeLimit = errors.New("daily minutes cannot be negative")

type limitDocument struct {
	DailyMinutes int `json:"daily_minutes"`
}

// Usage reports the time budget for one day.
type Usage struct {
	Date             string  `json:"date"`
	UsedMinutes      float64 `json:"used_minutes"`
	DailyMinutes     int     `json:"daily_minutes"`
	RemainingMinutes float64 `json:"remaining_minutes"`
	Limited          bool    `json:"limited"`
	Exhausted        bool    `json:"exhausted"`
}

// TimeLimiter tracks daily usage against a configured budget.
// A budget of zero means unlimited.
type TimeLimiter struct {
	usage        map[string]float64
	limitPath    string
	usagePath    string
	dailyMinutes int
	mu           sync.Mutex
}

// NewTimeLimiter loads the budget and usage counters from disk.
func NewTimeLimiter(limitPath, usagePath string) (*TimeLimiter, error) {
	var limit limitDocument

	err := loadJSON(limitPath, &limit)
	if err != nil {
		return nil, err
	}

	usage := make(map[string]float64)

	err = loadJSON(usagePath, &usage)
	if err != nil {
		return nil, err
	}

	if usage == nil {
		usage = make(map[string]float64)
	}

	return &TimeLimiter{
		usage:        usage,
		limitPath:    limitPath,
		usagePath:    usagePath,
		dailyMinutes: max(limit.DailyMinutes, 0),
	}, nil
}

// DailyMinutes returns the configured budget.
func (l *TimeLimiter) DailyMinutes() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.dailyMinutes
}

// SetDailyMinutes replaces and persists the budget.
func (l *TimeLimiter) SetDailyMinutes(minutes int) error {
	if minutes < 0 {
		return ErrNegativeLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := saveJSON(l.limitPath, limitDocument{DailyMinutes: minutes})
	if err != nil {
		return err
	}

	l.dailyMinutes = minutes

	return nil
}

// RecordUsage adds elapsed to the counter of now's date. Spans are clamped to
// [0, 5m] per call.
func (l *TimeLimiter) RecordUsage(now time.Time, elapsed time.Duration) (Usage, error) {
	elapsed = min(max(elapsed, 0), maxHeartbeatSpan)

	l.mu.Lock()
	defer l.mu.Unlock()

	date := now.Format(dateLayout)
	l.usage[date] += elapsed.Minutes()
	l.pruneLocked(now)

	err := saveJSON(l.usagePath, l.usage)
	if err != nil {
		return Usage{}, err
	}

	return l.usageLocked(now), nil
}

// Status returns the budget for now's date.
func (l *TimeLimiter) Status(now time.Time) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.usageLocked(now)
}

// Exhausted reports whether a limited budget has been used up.
func (l *TimeLimiter) Exhausted(now time.Time) bool {
	return l.Status(now).Exhausted
}

func (l *TimeLimiter) usageLocked(now time.Time) Usage {
	date := now.Format(dateLayout)
	used := l.usage[date]

	usage := Usage{
		Date:         date,
		UsedMinutes:  used,
		DailyMinutes: l.dailyMinutes,
		Limited:      l.dailyMinutes > 0,
	}

	if usage.Limited {
		usage.RemainingMinutes = max(float64(l.dailyMinutes)-used, 0)
		usage.Exhausted = usage.RemainingMinutes == 0
	}

	return usage
}

func (l *TimeLimiter) pruneLocked(now time.Time) {
	cutoff := now.AddDate(0, 0, -usageRetention).Format(dateLayout)

	for date := range l.usage {
		if date < cutoff {
			delete(l.usage, date)
		}
	}
}
