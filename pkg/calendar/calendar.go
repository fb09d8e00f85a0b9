// Package calendar decides whether the market is open, finds the next
// session open, and derives cache TTLs from market hours. All civil-time
// arithmetic uses a fixed exchange timezone.
package calendar

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// ZoneName is the exchange's civil timezone.
const ZoneName = "Asia/Shanghai"

// Daily session windows as second-of-day ranges, civil time. Both bounds
// inclusive.
const (
	preOpenStart   = 9*3600 + 15*60 // 09:15 pre-open auction
	preOpenEnd     = 9*3600 + 25*60 // 09:25
	morningStart   = 9*3600 + 30*60 // 09:30 morning continuous session
	morningEnd     = 11*3600 + 30*60
	afternoonStart = 13 * 3600 // 13:00 afternoon continuous session
	afternoonEnd   = 15 * 3600
)

// Session open time of day.
const (
	openHour   = 9
	openMinute = 15
)

// Closing-refresh minute: exactly 15:00 forces the long TTL path even
// though it lies inside the afternoon window. Preserved pending product
// confirmation.
const (
	closingRefreshHour   = 15
	closingRefreshMinute = 0
)

const (
	// nextOpenHorizonDays bounds the forward search for the next session.
	nextOpenHorizonDays = 30

	// horizonFallback is returned when the search horizon is exhausted.
	// Escape valve only: no real calendar has 30 consecutive closed days.
	horizonFallback = 12 * time.Hour
)

// Intraday TTL: base plus random jitter in [0, intradayTTLJitter).
const (
	intradayTTLBase   = 5 * time.Second
	intradayTTLJitter = 5 * time.Second
)

// Calendar answers trading-time questions against the fixed civil timezone,
// consulting the holiday oracle for non-weekend dates.
type Calendar struct {
	oracle *Oracle
	loc    *time.Location
	logger zerolog.Logger
}

// New creates a calendar around the given oracle.
func New(oracle *Oracle, logger zerolog.Logger) (*Calendar, error) {
	loc, err := time.LoadLocation(ZoneName)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", ZoneName, err)
	}

	return &Calendar{
		oracle: oracle,
		loc:    loc,
		logger: logger,
	}, nil
}

// Location returns the exchange's civil timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsTradingTime reports whether t falls inside a trading session: a weekday,
// within one of the daily windows, on a date the oracle confirms is not a
// holiday.
func (c *Calendar) IsTradingTime(ctx context.Context, t time.Time) bool {
	civil := t.In(c.loc)

	if wd := civil.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if !inSessionWindow(secondOfDay(civil)) {
		return false
	}

	return !c.oracle.IsHoliday(ctx, civil)
}

// NextSessionOpen returns the first session open (09:15 civil) strictly
// after t, searching day by day up to the horizon. On horizon exhaustion it
// returns t plus a fixed fallback.
func (c *Calendar) NextSessionOpen(ctx context.Context, t time.Time) time.Time {
	civil := t.In(c.loc)

	for i := 0; i <= nextOpenHorizonDays; i++ {
		day := civil.AddDate(0, 0, i)

		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if c.oracle.IsHoliday(ctx, day) {
			continue
		}

		open := time.Date(day.Year(), day.Month(), day.Day(), openHour, openMinute, 0, 0, c.loc)
		if open.After(t) {
			return open
		}
	}

	c.logger.Warn().
		Time("from", t).
		Int("horizon_days", nextOpenHorizonDays).
		Msg("Next-open search horizon exhausted, using fallback")

	return t.Add(horizonFallback)
}

// AdaptiveTTL returns the cache validity window for data fetched at t.
// During a session (and outside the closing-refresh minute) it is a short
// jittered TTL; otherwise it spans until the next session open so entries
// expire exactly when fresh data becomes meaningful.
func (c *Calendar) AdaptiveTTL(ctx context.Context, t time.Time) time.Duration {
	civil := t.In(c.loc)

	if c.IsTradingTime(ctx, t) && !isClosingRefreshMinute(civil) {
		return intradayTTLBase + time.Duration(rand.Int63n(int64(intradayTTLJitter)))
	}

	ttl := c.NextSessionOpen(ctx, t).Sub(t).Truncate(time.Second)
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

func inSessionWindow(sec int) bool {
	switch {
	case sec >= preOpenStart && sec <= preOpenEnd:
		return true
	case sec >= morningStart && sec <= morningEnd:
		return true
	case sec >= afternoonStart && sec <= afternoonEnd:
		return true
	}
	return false
}

func isClosingRefreshMinute(civil time.Time) bool {
	return civil.Hour() == closingRefreshHour && civil.Minute() == closingRefreshMinute
}
