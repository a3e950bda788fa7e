// Package round converts calendar dates to lotto round numbers and back.
//
// Rounds are anchored to a fixed (round number, draw date) pair and advance
// one per week. The draw happens on a fixed weekday; the day immediately
// after the draw day already belongs to the next round. With the default
// Saturday draw:
//
//	2026-02-21 (Sat) -> 1212
//	2026-02-22 (Sun) -> 1213
//	2026-02-28 (Sat) -> 1213
package round

import "time"

// Default anchor: round 1212 drew on 2026-02-21, a Saturday, Korea time.
const (
	DefaultAnchorRound = 1212
	DefaultAnchorDate  = "2026-02-21"
	DefaultTimezone    = "Asia/Seoul"
)

// Calculator derives round numbers from dates using fixed-anchor arithmetic.
// The zero value is not usable; construct with New or Default.
type Calculator struct {
	anchorRound int
	anchorDate  time.Time
	drawWeekday time.Weekday
	loc         *time.Location
}

// Info is the public shape of "what round is it now".
type Info struct {
	RoundNumber int    `json:"round_number"`
	DrawDate    string `json:"draw_date"`
	IsDrawDay   bool   `json:"is_draw_day"`
}

// New builds a Calculator. anchorDate must fall on drawWeekday in loc.
func New(anchorRound int, anchorDate time.Time, drawWeekday time.Weekday, loc *time.Location) Calculator {
	anchor := time.Date(anchorDate.Year(), anchorDate.Month(), anchorDate.Day(), 0, 0, 0, 0, loc)
	return Calculator{
		anchorRound: anchorRound,
		anchorDate:  anchor,
		drawWeekday: drawWeekday,
		loc:         loc,
	}
}

// Default returns the production calculator for the given timezone name,
// falling back to Asia/Seoul when the name does not resolve.
func Default(timezone string) Calculator {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc, _ = time.LoadLocation(DefaultTimezone)
	}
	anchor, _ := time.ParseInLocation("2006-01-02", DefaultAnchorDate, loc)
	return New(DefaultAnchorRound, anchor, time.Saturday, loc)
}

// Current returns the round number the instant at belongs to. Correct for
// instants before the anchor and for the anchor date itself.
func (c Calculator) Current(at time.Time) int {
	day := c.startOfDay(at.In(c.loc))

	// Normalize to the draw day that closes this cycle: the next occurrence
	// of the draw weekday on or after the reference day.
	daysUntilDraw := (int(c.drawWeekday) - int(day.Weekday()) + 7) % 7
	drawDay := day.AddDate(0, 0, daysUntilDraw)

	weeks := daysBetween(c.anchorDate, drawDay) / 7
	return c.anchorRound + weeks
}

// DrawDate returns the draw date of the given round.
func (c Calculator) DrawDate(roundNumber int) time.Time {
	return c.anchorDate.AddDate(0, 0, (roundNumber-c.anchorRound)*7)
}

// CurrentInfo bundles round number, draw date, and the is-draw-day flag for
// the given instant.
func (c Calculator) CurrentInfo(at time.Time) Info {
	now := at.In(c.loc)
	roundNumber := c.Current(now)
	drawDate := c.DrawDate(roundNumber)
	return Info{
		RoundNumber: roundNumber,
		DrawDate:    drawDate.Format("2006-01-02"),
		IsDrawDay:   c.startOfDay(now).Equal(drawDate),
	}
}

// Location exposes the calculator's timezone for callers parsing dates.
func (c Calculator) Location() *time.Location {
	return c.loc
}

func (c Calculator) startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// daysBetween returns the signed whole-day distance from a to b. Both inputs
// are midnights in the same location, so the division is exact even across
// DST transitions thanks to the +12h rounding guard.
func daysBetween(a, b time.Time) int {
	d := b.Sub(a)
	if d >= 0 {
		return int((d + 12*time.Hour) / (24 * time.Hour))
	}
	return -int((-d + 12*time.Hour) / (24 * time.Hour))
}
