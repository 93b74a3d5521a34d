// Package remaining computes how much monthly work time is still open,
// comparing logged hours against the working days of the month.
package remaining

import (
	"context"
	"fmt"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/de"

	"github.com/petr-muller/clocksync/internal/clockify"
	"github.com/petr-muller/clocksync/internal/config"
	"github.com/petr-muller/clocksync/internal/worktime"
)

// monthlyPageSize is large enough to hold a full month of entries in one
// page, so no records are lost to pagination.
const monthlyPageSize = 5000

// workdayHours is the assumed length of one working day.
const workdayHours = 8

// EntrySource supplies raw time entries for a wall-clock window.
type EntrySource interface {
	TimeEntries(ctx context.Context, workspaceID, userID, start, end string, pageSize int) ([]clockify.TimeEntry, error)
}

// Report is the outcome of one remaining-time calculation.
type Report struct {
	Start          string
	End            string
	WorkedHours    float64
	RemainingHours float64
}

// RemainingDays converts the remaining hours into working days.
func (r Report) RemainingDays() float64 {
	return r.RemainingHours / workdayHours
}

// Calculator sums a month of logged time against its target work hours.
type Calculator struct {
	source   EntrySource
	location *time.Location
	calendar *cal.Calendar
}

// NewCalculator creates a calculator for the configured holiday region.
func NewCalculator(source EntrySource, cfg *config.Config) *Calculator {
	return &Calculator{
		source:   source,
		location: cfg.Location,
		calendar: holidayCalendar(cfg.HolidayRegion),
	}
}

// holidayCalendar maps a region code to its public-holiday set. Unknown
// regions fall back to the default, Baden-Württemberg.
func holidayCalendar(region string) *cal.Calendar {
	c := &cal.Calendar{}
	switch region {
	case "DE":
		c.AddHoliday(de.Holidays...)
	default: // DE-BW
		c.AddHoliday(de.Holidays...)
		c.AddHoliday(de.HeiligeDreiKoenige, de.Fronleichnam, de.Allerheiligen)
	}
	return c
}

// Calculate fetches the whole month of entries and reports the difference
// between hours worked and the month's target: weekday count times eight
// hours, minus eight hours for every public holiday, taken free day, and
// illness day.
func (c *Calculator) Calculate(ctx context.Context, workspaceID, userID string, year, month, takenFreeDays, illnessDays int) (*Report, error) {
	firstDay := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, c.location)
	lastDay := firstDay.AddDate(0, 1, -1)

	start := firstDay.Format("2006-01-02") + "T00:00:00.000Z"
	end := lastDay.Format("2006-01-02") + "T23:59:59.000Z"

	entries, err := c.source.TimeEntries(ctx, workspaceID, userID, start, end, monthlyPageSize)
	if err != nil {
		return nil, err
	}

	var workedHours float64
	for _, entry := range entries {
		if span, ok := worktime.Parse(entry.RawDuration()); ok {
			workedHours += span.InHours()
		}
	}

	workDays := 0
	holidayHours := 0
	for day := firstDay; day.Month() == firstDay.Month(); day = day.AddDate(0, 0, 1) {
		if weekday := day.Weekday(); weekday != time.Saturday && weekday != time.Sunday {
			workDays++
		}
		if actual, _, _ := c.calendar.IsHoliday(day); actual {
			holidayHours += workdayHours
		}
	}

	targetHours := workDays*workdayHours - holidayHours - takenFreeDays*workdayHours - illnessDays*workdayHours

	return &Report{
		Start:          start,
		End:            end,
		WorkedHours:    workedHours,
		RemainingHours: workedHours - float64(targetHours),
	}, nil
}

// Log renders the report the way the CLI presents it.
func (r Report) String() string {
	return fmt.Sprintf("requested %s - %s: worked %.2fh, remaining %.2fh (%.2f days)",
		r.Start, r.End, r.WorkedHours, r.RemainingHours, r.RemainingDays())
}
