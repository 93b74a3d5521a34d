// Package timesheet turns raw time entries into the two aggregate views the
// upload pipeline works with: per-day totals and per-issue work records.
package timesheet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/petr-muller/clocksync/internal/clockify"
	"github.com/petr-muller/clocksync/internal/config"
	"github.com/petr-muller/clocksync/internal/issueref"
	"github.com/petr-muller/clocksync/internal/worktime"
)

const dayFormat = "2006-01-02"

// EntrySource supplies raw time entries for a wall-clock window.
type EntrySource interface {
	TimeEntries(ctx context.Context, workspaceID, userID, start, end string, pageSize int) ([]clockify.TimeEntry, error)
}

// Options control one aggregation pass.
type Options struct {
	WorkspaceID string
	UserID      string
	// DaysBack widens the window backwards from the reference day
	DaysBack int
	// SpecificDay (YYYY-MM-DD) replaces today as the reference day
	SpecificDay string
	PageSize    int

	// Substring filters, applied before key construction. A project filter
	// mismatch excludes the entry; a task or issue filter mismatch only
	// blanks the respective field.
	ProjectFilter string
	TaskFilter    string
	IssueFilter   string

	// Combine merges same-day/same-project/same-task entries into one record
	Combine bool
	// Buffer synthesizes a filler record for days below the daily target
	Buffer bool
}

// Engine aggregates raw time entries into a Sheet.
type Engine struct {
	source         EntrySource
	location       *time.Location
	targetHours    int
	defaultIssue   string
	defaultComment string

	now func() time.Time
}

// NewEngine creates an aggregation engine bound to an entry source and the
// invocation configuration.
func NewEngine(source EntrySource, cfg *config.Config) *Engine {
	return &Engine{
		source:         source,
		location:       cfg.Location,
		targetHours:    cfg.WorkTime.DefaultHours,
		defaultIssue:   cfg.WorkTime.DefaultIssue,
		defaultComment: cfg.WorkTime.DefaultComment,
		now:            time.Now,
	}
}

// Build fetches the raw entries for the requested window and classifies them
// into daily-summary and per-issue records. Data-quality problems are logged
// and the affected entry is dropped from the relevant view; an unparseable
// start timestamp aborts the whole pass.
func (e *Engine) Build(ctx context.Context, opts Options) (*Sheet, error) {
	referenceDay := e.now().In(e.location)
	if opts.SpecificDay != "" {
		parsed, err := time.ParseInLocation(dayFormat, opts.SpecificDay, e.location)
		if err != nil {
			return nil, fmt.Errorf("invalid specific day %q: %w", opts.SpecificDay, err)
		}
		referenceDay = parsed
	}

	start := referenceDay.AddDate(0, 0, -opts.DaysBack).Format(dayFormat) + "T00:00:00.000Z"
	end := referenceDay.Format(dayFormat) + "T23:59:59.000Z"
	logrus.Debugf("collecting time entries between %s and %s", start, end)

	entries, err := e.source.TimeEntries(ctx, opts.WorkspaceID, opts.UserID, start, end, opts.PageSize)
	if err != nil {
		return nil, err
	}

	sheet := NewSheet()
	for _, entry := range entries {
		if err := e.classify(sheet, entry, opts); err != nil {
			return nil, err
		}
	}

	if opts.Buffer {
		e.allocateBuffer(sheet)
	}

	return sheet, nil
}

// classify applies one raw entry to the sheet: once to the daily-summary
// record of its day, and once to its per-issue record when an issue id
// resolves and survives the issue filter.
func (e *Engine) classify(sheet *Sheet, entry clockify.TimeEntry, opts Options) error {
	var span *worktime.Span
	if parsed, ok := worktime.Parse(entry.RawDuration()); ok {
		span = &parsed
	}

	project := entry.ProjectName()
	task := entry.TaskName()

	if project != "" && opts.ProjectFilter != "" && !strings.Contains(project, opts.ProjectFilter) {
		project = ""
	}
	if task != "" && opts.TaskFilter != "" && !strings.Contains(task, opts.TaskFilter) {
		task = ""
	}

	// The project is mandatory: without one the entry cannot be attributed
	if project == "" {
		logrus.Debug("time entry has no project name set, skipping")
		return nil
	}

	startedAt, err := time.Parse(time.RFC3339, entry.Start())
	if err != nil {
		// Timestamps come from a trusted API, so a broken one means the
		// whole response is suspect
		return fmt.Errorf("failed to parse time entry start %q: %w", entry.Start(), err)
	}
	// The day is the literal wall-clock date of the start timestamp. No zone
	// conversion: a late-evening entry stays on the day it was tracked on.
	day := startedAt.Format(dayFormat)

	// The daily total counts every attributable entry, whether or not an
	// issue id resolves below
	sheet.apply(fmt.Sprintf("%s_%s", SumPrefix, day), recordUpdate{
		project: project,
		task:    task,
		date:    day,
		span:    span,
	})

	ref, description, matched := issueref.Extract(entry.Description, task, project)
	if !matched || ref.ID == "" {
		logrus.Warning("failed to get or parse base issue information for:")
		logrus.Warningf("  - start: %s, task: %q, project: %q, description: %q, duration: %s",
			entry.Start(), task, project, description, entry.RawDuration())
		return nil
	}

	if opts.IssueFilter != "" && !strings.Contains(ref.ID, opts.IssueFilter) {
		return nil
	}

	key := fmt.Sprintf("%s_%s_%s", day, project, task)
	if !opts.Combine {
		key = fmt.Sprintf("%s_%s", key, entry.ID)
	}

	sheet.apply(key, recordUpdate{
		project:     project,
		task:        task,
		date:        day,
		span:        span,
		issue:       ref.ID,
		issueType:   ref.Type,
		description: description,
	})

	return nil
}

// allocateBuffer synthesizes a filler record for every day whose total falls
// short of the daily target, booked on the configured default issue. The
// project and task are whatever the day's last contributing entry set them
// to; the buffer is informational, so that imprecision is accepted.
func (e *Engine) allocateBuffer(sheet *Sheet) {
	if e.defaultIssue == "" || e.defaultComment == "" {
		return
	}

	for _, key := range sheet.Keys() {
		if !strings.HasPrefix(key, SumPrefix) {
			continue
		}
		record := sheet.Lookup(key)
		if record.Project == "" || record.Task == "" || record.Date == "" {
			continue
		}

		restHours := float64(e.targetHours) - record.Duration.InHours()
		if restHours <= 0 {
			continue
		}

		hours, minutes := worktime.SplitSeconds(restHours * 3600)
		span := worktime.Span{Hours: hours, Minutes: minutes}
		sheet.apply(fmt.Sprintf("%s_%s_%s_%s", e.defaultIssue, record.Date, record.Project, record.Task), recordUpdate{
			project:     record.Project,
			task:        record.Task,
			date:        record.Date,
			span:        &span,
			issue:       e.defaultIssue,
			description: e.defaultComment,
		})
	}
}
