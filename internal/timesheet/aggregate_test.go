package timesheet

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/petr-muller/clocksync/internal/clockify"
	"github.com/petr-muller/clocksync/internal/config"
	"github.com/petr-muller/clocksync/internal/worktime"
)

type fakeSource struct {
	entries []clockify.TimeEntry

	gotStart    string
	gotEnd      string
	gotPageSize int
}

func (f *fakeSource) TimeEntries(_ context.Context, _, _, start, end string, pageSize int) ([]clockify.TimeEntry, error) {
	f.gotStart = start
	f.gotEnd = end
	f.gotPageSize = pageSize
	return f.entries, nil
}

func testEntry(id, description, project, task, start, duration string) clockify.TimeEntry {
	entry := clockify.TimeEntry{
		ID:          id,
		Description: description,
		TimeInterval: &clockify.TimeInterval{
			Start:    start,
			Duration: duration,
		},
	}
	if project != "" {
		entry.Project = &clockify.NamedResource{Name: project}
	}
	if task != "" {
		entry.Task = &clockify.NamedResource{Name: task}
	}
	return entry
}

func testEngine(t *testing.T, source EntrySource, defaultIssue, defaultComment string) *Engine {
	t.Helper()
	return &Engine{
		source:         source,
		location:       time.UTC,
		targetHours:    8,
		defaultIssue:   defaultIssue,
		defaultComment: defaultComment,
		now:            func() time.Time { return time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC) },
	}
}

func perIssueKeys(sheet *Sheet) []string {
	var keys []string
	for _, key := range sheet.Keys() {
		if !strings.HasPrefix(key, SumPrefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

func TestBuildWindowResolution(t *testing.T) {
	tests := []struct {
		name          string
		opts          Options
		expectedStart string
		expectedEnd   string
	}{
		{
			name:          "today with no days back",
			opts:          Options{PageSize: 50},
			expectedStart: "2024-03-04T00:00:00.000Z",
			expectedEnd:   "2024-03-04T23:59:59.000Z",
		},
		{
			name:          "days back widen the window",
			opts:          Options{DaysBack: 3, PageSize: 50},
			expectedStart: "2024-03-01T00:00:00.000Z",
			expectedEnd:   "2024-03-04T23:59:59.000Z",
		},
		{
			name:          "specific day replaces today",
			opts:          Options{SpecificDay: "2024-02-15", DaysBack: 1, PageSize: 50},
			expectedStart: "2024-02-14T00:00:00.000Z",
			expectedEnd:   "2024-02-15T23:59:59.000Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{}
			engine := testEngine(t, source, "", "")
			if _, err := engine.Build(context.Background(), tt.opts); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if source.gotStart != tt.expectedStart {
				t.Errorf("start = %q, expected %q", source.gotStart, tt.expectedStart)
			}
			if source.gotEnd != tt.expectedEnd {
				t.Errorf("end = %q, expected %q", source.gotEnd, tt.expectedEnd)
			}
			if source.gotPageSize != 50 {
				t.Errorf("page size = %d, expected 50", source.gotPageSize)
			}
		})
	}
}

func TestBuildDoubleBookkeeping(t *testing.T) {
	source := &fakeSource{entries: []clockify.TimeEntry{
		testEntry("e1", "did work [i=ABC-1&t=Bug]", "P", "T", "2024-03-04T08:00:00Z", "PT1H30M"),
	}}
	engine := testEngine(t, source, "", "")

	sheet, err := engine.Build(context.Background(), Options{PageSize: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum := sheet.Lookup(SumPrefix + "_2024-03-04")
	if sum == nil {
		t.Fatal("expected a daily-summary record")
	}
	if sum.Duration != (worktime.Span{Hours: 1, Minutes: 30}) {
		t.Errorf("summary duration = %+v", sum.Duration)
	}

	record := sheet.Lookup("2024-03-04_P_T_e1")
	if record == nil {
		t.Fatalf("expected per-issue record, keys: %v", sheet.Keys())
	}
	if record.Duration != (worktime.Span{Hours: 1, Minutes: 30}) {
		t.Errorf("record duration = %+v", record.Duration)
	}
	if len(record.Issues) != 1 || record.Issues[0] != "ABC-1" {
		t.Errorf("record issues = %v", record.Issues)
	}
	if record.IssueType != "Bug" {
		t.Errorf("record issue type = %q", record.IssueType)
	}
	if len(record.Descriptions) != 1 || record.Descriptions[0] != "did work" {
		t.Errorf("record descriptions = %v", record.Descriptions)
	}
}

func TestBuildEntryWithoutIssueStillCountsTowardDailySum(t *testing.T) {
	source := &fakeSource{entries: []clockify.TimeEntry{
		testEntry("e1", "no reference here", "P", "T", "2024-03-04T08:00:00Z", "PT2H"),
	}}
	engine := testEngine(t, source, "", "")

	sheet, err := engine.Build(context.Background(), Options{PageSize: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum := sheet.Lookup(SumPrefix + "_2024-03-04")
	if sum == nil {
		t.Fatal("expected a daily-summary record")
	}
	if sum.Duration != (worktime.Span{Hours: 2}) {
		t.Errorf("summary duration = %+v", sum.Duration)
	}
	if keys := perIssueKeys(sheet); len(keys) != 0 {
		t.Errorf("expected no per-issue records, got %v", keys)
	}
}

func TestBuildUsesEntryWallClockDay(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}

	// A late-evening UTC start is already past midnight in Berlin, but the
	// entry belongs to the wall-clock day it was tracked on
	source := &fakeSource{entries: []clockify.TimeEntry{
		testEntry("e1", "a [i=X-1]", "P", "T", "2024-03-04T23:30:00Z", "PT1H"),
	}}
	engine := &Engine{
		source:   source,
		location: berlin,
		now:      func() time.Time { return time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC) },
	}

	sheet, err := engine.Build(context.Background(), Options{PageSize: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum := sheet.Lookup(SumPrefix + "_2024-03-04"); sum == nil {
		t.Errorf("expected the daily sum on 2024-03-04, keys: %v", sheet.Keys())
	}
	if record := sheet.Lookup("2024-03-04_P_T_e1"); record == nil {
		t.Errorf("expected the per-issue record on 2024-03-04, keys: %v", sheet.Keys())
	}
	for _, key := range sheet.Keys() {
		if strings.Contains(key, "2024-03-05") {
			t.Errorf("entry leaked into the next day: %q", key)
		}
	}
}

func TestBuildIdempotence(t *testing.T) {
	entries := []clockify.TimeEntry{
		testEntry("e1", "a [i=X-1]", "P", "T", "2024-03-04T08:00:00Z", "PT1H"),
		testEntry("e2", "b [i=X-1]", "P", "T", "2024-03-04T10:00:00Z", "PT2H"),
		testEntry("e3", "c [i=Y-2]", "P", "Other", "2024-03-05T09:00:00Z", "PT30M"),
	}

	build := func() *Sheet {
		engine := testEngine(t, &fakeSource{entries: entries}, "", "")
		sheet, err := engine.Build(context.Background(), Options{PageSize: 50})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return sheet
	}

	first := build()
	second := build()

	firstKeys := first.Keys()
	secondKeys := second.Keys()
	if len(firstKeys) != len(secondKeys) {
		t.Fatalf("key counts differ: %d vs %d", len(firstKeys), len(secondKeys))
	}
	for i, key := range firstKeys {
		if key != secondKeys[i] {
			t.Fatalf("key order differs at %d: %q vs %q", i, key, secondKeys[i])
		}
		a, b := first.Lookup(key), second.Lookup(key)
		if a.Duration != b.Duration {
			t.Errorf("durations differ for %q: %+v vs %+v", key, a.Duration, b.Duration)
		}
	}
}

func TestBuildProjectFilterExcludesEverything(t *testing.T) {
	source := &fakeSource{entries: []clockify.TimeEntry{
		testEntry("e1", "a [i=X-1]", "P", "T", "2024-03-04T08:00:00Z", "PT1H"),
		testEntry("e2", "b [i=Y-2]", "Q", "T", "2024-03-04T10:00:00Z", "PT2H"),
	}}
	engine := testEngine(t, source, "", "")

	sheet, err := engine.Build(context.Background(), Options{PageSize: 50, ProjectFilter: "nowhere"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if keys := perIssueKeys(sheet); len(keys) != 0 {
		t.Errorf("expected zero per-issue records, got %v", keys)
	}
	// A filtered-out project makes the entry unattributable, so it never
	// reaches the daily sum either
	if sheet.Len() != 0 {
		t.Errorf("expected an empty sheet, got keys %v", sheet.Keys())
	}
}

func TestBuildTaskFilterOnlyBlanksTask(t *testing.T) {
	source := &fakeSource{entries: []clockify.TimeEntry{
		testEntry("e1", "a [i=X-1]", "P", "T", "2024-03-04T08:00:00Z", "PT1H"),
	}}
	engine := testEngine(t, source, "", "")

	sheet, err := engine.Build(context.Background(), Options{PageSize: 50, TaskFilter: "nowhere"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := sheet.Lookup("2024-03-04_P__e1")
	if record == nil {
		t.Fatalf("expected per-issue record with blank task, keys: %v", sheet.Keys())
	}
	if record.Task != "" {
		t.Errorf("task = %q, expected blank", record.Task)
	}
}

func TestBuildIssueFilterDropsPerIssueRecordOnly(t *testing.T) {
	source := &fakeSource{entries: []clockify.TimeEntry{
		testEntry("e1", "a [i=X-1]", "P", "T", "2024-03-04T08:00:00Z", "PT1H"),
		testEntry("e2", "b [i=Y-2]", "P", "T", "2024-03-04T10:00:00Z", "PT2H"),
	}}
	engine := testEngine(t, source, "", "")

	sheet, err := engine.Build(context.Background(), Options{PageSize: 50, IssueFilter: "X-"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	keys := perIssueKeys(sheet)
	if len(keys) != 1 || keys[0] != "2024-03-04_P_T_e1" {
		t.Errorf("per-issue keys = %v", keys)
	}
	sum := sheet.Lookup(SumPrefix + "_2024-03-04")
	if sum == nil {
		t.Fatal("expected a daily-summary record")
	}
	if sum.Duration != (worktime.Span{Hours: 3}) {
		t.Errorf("summary duration = %+v, expected the filtered entry to still count", sum.Duration)
	}
}

func TestBuildCombineMode(t *testing.T) {
	entries := []clockify.TimeEntry{
		testEntry("e1", "a [i=X-1]", "P", "T", "2024-03-04T08:00:00Z", "PT1H"),
		testEntry("e2", "b [i=X-1]", "P", "T", "2024-03-04T10:00:00Z", "PT2H"),
	}

	t.Run("combine merges same day, project and task", func(t *testing.T) {
		engine := testEngine(t, &fakeSource{entries: entries}, "", "")
		sheet, err := engine.Build(context.Background(), Options{PageSize: 50, Combine: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		record := sheet.Lookup("2024-03-04_P_T")
		if record == nil {
			t.Fatalf("expected combined record, keys: %v", sheet.Keys())
		}
		if record.Duration != (worktime.Span{Hours: 3}) {
			t.Errorf("duration = %+v, expected 3h", record.Duration)
		}
		if fmt.Sprintf("%v", record.Descriptions) != "[a b]" {
			t.Errorf("descriptions = %v", record.Descriptions)
		}
		if fmt.Sprintf("%v", record.Issues) != "[X-1]" {
			t.Errorf("issues = %v", record.Issues)
		}
	})

	t.Run("without combine the entry id keeps records apart", func(t *testing.T) {
		engine := testEngine(t, &fakeSource{entries: entries}, "", "")
		sheet, err := engine.Build(context.Background(), Options{PageSize: 50})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		keys := perIssueKeys(sheet)
		if len(keys) != 2 {
			t.Fatalf("expected 2 per-issue records, got %v", keys)
		}
		for _, key := range []string{"2024-03-04_P_T_e1", "2024-03-04_P_T_e2"} {
			if sheet.Lookup(key) == nil {
				t.Errorf("missing record %q, keys: %v", key, keys)
			}
		}
	})
}

func TestBuildBufferAllocation(t *testing.T) {
	source := &fakeSource{entries: []clockify.TimeEntry{
		testEntry("e1", "a [i=X-1]", "P", "T", "2024-03-04T08:00:00Z", "PT6H30M"),
	}}

	t.Run("synthesizes the gap to the daily target", func(t *testing.T) {
		engine := testEngine(t, source, "BUF-1", "buffer")
		sheet, err := engine.Build(context.Background(), Options{PageSize: 50, Buffer: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		record := sheet.Lookup("BUF-1_2024-03-04_P_T")
		if record == nil {
			t.Fatalf("expected buffer record, keys: %v", sheet.Keys())
		}
		if record.Duration != (worktime.Span{Hours: 1, Minutes: 30}) {
			t.Errorf("buffer duration = %+v, expected 1h 30m", record.Duration)
		}
		if fmt.Sprintf("%v", record.Issues) != "[BUF-1]" {
			t.Errorf("buffer issues = %v", record.Issues)
		}
		if fmt.Sprintf("%v", record.Descriptions) != "[buffer]" {
			t.Errorf("buffer descriptions = %v", record.Descriptions)
		}
	})

	t.Run("no buffer without a configured default issue", func(t *testing.T) {
		engine := testEngine(t, source, "", "")
		sheet, err := engine.Build(context.Background(), Options{PageSize: 50, Buffer: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if record := sheet.Lookup("BUF-1_2024-03-04_P_T"); record != nil {
			t.Error("expected no buffer record")
		}
	})

	t.Run("no buffer when the day is already full", func(t *testing.T) {
		full := &fakeSource{entries: []clockify.TimeEntry{
			testEntry("e1", "a [i=X-1]", "P", "T", "2024-03-04T08:00:00Z", "PT9H"),
		}}
		engine := testEngine(t, full, "BUF-1", "buffer")
		sheet, err := engine.Build(context.Background(), Options{PageSize: 50, Buffer: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if record := sheet.Lookup("BUF-1_2024-03-04_P_T"); record != nil {
			t.Errorf("expected no buffer record, got %+v", record)
		}
	})
}

func TestBuildUnparseableStartIsFatal(t *testing.T) {
	source := &fakeSource{entries: []clockify.TimeEntry{
		testEntry("e1", "a [i=X-1]", "P", "T", "not-a-timestamp", "PT1H"),
	}}
	engine := testEngine(t, source, "", "")

	if _, err := engine.Build(context.Background(), Options{PageSize: 50}); err == nil {
		t.Error("expected an error for an unparseable start timestamp")
	}
}

func TestNewEngineUsesConfig(t *testing.T) {
	cfg := &config.Config{
		WorkTime: config.WorkTimeConfig{DefaultHours: 8, DefaultIssue: "BUF-1", DefaultComment: "buffer"},
		Location: time.UTC,
	}
	engine := NewEngine(&fakeSource{}, cfg)
	if engine.targetHours != 8 || engine.defaultIssue != "BUF-1" || engine.defaultComment != "buffer" {
		t.Errorf("engine not wired from config: %+v", engine)
	}
}
