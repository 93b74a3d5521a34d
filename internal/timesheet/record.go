package timesheet

import (
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/petr-muller/clocksync/internal/worktime"
)

// SumPrefix marks the keys of daily-summary records, which carry the total
// worked time of one calendar day and are filtered out during upload.
const SumPrefix = "-> sum:"

// Record is one aggregate bucket: either a daily summary or one logical unit
// of work on a single issue.
type Record struct {
	Project      string        `yaml:"project"`
	Task         string        `yaml:"task"`
	Date         string        `yaml:"date"`
	Duration     worktime.Span `yaml:"duration"`
	Issues       []string      `yaml:"issues"`
	Descriptions []string      `yaml:"descriptions"`
	IssueType    string        `yaml:"issue_type"`
}

// Sheet is the aggregate map of one aggregation pass. It preserves key
// insertion order so that presentation and upload walk records in the order
// the raw entries produced them. It is not safe for concurrent mutation;
// a pass owns its sheet exclusively.
type Sheet struct {
	keys    []string
	records map[string]*Record
}

// NewSheet creates an empty sheet.
func NewSheet() *Sheet {
	return &Sheet{records: make(map[string]*Record)}
}

// Keys returns the record keys in insertion order.
func (s *Sheet) Keys() []string {
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Lookup returns the record stored under key, or nil.
func (s *Sheet) Lookup(key string) *Record {
	return s.records[key]
}

// Len returns the number of records.
func (s *Sheet) Len() int {
	return len(s.keys)
}

// Put stores a record under key, replacing any previous value. It is used
// when rebuilding a sheet from a snapshot.
func (s *Sheet) Put(key string, record Record) {
	if _, exists := s.records[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.records[key] = &record
}

// recordUpdate is one contribution to a record. Scalar fields are
// last-write-wins; duration, issues and descriptions accumulate.
type recordUpdate struct {
	project      string
	task         string
	date         string
	span         *worktime.Span
	issue        string
	issueType    string
	description  string
	descriptions []string
}

// apply upserts the record under key: the span is merged with minute carry,
// a new issue id is appended to the ordered set (warning when a second
// distinct id shows up), and description text is appended.
func (s *Sheet) apply(key string, update recordUpdate) {
	record, exists := s.records[key]
	if !exists {
		record = &Record{}
		s.records[key] = record
		s.keys = append(s.keys, key)
	}

	record.Project = update.project
	record.Task = update.task
	record.Date = update.date
	record.IssueType = update.issueType

	if update.span != nil {
		record.Duration = record.Duration.Add(*update.span)
	} else {
		logrus.Warning("no work time was set, check if this was correct or you forgot to set your worktime")
	}

	if update.issue != "" && !slices.Contains(record.Issues, update.issue) {
		record.Issues = append(record.Issues, update.issue)
		if len(record.Issues) > 1 {
			logrus.Warningf("issue %q has multiple ids, check this", update.description)
		}
	}

	if update.description != "" {
		record.Descriptions = append(record.Descriptions, update.description)
	}
	record.Descriptions = append(record.Descriptions, update.descriptions...)
}
