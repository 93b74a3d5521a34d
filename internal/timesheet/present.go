package timesheet

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/petr-muller/clocksync/internal/worktime"
)

var (
	dividerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	dayStyle     = lipgloss.NewStyle().Bold(true)

	divider = dividerStyle.Render(strings.Repeat("~", 51))
)

// Presenter renders an aggregated sheet for manual checking or copy/paste
// use. Output goes through the logger, matching the rest of the CLI.
type Presenter struct {
	targetHours int
}

// NewPresenter creates a presenter using the given daily target for the
// per-day rest calculation.
func NewPresenter(targetHours int) Presenter {
	return Presenter{targetHours: targetHours}
}

// Render walks the sheet in insertion order. With dayCount, every
// daily-summary record becomes a worked/rest box; with details, every
// per-issue record becomes a single condensed line.
func (p Presenter) Render(sheet *Sheet, details, dayCount bool) {
	for _, key := range sheet.Keys() {
		record := sheet.Lookup(key)

		if strings.HasPrefix(key, SumPrefix) {
			if !dayCount {
				continue
			}
			restHours, restMinutes := worktime.SplitSeconds((float64(p.targetHours) - record.Duration.InHours()) * 3600)
			logrus.Info(divider)
			logrus.Info(dayStyle.Render(fmt.Sprintf("  ==> DAY: %s", record.Date)))
			logrus.Infof("  [*] WORKED: %s", record.Duration.Presentation())
			logrus.Infof("  [*] REST  : %dh %dm", restHours, restMinutes)
			logrus.Info(divider)
			continue
		}

		if !details {
			continue
		}

		var parts []string
		if record.Date != "" {
			parts = append(parts, record.Date)
		}
		parts = append(parts, record.Duration.Presentation())
		if len(record.Issues) > 0 {
			parts = append(parts, strings.Join(record.Issues, ", "))
		}
		if record.IssueType != "" {
			parts = append(parts, record.IssueType)
		}
		if len(record.Descriptions) > 0 {
			parts = append(parts, strings.Join(record.Descriptions, ", "))
		}
		logrus.Infof("  [*] %s", strings.Join(parts, " || "))
	}
}
