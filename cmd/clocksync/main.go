// Command clocksync pulls tracked time from Clockify, aggregates it into
// per-day and per-issue records, and uploads the result to YouTrack and the
// employer portal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/petr-muller/clocksync/internal/clockify"
	"github.com/petr-muller/clocksync/internal/config"
	"github.com/petr-muller/clocksync/internal/flagutil"
	"github.com/petr-muller/clocksync/internal/portal"
	"github.com/petr-muller/clocksync/internal/remaining"
	"github.com/petr-muller/clocksync/internal/storage"
	"github.com/petr-muller/clocksync/internal/timesheet"
	"github.com/petr-muller/clocksync/internal/youtrack"
)

// Exit codes. Interrupts and configuration problems are distinguishable so
// that wrapping scripts can react to them.
const (
	exitFailure         = 1
	exitInvalidEndpoint = 2
	exitInterrupted     = 5
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, newRootCmd()); err != nil {
		stop()
		os.Exit(exitCode(ctx, err))
	}
}

func exitCode(ctx context.Context, err error) int {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, flagutil.ErrInvalidEndpoint):
		return exitInvalidEndpoint
	default:
		return exitFailure
	}
}

// newRootCmd assembles the fixed command tree. Every subcommand is
// registered here; nothing mutates the tree afterwards.
func newRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "clocksync",
		Short: "Sync tracked work time from Clockify to YouTrack",
		Long: `clocksync pulls time entries from Clockify, aggregates them into per-day
totals and per-issue work records, and uploads the records to YouTrack.

The usual flow is fetch-times (aggregate and inspect), then upload (push the
aggregated records to the tracker).`,
		PersistentPreRun: func(*cobra.Command, []string) {
			logrus.SetFormatter(&logrus.TextFormatter{ForceColors: true})
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newUserCmd(),
		newFetchTimesCmd(),
		newUploadCmd(),
		newRemainingDaysCmd(),
		newPortalCmd(),
	)

	return rootCmd
}

func newUserCmd() *cobra.Command {
	var clockifyOptions flagutil.ClockifyOptions

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Show the Clockify identifiers of the authenticated user",
		Long: `Fetch the authenticated user from Clockify and print the identifiers that
the other subcommands need: the user id and the active workspace id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			clockifyOptions.Resolve(cfg)
			if err := clockifyOptions.Validate(); err != nil {
				return err
			}

			client := clockify.NewClient(clockifyOptions.Endpoint, clockifyOptions.APIKey)
			info, err := client.User(cmd.Context())
			if err != nil {
				return fmt.Errorf("cannot fetch user: %w", err)
			}

			logrus.Infof("user id          : %s", info.ID)
			logrus.Infof("active workspace : %s", info.ActiveWorkspace)
			logrus.Infof("default workspace: %s", info.DefaultWorkspace)
			return nil
		},
	}

	clockifyOptions.AddPFlags(cmd.Flags())

	return cmd
}

func newFetchTimesCmd() *cobra.Command {
	var clockifyOptions flagutil.ClockifyOptions
	opts := timesheet.Options{}
	var details, dayCount bool

	cmd := &cobra.Command{
		Use:   "fetch-times",
		Short: "Aggregate tracked time into uploadable records",
		Long: `Fetch the time entries of the requested window from Clockify, aggregate
them into per-day totals and per-issue work records, show the result, and
keep it as the snapshot the upload subcommand works from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			clockifyOptions.Resolve(cfg)
			if err := clockifyOptions.Validate(); err != nil {
				return err
			}
			opts.WorkspaceID = clockifyOptions.WorkspaceID
			opts.UserID = clockifyOptions.UserID

			client := clockify.NewClient(clockifyOptions.Endpoint, clockifyOptions.APIKey)
			engine := timesheet.NewEngine(client, cfg)

			sheet, err := engine.Build(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("cannot aggregate time entries: %w", err)
			}

			dataDir, err := storage.DefaultDataDir()
			if err != nil {
				return err
			}
			if err := storage.NewStore(dataDir).SaveSheet(sheet); err != nil {
				return fmt.Errorf("cannot save timesheet snapshot: %w", err)
			}

			timesheet.NewPresenter(cfg.WorkTime.DefaultHours).Render(sheet, details, dayCount)
			return nil
		},
	}

	clockifyOptions.AddPFlags(cmd.Flags())
	cmd.Flags().IntVar(&opts.DaysBack, "days-back", 0, "Widen the window this many days into the past")
	cmd.Flags().StringVar(&opts.SpecificDay, "day", "", "Aggregate this day (YYYY-MM-DD) instead of today")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 150, "Clockify page size for the time-entries call")
	cmd.Flags().StringVar(&opts.ProjectFilter, "project", "", "Only aggregate entries whose project name contains this string")
	cmd.Flags().StringVar(&opts.TaskFilter, "task", "", "Blank out task names not containing this string")
	cmd.Flags().StringVar(&opts.IssueFilter, "issue", "", "Only keep per-issue records whose issue id contains this string")
	cmd.Flags().BoolVar(&opts.Combine, "combine", false, "Merge same-day entries of one task into a single record")
	cmd.Flags().BoolVar(&opts.Buffer, "buffer", false, "Book the gap to the daily target on the configured default issue")
	cmd.Flags().BoolVar(&details, "details", true, "Show the per-issue records")
	cmd.Flags().BoolVar(&dayCount, "day-count", true, "Show the per-day worked/rest summary")

	return cmd
}

func newUploadCmd() *cobra.Command {
	var youtrackOptions flagutil.YouTrackOptions
	var keepSnapshot bool

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload the aggregated records to YouTrack",
		Long: `Read the snapshot written by fetch-times and create one YouTrack work item
per aggregated record. Records already present on the tracker are skipped, so
an interrupted upload can be re-run. The snapshot is removed after a fully
successful pass.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			youtrackOptions.Resolve(cfg)
			if err := youtrackOptions.Validate(); err != nil {
				return err
			}

			dataDir, err := storage.DefaultDataDir()
			if err != nil {
				return err
			}
			store := storage.NewStore(dataDir)

			sheet, err := store.LoadSheet()
			if err != nil {
				return fmt.Errorf("cannot load timesheet snapshot: %w", err)
			}
			if sheet == nil || sheet.Len() == 0 {
				logrus.Info("there is nothing to upload, run fetch-times first")
				return nil
			}

			client := youtrack.NewClient(
				youtrackOptions.Endpoint, youtrackOptions.Suffix, youtrackOptions.APIKey,
				cfg.Location, youtrack.TerminalResolver{},
			)
			if err := client.Upload(cmd.Context(), sheet); err != nil {
				return fmt.Errorf("upload failed, snapshot kept for a re-run: %w", err)
			}

			if keepSnapshot {
				return nil
			}
			return store.DeleteSheet()
		},
	}

	youtrackOptions.AddPFlags(cmd.Flags())
	cmd.Flags().BoolVar(&keepSnapshot, "keep-snapshot", false, "Keep the snapshot after a successful upload")

	return cmd
}

func newRemainingDaysCmd() *cobra.Command {
	var clockifyOptions flagutil.ClockifyOptions
	var year, month, freeDays, illnessDays int

	cmd := &cobra.Command{
		Use:   "remaining-days",
		Short: "Show how much of the month's work time is still open",
		Long: `Sum the month's tracked time and compare it against the month's target:
eight hours per weekday, minus public holidays of the configured region and
any taken free or illness days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			clockifyOptions.Resolve(cfg)
			if err := clockifyOptions.Validate(); err != nil {
				return err
			}

			if year == 0 || month == 0 {
				now := time.Now().In(cfg.Location)
				if year == 0 {
					year = now.Year()
				}
				if month == 0 {
					month = int(now.Month())
				}
			}

			client := clockify.NewClient(clockifyOptions.Endpoint, clockifyOptions.APIKey)
			calculator := remaining.NewCalculator(client, cfg)

			report, err := calculator.Calculate(cmd.Context(),
				clockifyOptions.WorkspaceID, clockifyOptions.UserID, year, month, freeDays, illnessDays)
			if err != nil {
				return fmt.Errorf("cannot calculate remaining time: %w", err)
			}

			logrus.Info(report.String())
			return nil
		},
	}

	clockifyOptions.AddPFlags(cmd.Flags())
	cmd.Flags().IntVar(&year, "year", 0, "Year to inspect (defaults to the current one)")
	cmd.Flags().IntVar(&month, "month", 0, "Month to inspect (defaults to the current one)")
	cmd.Flags().IntVar(&freeDays, "free-days", 0, "Taken free days in the month")
	cmd.Flags().IntVar(&illnessDays, "illness-days", 0, "Illness days in the month")

	return cmd
}

func newPortalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portal",
		Short: "Interact with the employer self-service portal",
	}

	cmd.AddCommand(newPortalUploadCmd())

	return cmd
}

func newPortalUploadCmd() *cobra.Command {
	var year, month, day int
	var order string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Book the standard working day on the portal",
		Long: `Log in to the employer portal, check the month's attendance table, and book
the standard working day (08:00-17:00 with a one hour break) for the given
date unless it is already recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Portal.URL == "" {
				return fmt.Errorf("%w: no portal URL configured", flagutil.ErrInvalidEndpoint)
			}

			if year == 0 || month == 0 || day == 0 {
				now := time.Now().In(cfg.Location)
				if year == 0 {
					year = now.Year()
				}
				if month == 0 {
					month = int(now.Month())
				}
				if day == 0 {
					day = now.Day()
				}
			}

			client, err := portal.NewClient(cfg)
			if err != nil {
				return err
			}
			return client.Upload(cmd.Context(), year, month, day, order)
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Year to book (defaults to today)")
	cmd.Flags().IntVar(&month, "month", 0, "Month to book (defaults to today)")
	cmd.Flags().IntVar(&day, "day", 0, "Day to book (defaults to today)")
	cmd.Flags().StringVar(&order, "order", "", "Order number to book the time on")
	_ = cmd.MarkFlagRequired("order")

	return cmd
}
