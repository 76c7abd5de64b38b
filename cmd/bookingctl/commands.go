package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"bookings/internal/app"
	"bookings/internal/database"
	"bookings/internal/export"
	"bookings/internal/models"
	"bookings/internal/service"

	"github.com/spf13/cobra"
)

func newLocationsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "List configured locations and their calendars",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, closer, err := opts.load()
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME\tALIASES\tTEST RIDE\tSERVICE")
			for _, loc := range cfg.Locations {
				testRide, _ := loc.Calendar(models.BookingTypeTestRide)
				svc, _ := loc.Calendar(models.BookingTypeService)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", loc.Code, loc.Name, strings.Join(loc.Aliases, ","), testRide, svc)
			}
			return tw.Flush()
		},
	}
}

type slotFlags struct {
	bookingType string
	location    string
	date        string
	clock       string
	duration    int
}

func (f *slotFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.bookingType, "type", string(models.BookingTypeService), "booking type (test_ride or service)")
	cmd.Flags().StringVar(&f.location, "location", "", "location code, name or alias")
	cmd.Flags().StringVar(&f.date, "date", "", "date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.clock, "time", "", "start time HH:MM")
	cmd.Flags().IntVar(&f.duration, "duration", 0, "duration in minutes (0 = default)")
	_ = cmd.MarkFlagRequired("location")
}

func (f *slotFlags) query() service.SlotQuery {
	bt, _ := models.ParseBookingType(f.bookingType)
	return service.SlotQuery{
		Type:            bt,
		Location:        f.location,
		Date:            f.date,
		Time:            f.clock,
		DurationMinutes: f.duration,
	}
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var flags slotFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a slot is free",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Service.CheckAvailability(cmd.Context(), flags.query())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

func newSuggestCmd(opts *rootOptions) *cobra.Command {
	var (
		flags      slotFlags
		days       int
		maxResults int
	)
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "List free slots, nearest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				q := flags.query()
				q.Days = days
				q.Max = maxResults
				suggestions, err := a.Service.Suggest(cmd.Context(), q)
				if err != nil {
					return err
				}
				for _, s := range suggestions {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", s.Date, s.Time)
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&days, "days", 0, "days to scan (0 = configured default)")
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum suggestions (0 = configured default)")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		from string
		to   string
		out  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the booking journal to XLSX",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := opts.load()
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}
			loc, err := cfg.Booking.TimeLocation()
			if err != nil {
				return err
			}

			fromDay, err := time.ParseInLocation(models.DateFormat, from, loc)
			if err != nil {
				return errors.New("invalid --from (want YYYY-MM-DD)")
			}
			toDay, err := time.ParseInLocation(models.DateFormat, to, loc)
			if err != nil {
				return errors.New("invalid --to (want YYYY-MM-DD)")
			}
			if toDay.Before(fromDay) {
				return errors.New("--to must not be before --from")
			}

			db, err := database.NewDB(cfg.Database.Path, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.ListBookings(cmd.Context(), models.JournalFilter{From: fromDay, To: toDay.AddDate(0, 0, 1)})
			if err != nil {
				return err
			}

			if out == "" {
				out = cfg.Exports.Path
			}
			path, err := export.Save(out, entries, fromDay, toDay, loc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bookings)\n", path, len(entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&out, "out", "", "output directory (default exports.path)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newProbeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Insert a 30 minute test event into every configured calendar",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				results, err := a.Service.ProbeCalendars(cmd.Context())
				keys := make([]string, 0, len(results))
				for k := range results {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", k, results[k])
				}
				return err
			})
		},
	}
}

func newBackupCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the journal database and prune old snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := opts.load()
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}

			db, err := database.NewDB(cfg.Database.Path, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			backupCfg := cfg.Backup
			if out != "" {
				backupCfg.StoragePath = out
			}
			path, err := db.Backup(cmd.Context(), backupCfg.StoragePath)
			if err != nil {
				return err
			}
			removed, err := database.NewBackupService(db, backupCfg, logger).Prune()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d old snapshots removed)\n", path, removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output directory (default backup.storage_path)")
	return cmd
}

func newNotificationsCmd(opts *rootOptions) *cobra.Command {
	var (
		failed bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List queued staff notifications (due now, or dead-lettered with --failed)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := opts.load()
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}

			db, err := database.NewDB(cfg.Database.Path, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			var tasks []models.NotificationTask
			if failed {
				tasks, err = db.GetFailedNotificationTasks(cmd.Context())
			} else {
				tasks, err = db.GetPendingNotificationTasks(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tRETRIES\tCREATED\tLAST ERROR")
			for _, task := range tasks {
				lastErr := ""
				if task.LastError != nil {
					lastErr = *task.LastError
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
					task.ID, task.BookingType, task.Status, task.RetryCount,
					task.CreatedAt.UTC().Format(time.RFC3339), lastErr)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "list notifications that exhausted their retries")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum due notifications to list")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
