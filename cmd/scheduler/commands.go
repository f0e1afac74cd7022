package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/item-scheduler/internal/application"
	"github.com/example/item-scheduler/internal/ical"
	"github.com/example/item-scheduler/internal/recurrence"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), *configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.storage.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %s (%d applied, %d pending)\n",
				status.CurrentVersion, len(status.AppliedMigrations), status.PendingCount)
			return nil
		},
	}
}

func newProjectCmd(configPath *string) *cobra.Command {
	var (
		from, to         string
		asJSON           bool
		includeCompleted bool
	)

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Print the agenda for a date range",
		Long: `Print every occurrence between --from and --to inclusive.
Without --from the range starts today; without --to it spans a week.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), *configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			start, end, err := parseRange(from, to, a.service.Today())
			if err != nil {
				return err
			}
			agenda, err := a.service.ProjectRange(cmd.Context(), application.ProjectRangeParams{
				From:             start,
				To:               end,
				IncludeCompleted: includeCompleted,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return writeAgendaJSON(cmd.OutOrStdout(), agenda)
			}
			writeAgendaText(cmd.OutOrStdout(), agenda)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	cmd.Flags().BoolVar(&includeCompleted, "include-completed", false, "include completed occurrences")
	return cmd
}

func newExportCmd(configPath *string) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write dated items as iCalendar to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), *configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			var start, end recurrence.Date
			if from != "" {
				if start, err = recurrence.ParseDate(from); err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
			}
			if to != "" {
				if end, err = recurrence.ParseDate(to); err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
			}

			cal, err := a.service.Calendar(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			return ical.NewExporter(a.location, ical.WithLogger(a.logger)).Export(cmd.OutOrStdout(), cal)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "only items on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "only items on or before this date (YYYY-MM-DD)")
	return cmd
}

func parseRange(from, to string, today recurrence.Date) (recurrence.Date, recurrence.Date, error) {
	start := today
	if from != "" {
		d, err := recurrence.ParseDate(from)
		if err != nil {
			return recurrence.Date{}, recurrence.Date{}, fmt.Errorf("invalid --from: %w", err)
		}
		start = d
	}
	end := start.AddDays(6)
	if to != "" {
		d, err := recurrence.ParseDate(to)
		if err != nil {
			return recurrence.Date{}, recurrence.Date{}, fmt.Errorf("invalid --to: %w", err)
		}
		end = d
	}
	return start, end, nil
}

type projectedEntry struct {
	Date         string   `json:"date"`
	EndDate      string   `json:"end_date,omitempty"`
	Time         string   `json:"time,omitempty"`
	Title        string   `json:"title"`
	Source       string   `json:"source"`
	ItemID       string   `json:"item_id"`
	SeriesID     string   `json:"series_id,omitempty"`
	OriginalDate string   `json:"original_date,omitempty"`
	Priority     string   `json:"priority"`
	Kind         string   `json:"kind"`
	Completed    bool     `json:"completed"`
	Alerts       []string `json:"alerts,omitempty"`
}

func toProjectedEntry(entry application.AgendaEntry) projectedEntry {
	out := projectedEntry{
		Date:      entry.Date.String(),
		Title:     entry.Title,
		Source:    string(entry.Source),
		ItemID:    entry.ItemID,
		SeriesID:  entry.SeriesID,
		Priority:  string(entry.Priority),
		Kind:      string(entry.Kind),
		Completed: entry.IsCompleted,
	}
	if entry.EndDate.After(entry.Date) {
		out.EndDate = entry.EndDate.String()
	}
	if entry.DueTime != nil {
		out.Time = entry.DueTime.String()
	}
	if !entry.OriginalDate.IsZero() {
		out.OriginalDate = entry.OriginalDate.String()
	}
	for _, at := range entry.Alerts {
		out.Alerts = append(out.Alerts, at.Format(time.RFC3339))
	}
	return out
}

func writeAgendaJSON(w io.Writer, agenda application.Agenda) error {
	entries := make([]projectedEntry, 0, len(agenda.Entries))
	for _, entry := range agenda.Entries {
		entries = append(entries, toProjectedEntry(entry))
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

func writeAgendaText(w io.Writer, agenda application.Agenda) {
	if len(agenda.Entries) == 0 {
		fmt.Fprintf(w, "no occurrences between %s and %s\n", agenda.From, agenda.To)
		return
	}
	for _, entry := range agenda.Entries {
		e := toProjectedEntry(entry)
		at := e.Time
		if at == "" {
			at = "--:--"
		}
		var marks []string
		if e.Source != string(application.SourceSingle) {
			marks = append(marks, e.Source)
		}
		if e.Completed {
			marks = append(marks, "done")
		}
		line := fmt.Sprintf("%s %s  %s", e.Date, at, e.Title)
		if len(marks) > 0 {
			line += "  [" + strings.Join(marks, ", ") + "]"
		}
		fmt.Fprintln(w, line)
	}
	if agenda.Truncated {
		fmt.Fprintln(w, "(some series were truncated)")
	}
}
