package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/smazurov/devbooster/internal/config"
	"github.com/smazurov/devbooster/internal/history"
	"github.com/smazurov/devbooster/internal/logging"
)

// CreateHistoryCmd creates the history command.
func CreateHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sessions",
		Long:  `Shows the most recent sessions, newest first. Use --instance to show one instance only.`,
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *config.Options) {
			logger := logging.GetLogger("history")

			store, err := history.Open(opts.ResolvedHistoryPath())
			if err != nil {
				logger.Error("Failed to open session history", "path", opts.ResolvedHistoryPath(), "error", err)
				os.Exit(1)
			}
			defer store.Close()

			var records []history.Record
			if opts.Instance != "" {
				records, err = store.ForInstance(cmd.Context(), opts.Instance, limit)
			} else {
				records, err = store.Recent(cmd.Context(), limit)
			}
			if err != nil {
				logger.Error("Failed to read session history", "error", err)
				os.Exit(1)
			}

			renderHistory(cmd.OutOrStdout(), records, time.Now())
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to show")
	return cmd
}

func renderHistory(w io.Writer, records []history.Record, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No sessions")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Session", "Instance", "Port", "Started", "Duration", "End", "Exit"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, rec := range records {
		id := rec.ID
		if len(id) > 8 {
			id = id[:8]
		}

		duration, reason := "-", "running"
		if rec.EndedAt != nil {
			duration = rec.Duration().Round(time.Second).String()
			reason = rec.EndReason
		}

		exit := "-"
		if rec.ExitCode != nil {
			exit = strconv.Itoa(*rec.ExitCode)
		}

		table.Append([]string{
			id,
			rec.Instance,
			rec.Port,
			humanize.RelTime(rec.StartedAt, now, "ago", "from now"),
			duration,
			reason,
			exit,
		})
	}
	table.Render()
}
