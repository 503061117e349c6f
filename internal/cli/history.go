package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/bookload/internal/metrics"
	"github.com/wesleyorama2/bookload/internal/report"
	"github.com/wesleyorama2/bookload/internal/storage"
)

func newHistoryCmd(global *globalOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, show and compare archived runs",
	}
	cmd.PersistentFlags().StringVar(&path, "history", "", "History database (default ~/.bookload/history.db)")

	open := func() (*storage.Store, error) {
		p := path
		if p == "" {
			var err error
			if p, err = storage.DefaultPath(); err != nil {
				return nil, fmt.Errorf("failed to locate history database: %w", err)
			}
		}
		return storage.Open(p)
	}

	cmd.AddCommand(newHistoryListCmd(open))
	cmd.AddCommand(newHistoryShowCmd(global, open))
	cmd.AddCommand(newHistoryCompareCmd(open))
	cmd.AddCommand(newHistoryDeleteCmd(open))
	return cmd
}

type storeOpener func() (*storage.Store, error)

func newHistoryListCmd(open storeOpener) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(limit)
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}

func printEntries(w io.Writer, entries []storage.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No archived runs.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tNAME\tDURATION\tVUS\tRESULT")
	for _, e := range entries {
		verdict := "passed"
		if !e.Passed {
			verdict = "failed"
		}
		if e.StopReason != "" && e.StopReason != "completed" {
			verdict += " (" + e.StopReason + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.RunID,
			e.StartTime.Local().Format("2006-01-02 15:04:05"),
			e.Name,
			e.Duration.Round(time.Second),
			e.VUsMax,
			verdict)
	}
	tw.Flush()
}

func newHistoryShowCmd(global *globalOptions, open storeOpener) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print the summary of an archived run (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			var snap *report.Snapshot
			if len(args) == 0 {
				snap, err = store.Latest()
			} else {
				snap, err = store.Get(args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return report.WriteJSON(out, snap)
			}
			report.NewConsole(out, report.ColorsFor(out, global.noColor)).PrintSummary(snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON summary")
	return cmd
}

func newHistoryCompareCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <baseline-id> [current-id]",
		Short: "Compare key metrics of two runs (default current: the latest)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			baseline, err := store.Get(args[0])
			if err != nil {
				return err
			}
			var current *report.Snapshot
			if len(args) == 2 {
				current, err = store.Get(args[1])
			} else {
				current, err = store.Latest()
			}
			if err != nil {
				return err
			}

			printComparison(cmd.OutOrStdout(), storage.Compare(baseline, current), current)
			return nil
		},
	}
}

func printComparison(w io.Writer, cmp storage.Comparison, current *report.Snapshot) {
	fmt.Fprintf(w, "baseline: %s\ncurrent:  %s\n\n", cmp.Baseline, cmp.Current)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tSTAT\tBASELINE\tCURRENT\tCHANGE")
	for _, d := range cmp.Deltas {
		kind := current.Metrics[d.Metric].Kind
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			d.Metric, d.Stat,
			formatStat(kind, d.Stat, d.Baseline),
			formatStat(kind, d.Stat, d.Current),
			formatChange(d.Change))
	}
	tw.Flush()
}

func formatStat(kind metrics.Kind, stat string, v *float64) string {
	if v == nil {
		return "N/A"
	}
	switch {
	case stat == "rate":
		return strconv.FormatFloat(*v*100, 'f', 2, 64) + "%"
	case kind == metrics.KindTrend:
		return strconv.FormatFloat(*v, 'f', 2, 64) + "ms"
	default:
		return strconv.FormatFloat(*v, 'f', -1, 64)
	}
}

func formatChange(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+.1f%%", *v)
}

func newHistoryDeleteCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}
