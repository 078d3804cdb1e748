package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"outreach/internal/model"
)

var (
	historyCSV   bool
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past sends, or show the lines of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := currentEmail()
		if err != nil {
			return err
		}
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := cmd.Context()

		if len(args) == 1 {
			run, err := db.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if run.Email != email {
				return fmt.Errorf("run %s not found", args[0])
			}
			events, err := db.RunEvents(ctx, run.ID)
			if err != nil {
				return err
			}
			printRun(cmd.OutOrStdout(), run, events)
			return nil
		}

		runs, err := db.ListRuns(ctx, email, historyLimit)
		if err != nil {
			return err
		}
		if historyCSV {
			return writeRunsCSV(cmd.OutOrStdout(), runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sends yet.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTARTED\tKIND\tSENT\tFAILED\tSTATUS")
		for _, r := range runs {
			kind := "send"
			if r.Preview {
				kind = "preview"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
				r.ID, r.StartedAt.Local().Format(time.DateTime), kind, r.Sent, r.Failed, r.Status)
		}
		return tw.Flush()
	},
}

func writeRunsCSV(w io.Writer, runs []model.SendRun) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.RunCSVHeader); err != nil {
		return err
	}
	for _, r := range runs {
		if err := cw.Write(r.ToSlice()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func printRun(w io.Writer, run model.SendRun, events []model.RunEvent) {
	fmt.Fprintf(w, "Run %s (%s)\nSheet %s\nStarted %s\n", run.ID, run.Status, run.SheetURL, run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Total %d  Processed %d  Sent %d  Failed %d\n\n", run.Total, run.Processed, run.Sent, run.Failed)
	for _, ev := range events {
		mark := " "
		if ev.Type == "error" {
			mark = "✗"
		}
		fmt.Fprintf(w, "%4d %s %s\n", ev.Seq, mark, ev.Message)
	}
}

func init() {
	historyCmd.Flags().BoolVar(&historyCSV, "csv", false, "write the run list as CSV")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "runs to list")
}
