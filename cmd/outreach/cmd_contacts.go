package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"outreach/internal/model"
)

var (
	contactsSheet  string
	contactsRows   int
	contactsOut    string
	contactsDelete bool
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Inspect and export the contact sheet",
}

var contactsPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the first rows of the contact sheet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := currentEmail()
		if err != nil {
			return err
		}
		client, err := newBackend()
		if err != nil {
			return err
		}
		sheet, err := sheetURLFor(cmd.Context(), client, email, contactsSheet)
		if err != nil {
			return err
		}
		n := contactsRows
		if n <= 0 {
			n = cfg.PreviewRows
		}
		rows, err := client.SheetPreview(cmd.Context(), sheet, n)
		if err != nil {
			return err
		}
		return printRows(cmd.OutOrStdout(), rows)
	},
}

var contactsDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Refresh the contact list and save it as a spreadsheet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := currentEmail()
		if err != nil {
			return err
		}
		client, err := newBackend()
		if err != nil {
			return err
		}
		sheet, err := sheetURLFor(cmd.Context(), client, email, contactsSheet)
		if err != nil {
			return err
		}
		action := ""
		if contactsDelete {
			action = "delete"
		}
		d, err := client.DownloadContacts(cmd.Context(), email, sheet, action)
		if err != nil {
			return err
		}
		defer d.Body.Close()

		out := contactsOut
		if out == "" {
			out = d.Filename
		}
		if info, err := os.Stat(out); err == nil && info.IsDir() {
			out = filepath.Join(out, d.Filename)
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		n, err := io.Copy(f, d.Body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s (%d bytes)\n", out, n)
		return nil
	},
}

func printRows(w io.Writer, rows []model.Row) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "The sheet has no contacts.")
		return nil
	}
	header := model.Header(rows)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, h := range header {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	for _, r := range rows {
		for i, col := range header {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, r.Text(col))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func init() {
	contactsCmd.PersistentFlags().StringVar(&contactsSheet, "sheet", "", "Google Sheet URL (default: the saved one)")
	contactsPreviewCmd.Flags().IntVarP(&contactsRows, "rows", "n", 0, "rows to show (default preview_rows)")
	contactsDownloadCmd.Flags().StringVarP(&contactsOut, "out", "o", "", "output file or directory")
	contactsDownloadCmd.Flags().BoolVar(&contactsDelete, "delete-processed", false, "also clear processed screenshots on the backend")
	contactsCmd.AddCommand(contactsPreviewCmd, contactsDownloadCmd)
}
