package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"outreach/internal/model"
	"outreach/internal/sendrun"
	"outreach/internal/store"
	"outreach/internal/stream"
	"outreach/internal/tui"
)

var (
	sendSheet   string
	sendCC      bool
	sendYes     bool
	sendPlain   bool
	sendPreview bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send the campaign to every contact in the sheet",
	Long: `Shows the first contacts, then streams the backend's progress while it
sends. Press p for a preview run (nothing is sent) or s to send.

--plain prints the progress as lines instead, for scripts and logs. In plain
mode --preview runs a preview, and a real send requires --yes.`,
	Args: cobra.NoArgs,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendSheet, "sheet", "", "Google Sheet URL (default: the saved one)")
	sendCmd.Flags().BoolVar(&sendCC, "cc", false, "cc yourself on every email")
	sendCmd.Flags().BoolVarP(&sendYes, "yes", "y", false, "skip the confirmation prompt")
	sendCmd.Flags().BoolVar(&sendPlain, "plain", false, "print progress lines instead of the interactive view")
	sendCmd.Flags().BoolVar(&sendPreview, "preview", false, "with --plain, run a preview only")
}

func runSend(cmd *cobra.Command, args []string) error {
	email, err := currentEmail()
	if err != nil {
		return err
	}
	client, err := newBackend()
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	sheet, err := sheetURLFor(ctx, client, email, sendSheet)
	if err != nil {
		return err
	}

	var recorder sendrun.Recorder
	db, err := openStore()
	if err != nil {
		logger.Warn("history disabled", zap.Error(err))
	} else {
		defer db.Close()
		recorder = db
	}

	if sendPlain {
		if !sendPreview && !sendYes {
			return errors.New("refusing to send without --yes (use --preview for a dry run)")
		}
		runner := sendrun.New(client, recorder, logger.Named("send"))
		req := model.SendRequest{Email: email, SheetURL: sheet, Confirmed: !sendPreview, UseCC: sendCC}
		return sendPlainRun(ctx, runner, req, cmd.OutOrStdout(), cmd.ErrOrStderr())
	}

	// Log lines would scribble over the full-screen view.
	runLogger := zap.NewNop()
	if verbose {
		runLogger = logger.Named("send")
	}
	m := tui.NewSendModel(ctx, client, sendrun.New(client, recorder, runLogger), tui.Options{
		Email:       email,
		SheetURL:    sheet,
		UseCC:       sendCC,
		PreviewRows: cfg.PreviewRows,
		AutoConfirm: sendYes,
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	m.SetProgram(p)
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run interface: %w", err)
	}
	sm, ok := final.(*tui.SendModel)
	if !ok {
		return nil
	}
	if sm.Err != nil {
		return sm.Err
	}
	if sm.Result != nil {
		printSummary(cmd.OutOrStdout(), *sm.Result)
	}
	return nil
}

// sendPlainRun streams a run as plain lines: log lines to out, errors to errOut.
func sendPlainRun(ctx context.Context, runner *sendrun.Runner, req model.SendRequest, out, errOut io.Writer) error {
	run, err := runner.Start(ctx, req)
	if err != nil {
		return err
	}
	res, err := run.Stream(ctx, func(u sendrun.Update) error {
		switch u.Effect {
		case stream.EffectToast:
			fmt.Fprintf(errOut, "✗ %s\n", lineText(u.Event))
		case stream.EffectPreview:
			fmt.Fprintf(out, "preview: %d contacts\n", u.Total)
		case stream.EffectLog, stream.EffectSent:
			fmt.Fprintln(out, lineText(u.Event))
		}
		return nil
	})
	printSummary(out, res)
	if err != nil && res.Run.Status != model.RunCanceled {
		return err
	}
	return nil
}

func lineText(ev stream.Event) string {
	if ev.Message != "" {
		return ev.Message
	}
	return ev.Raw
}

func printSummary(w io.Writer, res sendrun.Result) {
	verb := "Sent"
	if res.Run.Preview {
		verb = "Previewed"
	}
	fmt.Fprintf(w, "\n%s %d, failed %d, processed %d (%s)\n", verb, res.Run.Sent, res.Run.Failed, res.Run.Processed, res.Run.Status)
	if len(res.Errors) > 0 {
		fmt.Fprintf(w, "Errors:\n  %s\n", strings.Join(res.Errors, "\n  "))
	}
	if res.Run.ID != "" {
		fmt.Fprintf(w, "Run %s\n", res.Run.ID)
	}
}

var _ sendrun.Recorder = (*store.SQLiteStore)(nil)
