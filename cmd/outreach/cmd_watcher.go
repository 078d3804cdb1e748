package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var watcherCmd = &cobra.Command{
	Use:   "watcher",
	Short: "Control the backend's screenshot folder watcher",
	Long: `The watcher turns LinkedIn screenshots dropped in a folder into contact
rows. It runs on the backend; these commands start, stop and inspect it.`,
}

var watcherStartCmd = &cobra.Command{
	Use:   "start [folder]",
	Short: "Start watching a folder",
	Long: `Starts the watcher on folder. Without a folder the backend opens its
native folder picker.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := currentEmail()
		if err != nil {
			return err
		}
		client, err := newBackend()
		if err != nil {
			return err
		}

		var folder string
		if len(args) == 1 {
			folder, err = filepath.Abs(args[0])
			if err != nil {
				return err
			}
		} else {
			folder, err = client.SelectFolder(cmd.Context())
			if err != nil {
				return err
			}
			if folder == "" {
				return fmt.Errorf("no folder selected")
			}
		}

		res, err := client.StartWatcher(cmd.Context(), email, folder)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (%s)\n", folder, res.Status)
		return nil
	},
}

var watcherStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the watcher",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBackend()
		if err != nil {
			return err
		}
		res, err := client.StopWatcher(cmd.Context())
		if err != nil {
			return err
		}
		msg := res.Message
		if msg == "" {
			msg = res.Status
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

var watcherStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the watcher runs and what it processed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBackend()
		if err != nil {
			return err
		}
		st, err := client.WatcherStatus(cmd.Context())
		if err != nil {
			return err
		}
		state := "stopped"
		if st.IsRunning {
			state = "running"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Watcher %s, %d file(s) processed\n", state, len(st.ProcessedFiles))
		for _, f := range st.ProcessedFiles {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", f)
		}
		return nil
	},
}

var processImageCmd = &cobra.Command{
	Use:   "process screenshot.png",
	Short: "Extract a contact from one screenshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !strings.EqualFold(filepath.Ext(args[0]), ".png") {
			return fmt.Errorf("%s: only PNG screenshots are supported", args[0])
		}
		email, err := currentEmail()
		if err != nil {
			return err
		}
		client, err := newBackend()
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		msg, err := client.ProcessImage(cmd.Context(), email, filepath.Base(args[0]), f)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func init() {
	watcherCmd.AddCommand(watcherStartCmd, watcherStopCmd, watcherStatusCmd, processImageCmd)
}
