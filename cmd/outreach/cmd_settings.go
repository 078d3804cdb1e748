package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"outreach/internal/model"
)

var settingsReveal bool

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the account settings stored by the backend",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every setting, secrets masked",
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
		uc, err := client.GetConfig(cmd.Context(), email)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, sec := range model.Sections {
			fmt.Fprintf(tw, "%s\n", sec.Name)
			for _, key := range sec.Fields {
				v, _ := uc.Field(key)
				switch {
				case v == "":
					v = "(not set)"
				case model.IsSensitive(key) && !settingsReveal:
					v = model.Mask(v)
				}
				fmt.Fprintf(tw, "  %s\t%s\n", key, v)
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if missing := uc.Missing(); len(missing) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "\nStill missing: %s\n", strings.Join(missing, ", "))
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Change one or more settings",
	Long: `Reads the current settings, applies each key=value pair and saves them.

Keys: ` + strings.Join(model.FormFields, ", "),
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := currentEmail()
		if err != nil {
			return err
		}
		client, err := newBackend()
		if err != nil {
			return err
		}
		uc, err := client.GetConfig(cmd.Context(), email)
		if err != nil {
			return err
		}
		changed, err := applySettings(&uc, args)
		if err != nil {
			return err
		}
		if err := client.SaveConfig(cmd.Context(), email, uc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s.\n", strings.Join(changed, ", "))
		return nil
	},
}

// applySettings parses key=value pairs into uc and returns the changed keys.
func applySettings(uc *model.UserConfig, pairs []string) ([]string, error) {
	var changed []string
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		key = strings.TrimSpace(key)
		if err := uc.SetField(key, value); err != nil {
			return nil, err
		}
		if key == model.KeyGoogleSheetURL && strings.TrimSpace(value) != "" {
			if _, err := model.SheetID(value); err != nil {
				return nil, err
			}
		}
		changed = append(changed, key)
	}
	return changed, nil
}

func init() {
	settingsShowCmd.Flags().BoolVar(&settingsReveal, "reveal", false, "print secrets in full")
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
}
