package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"outreach/internal/auth"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with Google",
	Long: `Opens the browser for Google sign-in and captures the redirect on a
loopback port. When no browser is available, paste the code or the full
redirect URL when prompted. The account is remembered for later commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := auth.NewGoogleOAuth(cfg.Google, "")
		if err != nil {
			return err
		}
		id, err := auth.LoginCLI(cmd.Context(), g, auth.LoginOptions{
			TokenPath: tokenPath(),
			In:        cmd.InOrStdin(),
			Out:       cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		if err := saveIdentity(id); err != nil {
			return fmt.Errorf("save identity: %w", err)
		}

		// Record the sign-in like the dashboard does; history is keyed by email.
		if db, err := openStore(); err == nil {
			if err := db.UpsertUser(cmd.Context(), id, nowUTC()); err != nil {
				logger.Warn("record sign-in", zap.Error(err))
			}
			db.Close()
		}

		name := id.Name
		if name == "" {
			name = id.Email
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>\n", name, id.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the signed-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range []string{identityPath(), tokenPath()} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}
