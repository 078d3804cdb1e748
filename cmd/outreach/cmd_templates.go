package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"outreach/internal/model"
	"outreach/internal/templates"
)

var (
	templatesLocal bool
	fillValues     []string
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage email templates",
	Long: `Templates live on the backend, keyed by account. --local works on the
dashboard's template directory instead.`,
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := listTemplates(cmd)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No templates.")
			return nil
		}
		for _, t := range list {
			marker := ""
			if t.IsDefault {
				marker = " (default)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s  [%s]\n", t.Name, marker, strings.Join(templates.Placeholders(t.Content), " "))
		}
		return nil
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show name",
	Short: "Print a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := findTemplate(cmd, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Content)
		return nil
	},
}

var templatesFillCmd = &cobra.Command{
	Use:   "fill name",
	Short: "Print a template with placeholders filled in",
	Long: `Replaces [PLACEHOLDER] tokens with --set values, for checking a template
before a send:

  outreach templates fill "Intro.txt" --set LAST_NAME=Lovelace --set COMPANY=Acme`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := findTemplate(cmd, args[0])
		if err != nil {
			return err
		}
		values := make(map[string]string, len(fillValues))
		for _, kv := range fillValues {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("expected NAME=value, got %q", kv)
			}
			values[strings.ToUpper(strings.TrimSpace(k))] = v
		}
		fmt.Fprintln(cmd.OutOrStdout(), templates.Fill(t.Content, values))
		return nil
	},
}

var templatesUploadCmd = &cobra.Command{
	Use:   "upload file.txt",
	Short: "Upload a .txt template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		name := filepath.Base(path)
		if !strings.EqualFold(filepath.Ext(name), templates.Ext) {
			return fmt.Errorf("%s: only %s files can be uploaded", name, templates.Ext)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		if templatesLocal {
			store, err := templates.NewStore(cfg.TemplatesDir, logger)
			if err != nil {
				return err
			}
			if err := store.Save(name, bytes.NewReader(data)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s to %s\n", name, store.Dir())
			return nil
		}

		email, err := currentEmail()
		if err != nil {
			return err
		}
		client, err := newBackend()
		if err != nil {
			return err
		}
		t, err := client.UploadTemplate(cmd.Context(), email, name, bytes.NewReader(data))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Uploaded %s\n", t.Name)
		return nil
	},
}

var templatesDeleteCmd = &cobra.Command{
	Use:   "delete name",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if templatesLocal {
			store, err := templates.NewStore(cfg.TemplatesDir, logger)
			if err != nil {
				return err
			}
			if !strings.EqualFold(filepath.Ext(name), templates.Ext) {
				name += templates.Ext
			}
			if err := store.Delete(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", name)
			return nil
		}

		email, err := currentEmail()
		if err != nil {
			return err
		}
		client, err := newBackend()
		if err != nil {
			return err
		}
		deleted, err := client.DeleteTemplate(cmd.Context(), email, strings.TrimSuffix(name, templates.Ext))
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("template %q not found", name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", name)
		return nil
	},
}

func listTemplates(cmd *cobra.Command) ([]model.Template, error) {
	if templatesLocal {
		store, err := templates.NewStore(cfg.TemplatesDir, logger)
		if err != nil {
			return nil, err
		}
		return store.List()
	}
	email, err := currentEmail()
	if err != nil {
		return nil, err
	}
	client, err := newBackend()
	if err != nil {
		return nil, err
	}
	return client.ListTemplates(cmd.Context(), email)
}

// findTemplate matches name with or without the .txt extension.
func findTemplate(cmd *cobra.Command, name string) (model.Template, error) {
	list, err := listTemplates(cmd)
	if err != nil {
		return model.Template{}, err
	}
	want := strings.TrimSuffix(name, templates.Ext)
	for _, t := range list {
		if strings.EqualFold(strings.TrimSuffix(t.Name, templates.Ext), want) {
			return t, nil
		}
	}
	return model.Template{}, fmt.Errorf("%w: %s", templates.ErrNotFound, name)
}

func init() {
	templatesCmd.PersistentFlags().BoolVar(&templatesLocal, "local", false, "use the local template directory")
	templatesFillCmd.Flags().StringArrayVar(&fillValues, "set", nil, "placeholder value as NAME=value (repeatable)")
	templatesCmd.AddCommand(templatesListCmd, templatesShowCmd, templatesFillCmd, templatesUploadCmd, templatesDeleteCmd)
}
