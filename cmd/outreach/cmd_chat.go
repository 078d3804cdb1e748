package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"outreach/internal/backend"
	"outreach/internal/model"
	"outreach/internal/store"
	"outreach/internal/tui"
)

const chatHistoryLimit = 20

var (
	chatInternet bool
	chatWidth    int
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Ask the finance interview tutor",
	Long: `With a message, asks once and prints the answer. Without one, starts a
conversation; type /clear to forget it and /quit to leave.

The conversation is shared with the dashboard's chat page.`,
	RunE: runChat,
}

var askCmd = &cobra.Command{
	Use:   "ask question",
	Short: "Get feedback on a free-form interview answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := currentEmail()
		if err != nil {
			return err
		}
		client, err := newBackend()
		if err != nil {
			return err
		}
		key, err := openAIKey(cmd.Context(), client, email)
		if err != nil {
			return err
		}
		question := strings.Join(args, " ")
		feedback, err := client.FreeAnswer(cmd.Context(), key, question)
		if err != nil {
			return err
		}
		if db, err := openStore(); err == nil {
			err = db.AppendChat(cmd.Context(), email, model.ChatModeFree,
				model.ChatMessage{Role: "user", Content: question},
				model.ChatMessage{Role: "assistant", Content: feedback})
			if err != nil {
				logger.Warn("save free answer", zap.Error(err))
			}
			db.Close()
		}
		fmt.Fprint(cmd.OutOrStdout(), tui.RenderMarkdown(feedback, chatWidth))
		return nil
	},
}

var referencesCmd = &cobra.Command{
	Use:   "references file.pdf...",
	Short: "Upload course PDFs the tutor answers from",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBackend()
		if err != nil {
			return err
		}
		var files []backend.File
		for _, path := range args {
			if !strings.EqualFold(filepath.Ext(path), ".pdf") {
				return fmt.Errorf("%s: only PDF files are accepted", path)
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			files = append(files, backend.File{Name: filepath.Base(path), Body: f})
		}
		out, err := client.UploadReferences(cmd.Context(), files)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Uploaded %d file(s)\n%s\n", len(files), out)
		return nil
	},
}

func runChat(cmd *cobra.Command, args []string) error {
	email, err := currentEmail()
	if err != nil {
		return err
	}
	client, err := newBackend()
	if err != nil {
		return err
	}
	key, err := openAIKey(cmd.Context(), client, email)
	if err != nil {
		return err
	}
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	mode := model.ChatModeCourse
	if chatInternet {
		mode = model.ChatModeInternet
	}
	c := &chatSession{client: client, db: db, key: key, email: email, mode: mode, out: cmd.OutOrStdout()}

	if len(args) > 0 {
		return c.ask(cmd.Context(), strings.Join(args, " "))
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	fmt.Fprintf(c.out, "Finance tutor (%s mode). /clear resets, /quit leaves.\n", mode)
	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(c.out, "> ")
		if !in.Scan() {
			fmt.Fprintln(c.out)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			if err := db.ClearChat(ctx, email, mode); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Conversation cleared.")
			continue
		}
		if err := c.ask(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}
}

type chatSession struct {
	client *backend.Client
	db     *store.SQLiteStore
	key    string
	email  string
	mode   string
	out    io.Writer
}

// ask sends the stored conversation plus text and records both turns.
func (c *chatSession) ask(ctx context.Context, text string) error {
	history, err := c.db.ChatHistory(ctx, c.email, c.mode, chatHistoryLimit)
	if err != nil {
		logger.Warn("load chat history", zap.Error(err))
	}
	user := model.ChatMessage{Role: "user", Content: text}
	answer, err := c.client.Chat(ctx, c.key, append(history, user), c.mode)
	if err != nil {
		return err
	}
	if err := c.db.AppendChat(ctx, c.email, c.mode, user, model.ChatMessage{Role: "assistant", Content: answer}); err != nil {
		logger.Warn("save chat turn", zap.Error(err))
	}
	fmt.Fprint(c.out, tui.RenderMarkdown(answer, chatWidth))
	return nil
}

func openAIKey(ctx context.Context, client *backend.Client, email string) (string, error) {
	uc, err := client.GetConfig(ctx, email)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(uc.OpenAIAPIKey) == "" {
		return "", fmt.Errorf("%w: set it with `outreach settings set openai_api_key=...`", backend.ErrNotConfigured)
	}
	return uc.OpenAIAPIKey, nil
}

func init() {
	chatCmd.Flags().BoolVar(&chatInternet, "internet", false, "let the tutor search the web instead of the course material")
	chatCmd.PersistentFlags().IntVar(&chatWidth, "width", 80, "wrap answers at this width")
	askCmd.Flags().IntVar(&chatWidth, "width", 80, "wrap answers at this width")
	chatCmd.AddCommand(referencesCmd)
}
