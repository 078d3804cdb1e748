package main

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"outreach/internal/quiz"
	"outreach/internal/tui"
)

var (
	quizSubject string
	quizCount   int
)

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Practice multiple-choice finance interview questions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bank, err := quiz.Builtin()
		if err != nil {
			return err
		}
		qs := bank.Draw(quizSubject, quizCount, nil)
		if len(qs) == 0 {
			return fmt.Errorf("no questions for subject %q (have: %v)", quizSubject, bank.Subjects)
		}

		m := tui.NewQuizModel(quiz.NewSession(qs))
		if _, err := tea.NewProgram(m, tea.WithContext(cmd.Context())).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("run interface: %w", err)
		}
		score, total := m.Score()
		fmt.Fprintf(cmd.OutOrStdout(), "You scored %d out of %d\n", score, total)
		return nil
	},
}

func init() {
	quizCmd.Flags().StringVarP(&quizSubject, "subject", "s", "", "only ask questions on this subject")
	quizCmd.Flags().IntVarP(&quizCount, "count", "n", quiz.DefaultCount, "number of questions")
}
