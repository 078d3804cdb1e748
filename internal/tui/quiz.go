package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"outreach/internal/quiz"
)

// optionItem is one answer choice in the quiz list.
type optionItem struct {
	letter string
	text   string
}

func (o optionItem) FilterValue() string { return o.text }
func (o optionItem) Title() string       { return o.letter + ". " + o.text }
func (o optionItem) Description() string { return "" }

// QuizModel asks the questions of a quiz.Session one at a time.
type QuizModel struct {
	session  *quiz.Session
	options  list.Model
	feedback string
	correct  bool
	answered bool
	width    int
}

// NewQuizModel returns a model over session.
func NewQuizModel(session *quiz.Session) *QuizModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	l := list.New(nil, delegate, 80, 10)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	m := &QuizModel{session: session, options: l}
	m.loadQuestion()
	return m
}

// Score returns the correct answers so far and the number of questions.
func (m *QuizModel) Score() (int, int) {
	return m.session.Score(), len(m.session.Questions)
}

func (m *QuizModel) loadQuestion() {
	q, ok := m.session.Current()
	if !ok {
		m.options.SetItems(nil)
		return
	}
	items := make([]list.Item, len(q.Options))
	for i, opt := range q.Options {
		items[i] = optionItem{letter: string(rune('A' + i)), text: opt}
	}
	m.options.SetItems(items)
	m.options.Select(0)
	m.options.Title = fmt.Sprintf("Question %d of %d · %s", m.session.Index()+1, len(m.session.Questions), q.Subject)
	m.options.SetHeight(len(items) + 4)
}

func (m *QuizModel) Init() tea.Cmd { return nil }

func (m *QuizModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.options.SetWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "enter":
			if m.session.Done() && !m.answered {
				return m, tea.Quit
			}
			if m.answered {
				m.answered = false
				m.feedback = ""
				m.loadQuestion()
				return m, nil
			}
			item, ok := m.options.SelectedItem().(optionItem)
			if !ok {
				return m, nil
			}
			q, _ := m.session.Current()
			m.correct = m.session.Answer(item.text)
			m.answered = true
			if m.correct {
				m.feedback = "Correct!"
			} else {
				m.feedback = "Wrong. The answer is: " + q.Answer
			}
			return m, nil
		default:
			if !m.answered && len(key) == 1 && key[0] >= 'a' && key[0] < 'a'+byte(len(m.options.Items())) {
				m.options.Select(int(key[0] - 'a'))
				return m, nil
			}
		}
	}

	if m.answered {
		return m, nil
	}
	var cmd tea.Cmd
	m.options, cmd = m.options.Update(msg)
	return m, cmd
}

func (m *QuizModel) View() string {
	if m.session.Done() && !m.answered {
		return m.resultView()
	}
	var b strings.Builder
	q := m.session.Questions[min(m.answeredIndex(), len(m.session.Questions)-1)]
	b.WriteString(titleStyle.Render(q.Question))
	b.WriteString("\n")
	b.WriteString(m.options.View())
	if m.feedback != "" {
		b.WriteString("\n")
		if m.correct {
			b.WriteString(okStyle.Render(m.feedback))
		} else {
			b.WriteString(errorStyle.Render(m.feedback))
		}
	}
	b.WriteString("\n")
	if m.answered {
		if m.session.Done() {
			b.WriteString(footerStyle.Render("enter: see score  q: quit"))
		} else {
			b.WriteString(footerStyle.Render("enter: next question  q: quit"))
		}
	} else {
		b.WriteString(footerStyle.Render("↑/↓ or a-d: choose  enter: answer  q: quit"))
	}
	return b.String()
}

// answeredIndex is the question on screen: the one just answered while
// feedback is shown, otherwise the current one.
func (m *QuizModel) answeredIndex() int {
	if m.answered {
		return m.session.Index() - 1
	}
	return m.session.Index()
}

func (m *QuizModel) resultView() string {
	score, total := m.Score()
	return titleStyle.Render(fmt.Sprintf("You scored %d out of %d", score, total)) + "\n" +
		footerStyle.Render("enter: quit")
}
