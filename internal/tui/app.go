package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"outreach/internal/model"
	"outreach/internal/sendrun"
	"outreach/internal/stream"
)

type viewState int

const (
	viewLoading   viewState = iota
	viewPreview             // contact table, waiting for a choice
	viewConfirm             // typing "yes" before a real send
	viewStreaming           // status feed running
	viewDone                // run finished
)

// Previewer fetches the first rows of the contact sheet.
type Previewer interface {
	SheetPreview(ctx context.Context, sheetURL string, rows int) ([]model.Row, error)
}

// Options configures a send session.
type Options struct {
	Email       string
	SheetURL    string
	UseCC       bool
	PreviewRows int
	// AutoConfirm skips typing "yes" before a real send.
	AutoConfirm bool
}

// SendModel previews the contact sheet, asks for confirmation, then shows the
// live status feed of the send.
type SendModel struct {
	ctx       context.Context
	cancel    context.CancelFunc
	previewer Previewer
	runner    *sendrun.Runner
	opts      Options

	Err    error
	status string
	view   viewState

	contacts table.Model
	confirm  textinput.Model
	spin     spinner.Model
	logView  viewport.Model
	lines    []string
	counters sendrun.Update
	running  bool
	quitting bool
	runID    string

	// Result is set once a run has finished.
	Result *sendrun.Result

	width, height int

	// send delivers messages from the streaming goroutine to Update.
	send func(tea.Msg)
}

// NewSendModel returns a model ready to be run by a tea.Program. ctx bounds
// every backend call it makes.
func NewSendModel(ctx context.Context, previewer Previewer, runner *sendrun.Runner, opts Options) *SendModel {
	ctx, cancel := context.WithCancel(ctx)

	ti := textinput.New()
	ti.Placeholder = "type yes to send"
	ti.CharLimit = 8

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(accentStyle))

	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 5
	}
	return &SendModel{
		ctx:       ctx,
		cancel:    cancel,
		previewer: previewer,
		runner:    runner,
		opts:      opts,
		status:    "Loading contact preview...",
		view:      viewLoading,
		contacts:  table.New(table.WithFocused(true), table.WithHeight(opts.PreviewRows+1)),
		confirm:   ti,
		spin:      sp,
		logView:   viewport.New(80, 12),
	}
}

// SetProgram stores the program so the streaming goroutine can send progress
// messages back to the Update loop.
func (m *SendModel) SetProgram(p *tea.Program) {
	m.send = p.Send
}

func (m *SendModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.loadPreviewCmd())
}

func (m *SendModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.contacts.SetWidth(msg.Width)
		m.logView.Width = msg.Width
		m.logView.Height = max(msg.Height-10, 5)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case previewLoadedMsg:
		if msg.err != nil {
			m.Err = msg.err
			m.status = "Could not load the contact sheet!"
			return m, tea.Quit
		}
		m.setContacts(msg.rows)
		m.view = viewPreview
		m.status = fmt.Sprintf("%d contacts shown from %s", len(msg.rows), m.opts.SheetURL)
		return m, nil

	case runStartedMsg:
		m.runID = msg.id
		return m, nil

	case streamUpdateMsg:
		m.applyUpdate(sendrun.Update(msg))
		return m, nil

	case runDoneMsg:
		m.running = false
		m.Result = &msg.result
		m.view = viewDone
		m.status = summaryLine(msg.result)
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil

	case runFailedMsg:
		m.running = false
		m.Err = msg.err
		m.view = viewPreview
		m.status = fmt.Sprintf("Send failed: %v", msg.err)
		return m, clearStatusAfter(4 * time.Second)

	case statusMsg:
		if string(msg) == "" && !m.running {
			m.status = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.view {
	case viewPreview:
		m.contacts, cmd = m.contacts.Update(msg)
	case viewConfirm:
		m.confirm, cmd = m.confirm.Update(msg)
	case viewStreaming, viewDone:
		m.logView, cmd = m.logView.Update(msg)
	}
	return m, cmd
}

func (m *SendModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		if m.running {
			m.quitting = true
			m.status = "Cancelling..."
			m.cancel()
			return m, nil
		}
		m.cancel()
		return m, tea.Quit
	}

	switch m.view {
	case viewLoading:
		if key == "q" || key == "esc" {
			m.cancel()
			return m, tea.Quit
		}

	case viewPreview:
		switch key {
		case "q", "esc":
			m.cancel()
			return m, tea.Quit
		case "p":
			return m.startRun(false)
		case "s", "enter":
			if m.opts.AutoConfirm {
				return m.startRun(true)
			}
			m.view = viewConfirm
			m.confirm.Reset()
			m.status = ""
			return m, m.confirm.Focus()
		}
		var cmd tea.Cmd
		m.contacts, cmd = m.contacts.Update(msg)
		return m, cmd

	case viewConfirm:
		switch key {
		case "esc":
			m.confirm.Blur()
			m.view = viewPreview
			return m, nil
		case "enter":
			if !strings.EqualFold(strings.TrimSpace(m.confirm.Value()), "yes") {
				m.status = `Type "yes" to send, or esc to go back`
				return m, nil
			}
			m.confirm.Blur()
			return m.startRun(true)
		}
		var cmd tea.Cmd
		m.confirm, cmd = m.confirm.Update(msg)
		return m, cmd

	case viewStreaming:
		switch key {
		case "q", "esc":
			m.status = "Cancelling..."
			m.cancel()
			return m, nil
		}
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)
		return m, cmd

	case viewDone:
		if key == "q" || key == "esc" || key == "enter" {
			m.cancel()
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *SendModel) startRun(confirmed bool) (tea.Model, tea.Cmd) {
	m.view = viewStreaming
	m.running = true
	m.lines = nil
	m.counters = sendrun.Update{}
	m.logView.SetContent("")
	if confirmed {
		m.status = "Sending emails..."
	} else {
		m.status = "Previewing emails..."
	}
	return m, tea.Batch(m.spin.Tick, m.runCmd(confirmed))
}

func (m *SendModel) applyUpdate(u sendrun.Update) {
	m.counters = u
	var line string
	switch u.Effect {
	case stream.EffectNone:
		return
	case stream.EffectPreview:
		var rows []model.Row
		if err := json.Unmarshal(u.Event.Data, &rows); err == nil {
			m.setContacts(rows)
		}
		line = mutedStyle.Render(fmt.Sprintf("preview: %d contacts", len(rows)))
	case stream.EffectToast:
		line = errorStyle.Render("✗ " + messageOf(u.Event))
		m.status = messageOf(u.Event)
	case stream.EffectSent:
		line = okStyle.Render(messageOf(u.Event))
	default:
		line = messageOf(u.Event)
	}
	m.lines = append(m.lines, line)
	m.logView.SetContent(strings.Join(m.lines, "\n"))
	m.logView.GotoBottom()
}

func messageOf(ev stream.Event) string {
	if ev.Message != "" {
		return ev.Message
	}
	return ev.Raw
}

func (m *SendModel) setContacts(rows []model.Row) {
	cols, data := contactTable(rows, m.width)
	m.contacts.SetRows(nil)
	m.contacts.SetColumns(cols)
	m.contacts.SetRows(data)
}

// Commands

func (m *SendModel) loadPreviewCmd() tea.Cmd {
	return func() tea.Msg {
		rows, err := m.previewer.SheetPreview(m.ctx, m.opts.SheetURL, m.opts.PreviewRows)
		return previewLoadedMsg{rows: rows, err: err}
	}
}

// runCmd opens the feed and hands it to a goroutine that streams updates back
// through m.send.
func (m *SendModel) runCmd(confirmed bool) tea.Cmd {
	req := model.SendRequest{
		Email:     m.opts.Email,
		SheetURL:  m.opts.SheetURL,
		Confirmed: confirmed,
		UseCC:     m.opts.UseCC,
	}
	send := m.send
	return func() tea.Msg {
		run, err := m.runner.Start(m.ctx, req)
		if err != nil {
			return runFailedMsg{err: err}
		}
		go func() {
			res, _ := run.Stream(m.ctx, func(u sendrun.Update) error {
				if send != nil {
					send(streamUpdateMsg(u))
				}
				return nil
			})
			if send != nil {
				send(runDoneMsg{result: res})
			}
		}()
		return runStartedMsg{id: run.ID()}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

func summaryLine(res sendrun.Result) string {
	verb := "Sent"
	if res.Run.Preview {
		verb = "Previewed"
	}
	s := fmt.Sprintf("%s %d", verb, res.Run.Sent)
	if res.Run.Total > 0 {
		s += fmt.Sprintf(" of %d", res.Run.Total)
	}
	s += fmt.Sprintf(", %d failed (%s)", res.Run.Failed, res.Run.Status)
	if n := len(res.Errors); n > 0 {
		s += fmt.Sprintf(", %d error(s)", n)
	}
	return s
}

// View renders the appropriate view based on current state.
func (m *SendModel) View() string {
	if m.Err != nil && m.view == viewLoading {
		return errorStyle.Render("Error: "+m.Err.Error()) + "\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Outreach · " + m.opts.Email))
	b.WriteString("\n")

	switch m.view {
	case viewLoading:
		b.WriteString(m.spin.View() + " " + m.status + "\n")
		return b.String()
	case viewPreview:
		b.WriteString(m.contacts.View())
		b.WriteString("\n")
		b.WriteString(previewFooter(m.opts.UseCC))
	case viewConfirm:
		b.WriteString(m.contacts.View())
		b.WriteString("\n\n")
		b.WriteString(warnStyle.Render("This sends a real email to every contact in the sheet."))
		b.WriteString("\n")
		b.WriteString(m.confirm.View())
		b.WriteString("\n")
		b.WriteString(confirmFooter())
	case viewStreaming, viewDone:
		b.WriteString(countersLine(m.counters))
		b.WriteString("\n\n")
		b.WriteString(m.logView.View())
		b.WriteString("\n")
		if m.view == viewStreaming {
			b.WriteString(m.spin.View() + " ")
			b.WriteString(streamFooter())
		} else {
			b.WriteString(doneFooter())
		}
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}
	return b.String()
}
