package tui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/internal/model"
	"outreach/internal/sendrun"
)

type fakePreviewer struct {
	rows []model.Row
	err  error
}

func (f fakePreviewer) SheetPreview(context.Context, string, int) ([]model.Row, error) {
	return f.rows, f.err
}

type fakeSender struct {
	lines []string
	err   error
	got   []model.SendRequest
}

func (f *fakeSender) SendEmails(_ context.Context, req model.SendRequest) (io.ReadCloser, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	feed := chunkFeed(slices.Clone(f.lines))
	return io.NopCloser(&feed), nil
}

// chunkFeed returns one message per Read with no newline, like the backend.
type chunkFeed []string

func (c *chunkFeed) Read(p []byte) (int, error) {
	if len(*c) == 0 {
		return 0, io.EOF
	}
	n := copy(p, (*c)[0])
	if n < len((*c)[0]) {
		(*c)[0] = (*c)[0][n:]
	} else {
		*c = (*c)[1:]
	}
	return n, nil
}

func rows(t *testing.T, raw string) []model.Row {
	t.Helper()
	var out []model.Row
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

var contacts = `[{"Name":"Ada","Email":"ada@x.com","Firm":"Acme"},{"Name":"Bob","Email":"bob@x.com","Firm":"Initech"}]`

func newTestModel(t *testing.T, sender *fakeSender, opts Options) (*SendModel, chan tea.Msg) {
	t.Helper()
	m := NewSendModel(context.Background(), fakePreviewer{rows: rows(t, contacts)}, sendrun.New(sender, nil, nil), opts)
	msgs := make(chan tea.Msg, 64)
	m.send = func(msg tea.Msg) { msgs <- msg }
	t.Cleanup(m.cancel)

	m.Update(m.loadPreviewCmd()())
	require.Equal(t, viewPreview, m.view)
	return m, msgs
}

// drain feeds streamed messages to the model until the run is done.
func drain(t *testing.T, m *SendModel, msgs chan tea.Msg) {
	t.Helper()
	for {
		select {
		case msg := <-msgs:
			m.Update(msg)
			if _, ok := msg.(runDoneMsg); ok {
				return
			}
		case <-time.After(5 * time.Second):
			t.Fatal("run did not finish")
		}
	}
}

func TestSendModel_PreviewTable(t *testing.T) {
	m, _ := newTestModel(t, &fakeSender{}, Options{Email: "me@x.com", SheetURL: "sheet"})
	assert.Len(t, m.contacts.Rows(), 2)
	cols := m.contacts.Columns()
	require.Len(t, cols, 3)
	assert.Equal(t, []string{"Name", "Email", "Firm"}, []string{cols[0].Title, cols[1].Title, cols[2].Title})
	assert.Contains(t, m.View(), "p: preview emails")
}

func TestSendModel_PreviewLoadError(t *testing.T) {
	m := NewSendModel(context.Background(), fakePreviewer{err: errors.New("no sheet")}, sendrun.New(&fakeSender{}, nil, nil), Options{})
	t.Cleanup(m.cancel)
	_, cmd := m.Update(previewLoadedMsg{err: errors.New("no sheet")})
	assert.True(t, isQuit(cmd))
	assert.EqualError(t, m.Err, "no sheet")
	assert.Contains(t, m.View(), "no sheet")
}

func TestSendModel_ConfirmRequiresYes(t *testing.T) {
	sender := &fakeSender{lines: []string{
		"...preparing email for Ada (ada@x.com)...",
		"✓ Email sent to ada@x.com",
		`data: {"type":"error","message":"Failed to send to bob@x.com"}`,
	}}
	m, msgs := newTestModel(t, sender, Options{Email: "me@x.com", SheetURL: "sheet", UseCC: true})

	m.Update(keyPress("s"))
	require.Equal(t, viewConfirm, m.view)

	m.confirm.SetValue("no")
	m.Update(keyPress("enter"))
	assert.Equal(t, viewConfirm, m.view)
	assert.Contains(t, m.status, `Type "yes"`)

	m.Update(keyPress("esc"))
	assert.Equal(t, viewPreview, m.view)

	m.Update(keyPress("s"))
	m.confirm.SetValue("YES")
	_, cmd := m.Update(keyPress("enter"))
	require.NotNil(t, cmd)
	assert.Equal(t, viewStreaming, m.view)
	assert.True(t, m.running)

	m.Update(m.runCmd(true)())
	drain(t, m, msgs)

	require.Len(t, sender.got, 1)
	assert.Equal(t, model.SendRequest{Email: "me@x.com", SheetURL: "sheet", Confirmed: true, UseCC: true}, sender.got[0])

	assert.Equal(t, viewDone, m.view)
	assert.False(t, m.running)
	require.NotNil(t, m.Result)
	assert.Equal(t, model.RunCompleted, m.Result.Run.Status)
	assert.Equal(t, 1, m.counters.Sent)
	assert.Equal(t, 1, m.counters.Failed)
	assert.Equal(t, 1, m.counters.Processed)
	assert.Len(t, m.lines, 3)
	assert.Contains(t, m.status, "Sent 1, 1 failed (completed)")
	assert.Contains(t, m.View(), "Failed to send to bob@x.com")

	_, cmd = m.Update(keyPress("q"))
	assert.True(t, isQuit(cmd))
}

func TestSendModel_PreviewRunReplacesTable(t *testing.T) {
	sender := &fakeSender{lines: []string{
		`data: {"type":"preview","data":[{"Name":"Cy","Email":"cy@x.com"}]}`,
		"Preview complete",
	}}
	m, msgs := newTestModel(t, sender, Options{Email: "me@x.com", SheetURL: "sheet"})

	m.Update(keyPress("p"))
	assert.Equal(t, viewStreaming, m.view)
	m.Update(m.runCmd(false)())
	drain(t, m, msgs)

	assert.False(t, sender.got[0].Confirmed)
	require.Len(t, m.contacts.Rows(), 1)
	assert.Equal(t, "Cy", m.contacts.Rows()[0][0])
	assert.True(t, m.Result.Run.Preview)
	assert.Contains(t, m.status, "Previewed")
}

func TestSendModel_AutoConfirmSkipsPrompt(t *testing.T) {
	m, _ := newTestModel(t, &fakeSender{}, Options{Email: "me@x.com", SheetURL: "sheet", AutoConfirm: true})
	m.Update(keyPress("s"))
	assert.Equal(t, viewStreaming, m.view)
}

func TestSendModel_StartFailureReturnsToPreview(t *testing.T) {
	sender := &fakeSender{err: errors.New("backend down")}
	m, _ := newTestModel(t, sender, Options{Email: "me@x.com", SheetURL: "sheet"})

	m.Update(keyPress("p"))
	msg := m.runCmd(false)()
	require.IsType(t, runFailedMsg{}, msg)
	_, cmd := m.Update(msg)
	assert.NotNil(t, cmd)
	assert.Equal(t, viewPreview, m.view)
	assert.False(t, m.running)
	assert.Contains(t, m.status, "backend down")
}

func TestSendModel_CtrlCWhileRunningCancelsFirst(t *testing.T) {
	m, _ := newTestModel(t, &fakeSender{}, Options{Email: "me@x.com", SheetURL: "sheet"})
	m.Update(keyPress("p"))

	_, cmd := m.Update(keyPress("ctrl+c"))
	assert.Nil(t, cmd)
	assert.True(t, m.quitting)
	assert.Error(t, m.ctx.Err())

	_, cmd = m.Update(runDoneMsg{result: sendrun.Result{Run: model.SendRun{Status: model.RunCanceled}}})
	assert.True(t, isQuit(cmd))
}

func TestContactTable_CapsWidth(t *testing.T) {
	long := rows(t, `[{"Note":"`+strings.Repeat("x", 100)+`","Id":1}]`)
	cols, data := contactTable(long, 0)
	require.Len(t, cols, 2)
	assert.Equal(t, maxColumnWidth, cols[0].Width)
	assert.Equal(t, 2, cols[1].Width)
	assert.Equal(t, "1", data[0][1])

	cols, _ = contactTable(long, 40)
	assert.Equal(t, 18, cols[0].Width)
}

func TestCountersLine_Remaining(t *testing.T) {
	assert.NotContains(t, countersLine(sendrun.Update{Sent: 1}), "Remaining")
	assert.Contains(t, countersLine(sendrun.Update{Total: 3, Sent: 1, Failed: 1, Remaining: 1}), "Remaining 1")
}
