package tui

import (
	"outreach/internal/model"
	"outreach/internal/sendrun"
)

// Async message types for Bubble Tea commands.

type previewLoadedMsg struct {
	rows []model.Row
	err  error
}

type runStartedMsg struct {
	id string
}

// streamUpdateMsg is sent from the streaming goroutine for every line.
type streamUpdateMsg sendrun.Update

type runDoneMsg struct {
	result sendrun.Result
}

// runFailedMsg means the feed could not be opened at all.
type runFailedMsg struct {
	err error
}

type statusMsg string
