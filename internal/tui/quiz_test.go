package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/internal/quiz"
)

func testSession() *quiz.Session {
	return quiz.NewSession([]quiz.Question{
		{ID: 1, Subject: "Valuation", Question: "Which multiple uses enterprise value?", Options: []string{"P/E", "EV/EBITDA", "P/B"}, Answer: "EV/EBITDA"},
		{ID: 2, Subject: "Accounting", Question: "Depreciation is a...", Options: []string{"Cash expense", "Non-cash expense"}, Answer: "Non-cash expense"},
	})
}

func TestQuizModel_Flow(t *testing.T) {
	m := NewQuizModel(testSession())
	require.Len(t, m.options.Items(), 3)
	assert.Contains(t, m.View(), "Question 1 of 2")

	m.Update(keyPress("b"))
	m.Update(keyPress("enter"))
	assert.True(t, m.answered)
	assert.Equal(t, "Correct!", m.feedback)
	assert.Contains(t, m.View(), "Which multiple uses enterprise value?")

	m.Update(keyPress("enter"))
	assert.False(t, m.answered)
	require.Len(t, m.options.Items(), 2)

	m.Update(keyPress("a"))
	_, cmd := m.Update(keyPress("enter"))
	assert.Nil(t, cmd)
	assert.Equal(t, "Wrong. The answer is: Non-cash expense", m.feedback)
	assert.Contains(t, m.View(), "enter: see score")

	_, cmd = m.Update(keyPress("enter"))
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "You scored 1 out of 2")

	score, total := m.Score()
	assert.Equal(t, 1, score)
	assert.Equal(t, 2, total)

	_, cmd = m.Update(keyPress("enter"))
	assert.True(t, isQuit(cmd))
}

func TestQuizModel_LetterOutOfRangeIgnored(t *testing.T) {
	m := NewQuizModel(testSession())
	m.Update(keyPress("c"))
	assert.Equal(t, 2, m.options.Index())
	m.Update(keyPress("z"))
	assert.Equal(t, 2, m.options.Index())
	assert.False(t, m.answered)
}
