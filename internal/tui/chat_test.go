package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(t tea.KeyType, runes ...rune) tea.KeyMsg {
	return tea.KeyMsg{Type: t, Runes: runes}
}

func TestInputEditing(t *testing.T) {
	m := NewModel(&Backend{})

	updated, _ := m.Update(key(tea.KeyRunes, 'م', 'ا'))
	m = updated.(*Model)
	updated, _ = m.Update(key(tea.KeySpace))
	m = updated.(*Model)
	updated, _ = m.Update(key(tea.KeyRunes, 'x'))
	m = updated.(*Model)
	assert.Equal(t, "ما x", m.input)

	// backspace removes one rune, not one byte
	updated, _ = m.Update(key(tea.KeyBackspace))
	m = updated.(*Model)
	updated, _ = m.Update(key(tea.KeyBackspace))
	m = updated.(*Model)
	updated, _ = m.Update(key(tea.KeyBackspace))
	m = updated.(*Model)
	assert.Equal(t, "م", m.input)
}

func TestEnterWithEmptyInputDoesNothing(t *testing.T) {
	m := NewModel(&Backend{})
	m.input = "   "

	updated, cmd := m.Update(key(tea.KeyEnter))
	m = updated.(*Model)
	assert.Nil(t, cmd)
	assert.Empty(t, m.messages)
	assert.False(t, m.loading)
}

func TestEnterRecordsTurnAndStartsAnswer(t *testing.T) {
	m := NewModel(&Backend{})
	m.input = "ما هو التوحيد؟"

	updated, cmd := m.Update(key(tea.KeyEnter))
	m = updated.(*Model)
	require.NotNil(t, cmd)
	assert.True(t, m.loading)
	require.Len(t, m.messages, 1)
	assert.Equal(t, "user", m.messages[0].Role)
	assert.Empty(t, m.input)

	// further enters while loading are ignored
	m.input = "again"
	_, cmd = m.Update(key(tea.KeyEnter))
	assert.Nil(t, cmd)
}

func TestAnswerErrorIsShownAndClearsLoading(t *testing.T) {
	m := NewModel(&Backend{})
	m.loading = true

	updated, _ := m.Update(answerMsg{err: errors.New("connection refused")})
	m = updated.(*Model)
	assert.False(t, m.loading)
	require.Len(t, m.messages, 1)
	assert.Contains(t, m.messages[0].Content, "connection refused")
}
