package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "templates"), nil)
	require.NoError(t, err)
	return s
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"intro.txt", true},
		{"Follow Up.TXT", true},
		{".txt", false},
		{".hidden.txt", false},
		{"intro.md", false},
		{"../escape.txt", false},
		{"a/b.txt", false},
		{`a\b.txt`, false},
		{"", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ValidName(tc.name), tc.name)
	}
}

func TestSaveListGetDelete(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Save("b.txt", strings.NewReader("second")))
	require.NoError(t, s.Save("a.txt", strings.NewReader("first")))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.md"), []byte("x"), 0o644))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a.txt", list[0].Name)
	assert.Equal(t, "first", list[0].Content)

	tpl, err := s.Get("b.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", tpl.Content)

	require.NoError(t, s.Save("b.txt", strings.NewReader("replaced")))
	tpl, err = s.Get("b.txt")
	require.NoError(t, err)
	assert.Equal(t, "replaced", tpl.Content)

	require.NoError(t, s.Delete("a.txt"))
	_, err = s.Get("a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete("a.txt"), ErrNotFound)

	list, err = s.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSaveRejects(t *testing.T) {
	s := testStore(t)
	assert.ErrorIs(t, s.Save("../x.txt", strings.NewReader("x")), ErrInvalidName)
	assert.ErrorIs(t, s.Save("x.pdf", strings.NewReader("x")), ErrInvalidName)

	big := strings.NewReader(strings.Repeat("a", MaxSize+1))
	assert.ErrorIs(t, s.Save("big.txt", big), ErrTooLarge)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files left behind")
}

func TestEnsureDefault(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.EnsureDefault())

	tpl, err := s.Get(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplate, tpl.Content)

	require.NoError(t, s.Delete(DefaultName))
	require.NoError(t, s.Save("mine.txt", strings.NewReader("hi")))
	require.NoError(t, s.EnsureDefault())
	_, err = s.Get(DefaultName)
	assert.True(t, errors.Is(err, ErrNotFound), "default must not be re-seeded into a non-empty directory")
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders(DefaultTemplate + "\n[COMPANY] again, [SCHOOL]")
	assert.Equal(t, []string{"CIVILITY", "LAST_NAME", "COMPANY", "SCHOOL"}, got)
	assert.Empty(t, Placeholders("no tokens [here]"))
}

func TestFill(t *testing.T) {
	out := Fill("Hello [CIVILITY] [LAST_NAME] from [SCHOOL], [Your name]", map[string]string{
		"civility":  "Mr",
		"LAST_NAME": "Dupont",
	})
	assert.Equal(t, "Hello Mr Dupont from [SCHOOL], [Your name]", out)
}

func TestFill_AccentedPlaceholders(t *testing.T) {
	content := "Bonjour [CIVILITÉ] [LAST_NAME],"
	assert.Equal(t, []string{"CIVILITÉ", "LAST_NAME"}, Placeholders(content))

	out := Fill(content, map[string]string{"civilité": "Madame", "LAST_NAME": "Durand"})
	assert.Equal(t, "Bonjour Madame Durand,", out)
}

func TestWatchInvalidatesCache(t *testing.T) {
	old := DebounceInterval
	DebounceInterval = 20 * time.Millisecond
	t.Cleanup(func() { DebounceInterval = old })

	s := testStore(t)
	list, err := s.List()
	require.NoError(t, err)
	require.Empty(t, list)

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func() { changed <- struct{}{} })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before writing behind its back.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "external.txt"), []byte("hi"), 0o644))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}

	list, err = s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "external.txt", list[0].Name)
}
