package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScratchCleanup(t *testing.T) {
	root := t.TempDir()
	s, err := NewScratch(root, "run-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "run-1"), s.Dir())

	p1, err := s.WriteFile("audio_1.mp3", []byte("x"))
	require.NoError(t, err)
	p2 := s.Path("never_written.png")
	assert.Equal(t, []string{p1, p2}, s.Files())

	// names cannot escape the directory
	assert.Equal(t, filepath.Join(root, "run-1", "passwd"), s.Path("../../etc/passwd"))

	require.NoError(t, s.Cleanup())
	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.NoError(t, s.Cleanup())
}

func TestNewScratchRequiresRunID(t *testing.T) {
	_, err := NewScratch(t.TempDir(), "")
	assert.Error(t, err)
}
