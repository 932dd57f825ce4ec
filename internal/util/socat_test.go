package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForLinks(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "ttyA")
	b := filepath.Join(dir, "ttyB")
	require.NoError(t, os.WriteFile(a, nil, 0o644))

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.Symlink(a, b)
	}()
	assert.NoError(t, WaitForLinks(time.Second, a, b))

	err := WaitForLinks(30*time.Millisecond, filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, ErrLinkTimeout))
}

func TestCleanupIsIdempotent(t *testing.T) {
	m := NewSocatManager()
	m.Cleanup()
	m.Cleanup()
	assert.Error(t, m.CreatePair("/tmp/a", "/tmp/b"))
	assert.Empty(t, m.Links())
}
