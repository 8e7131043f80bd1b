package audioproc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPassthroughEnhancerCopies(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.wav")
	dst := filepath.Join(dir, "out.wav")
	require.NoError(t, os.WriteFile(src, []byte("RIFF fake audio"), 0o644))

	require.NoError(t, PassthroughEnhancer{}.Enhance(context.Background(), src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "RIFF fake audio", string(data))
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := copyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "out"))
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "out"))
	require.True(t, os.IsNotExist(statErr))
}
