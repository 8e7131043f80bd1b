package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/callytics/callytics/cmd/server/internal/orchestrator"
)

type recordingProcessor struct {
	mu    sync.Mutex
	paths []string
	seen  chan string
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{seen: make(chan string, 16)}
}

func (p *recordingProcessor) Process(ctx context.Context, audioPath string) orchestrator.RunResult {
	p.mu.Lock()
	p.paths = append(p.paths, audioPath)
	p.mu.Unlock()
	p.seen <- audioPath
	return orchestrator.RunResult{Outcome: orchestrator.OutcomePersisted, FileID: 1}
}

func TestWatcherPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	proc := newRecordingProcessor()
	w := New(dir, proc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// give the watcher a moment to register
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(dir, "call.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF fake audio"), 0o644))

	select {
	case got := <-proc.seen:
		require.Equal(t, path, got)
	case <-time.After(10 * time.Second):
		t.Fatal("file was never processed")
	}
}

func TestWatcherQueuesPreexistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "already-there.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3 fake audio"), 0o644))

	proc := newRecordingProcessor()
	w := New(dir, proc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case got := <-proc.seen:
		require.Equal(t, path, got)
	case <-time.After(10 * time.Second):
		t.Fatal("preexisting file was never processed")
	}
}

func TestWatcherIgnoresNonAudio(t *testing.T) {
	dir := t.TempDir()
	proc := newRecordingProcessor()
	w := New(dir, proc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	select {
	case got := <-proc.seen:
		t.Fatalf("unexpected processing of %s", got)
	case <-time.After(2 * time.Second):
	}
}

func TestIsAudioFile(t *testing.T) {
	require.True(t, isAudioFile("a.wav"))
	require.True(t, isAudioFile("b.MP3"))
	require.False(t, isAudioFile("c.txt"))
	require.False(t, isAudioFile("d"))
}
