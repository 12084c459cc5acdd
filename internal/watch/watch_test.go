package watch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/screensolve/internal/capture"
	"github.com/vbonduro/screensolve/internal/capture/inbox"
)

type statusLog struct {
	mu    sync.Mutex
	lines []string
}

func (s *statusLog) Status(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
}

func (s *statusLog) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))
}

func newTestWatcher(t *testing.T) (*Watcher, string, *capture.Buffer, *statusLog) {
	t.Helper()
	dir := t.TempDir()
	in, err := inbox.New(dir)
	require.NoError(t, err)
	buf := capture.NewBuffer()
	status := &statusLog{}
	w := New(in, buf, status, capture.NormalizeOptions{MaxWidth: 1920, Quality: 70}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.settle = 10 * time.Millisecond
	return w, dir, buf, status
}

func TestIngest(t *testing.T) {
	w, dir, buf, status := newTestWatcher(t)
	writePNG(t, filepath.Join(dir, "one.png"))

	w.Ingest("one.png")

	assert.Equal(t, 1, buf.Len())
	_, err := os.Stat(filepath.Join(dir, "one.png"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, []string{"Screenshot 1 captured. Press process to analyze."}, status.all())
}

func TestIngestRejectsNonImage(t *testing.T) {
	w, dir, buf, status := newTestWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fake.png"), []byte("not really"), 0600))

	w.Ingest("fake.png")

	assert.Equal(t, 0, buf.Len())
	_, err := os.Stat(filepath.Join(dir, "fake.png"))
	assert.NoError(t, err)
	require.Len(t, status.all(), 1)
	assert.Contains(t, status.all()[0], "Screenshot error")
}

func TestRunPicksUpPendingAndNewFiles(t *testing.T) {
	w, dir, buf, _ := newTestWatcher(t)
	writePNG(t, filepath.Join(dir, "before.png"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return buf.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0600))
	writePNG(t, filepath.Join(dir, "after.png"))

	require.Eventually(t, func() bool { return buf.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}

	_, err := os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}
