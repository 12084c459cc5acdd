// Package watch feeds screenshots dropped into the capture directory into the
// capture buffer.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vbonduro/screensolve/internal/capture"
	"github.com/vbonduro/screensolve/internal/capture/inbox"
)

// defaultSettle is how long a file must go without further writes before it
// is read. Screenshot tools often create the file and then write it in
// several steps.
const defaultSettle = 250 * time.Millisecond

type statusPublisher interface {
	Status(text string)
}

type Watcher struct {
	inbox  *inbox.Inbox
	buffer *capture.Buffer
	pub    statusPublisher
	opts   capture.NormalizeOptions
	logger *slog.Logger
	settle time.Duration
}

func New(in *inbox.Inbox, buf *capture.Buffer, pub statusPublisher, opts capture.NormalizeOptions, logger *slog.Logger) *Watcher {
	return &Watcher{
		inbox:  in,
		buffer: buf,
		pub:    pub,
		opts:   opts,
		logger: logger,
		settle: defaultSettle,
	}
}

// Run ingests any screenshots already waiting, then watches the inbox until
// ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		if err := fw.Close(); err != nil {
			w.logger.Error("failed to close watcher", "error", err)
		}
	}()

	if err := fw.Add(w.inbox.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.inbox.Dir(), err)
	}
	w.logger.Info("watching capture directory", "dir", w.inbox.Dir())

	pending, err := w.inbox.Pending()
	if err != nil {
		w.logger.Error("failed to list pending screenshots", "error", err)
	}
	for _, name := range pending {
		w.Ingest(name)
	}

	ready := make(chan string, 16)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if !inbox.IsImage(name) || (!event.Has(fsnotify.Create) && !event.Has(fsnotify.Write)) {
				continue
			}
			if t, ok := timers[name]; ok {
				t.Reset(w.settle)
				continue
			}
			timers[name] = time.AfterFunc(w.settle, func() {
				select {
				case ready <- name:
				case <-ctx.Done():
				}
			})
		case name := <-ready:
			delete(timers, name)
			w.Ingest(name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("capture watcher error", "error", err)
		}
	}
}

// Ingest moves one screenshot from the inbox into the buffer. Files that are
// not valid images are left in place.
func (w *Watcher) Ingest(name string) {
	data, _, err := w.inbox.Read(name)
	if err != nil {
		w.logger.Error("failed to read screenshot", "name", name, "error", err)
		return
	}

	n, err := w.buffer.Ingest(data, w.opts)
	if err != nil {
		w.logger.Error("failed to ingest screenshot", "name", name, "error", err)
		w.pub.Status(fmt.Sprintf("Screenshot error: %v", err))
		return
	}

	if err := w.inbox.Remove(name); err != nil {
		w.logger.Error("failed to remove ingested screenshot", "name", name, "error", err)
	}
	w.logger.Info("screenshot captured", "name", name, "count", n)
	w.pub.Status(capture.CapturedStatus(n))
}
