// Package capture collects screenshots into the batch for the next analysis.
package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vbonduro/screensolve/internal/domain"
)

var ErrUnsupportedImage = errors.New("unsupported image format")

// CapturedStatus is the status line shown after the nth screenshot is buffered.
func CapturedStatus(n int) string {
	return fmt.Sprintf("Screenshot %d captured. Press process to analyze.", n)
}

// ResetStatus is the status line shown after a reset dropped n screenshots.
func ResetStatus(n int) string {
	return fmt.Sprintf("Screenshots reset. %d screenshot(s) cleared.", n)
}

// Buffer accumulates screenshots in capture order until they are taken for
// processing or reset.
type Buffer struct {
	mu     sync.Mutex
	images []domain.Image
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add appends img and returns the new count.
func (b *Buffer) Add(img domain.Image) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.images = append(b.images, img)
	return len(b.images)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.images)
}

// Reset discards every buffered screenshot and returns how many were dropped.
func (b *Buffer) Reset() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.images)
	b.images = nil
	return n
}

// Take removes and returns the buffered batch.
func (b *Buffer) Take() domain.CaptureBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := domain.CaptureBatch(b.images)
	b.images = nil
	return batch
}

// TakeIf hands the buffered batch to submit while holding the buffer, and
// removes it only when submit succeeds. A rejected batch stays buffered and
// no reset or capture can interleave between the two.
func (b *Buffer) TakeIf(submit func(domain.CaptureBatch) error) (domain.CaptureBatch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := append(domain.CaptureBatch(nil), b.images...)
	if err := submit(batch); err != nil {
		return batch, err
	}
	b.images = nil
	return batch, nil
}

// Prepare checks that data is a supported image and normalizes it.
func Prepare(data []byte, opts NormalizeOptions) (domain.Image, error) {
	if _, ok := DetectMIME(data); !ok {
		return domain.Image{}, ErrUnsupportedImage
	}
	return Normalize(data, opts)
}

// Ingest prepares data and appends it. It returns the new count.
func (b *Buffer) Ingest(data []byte, opts NormalizeOptions) (int, error) {
	img, err := Prepare(data, opts)
	if err != nil {
		return 0, err
	}
	return b.Add(img), nil
}
