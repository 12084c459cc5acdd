package model

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/vbonduro/screensolve/internal/domain"
)

// Request is one single-turn multimodal chat completion: a text prompt plus
// zero or more inline images.
type Request struct {
	Model       string
	Prompt      string
	Images      []domain.Image
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Validate checks the request invariants shared by every backend.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.New("prompt is required")
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", r.Temperature)
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", r.MaxTokens)
	}
	return nil
}

type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// StreamCompleter is an optional extension of Completer that delivers the
// response incrementally.
type StreamCompleter interface {
	Completer
	// CompleteStream sends text deltas on the returned channel in arrival
	// order. The channel is closed when the stream ends or ctx is cancelled. A
	// mid-stream failure is sent as a StreamEvent with Err set and is the last
	// event on the channel.
	CompleteStream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// StreamEvent is either a text delta or an error emitted during streaming.
type StreamEvent struct {
	Delta string
	Err   error
}

// MediaType maps a MIME type to one every vision backend accepts. Unknown
// types are coerced to jpeg.
func MediaType(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}

// Base64 encodes the image bytes.
func Base64(img domain.Image) string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURI renders the image as a base64 data URI.
func DataURI(img domain.Image) string {
	return "data:" + MediaType(img.MimeType) + ";base64," + Base64(img)
}
