// Package mock is an offline model backend that answers every request with
// a canned solution. It backs MOCK_MODE.
package mock

import (
	"context"
	_ "embed"
	"time"

	"github.com/vbonduro/screensolve/internal/model"
)

//go:embed twosum.md
var twoSum string

// Classification calls ask for a handful of tokens; anything at or below this
// limit gets Label instead of the answer.
const labelTokenLimit = 50

type Client struct {
	Answer string
	Label  string
	// Chunk is the number of runes per streamed delta.
	Chunk int
	// Delay is slept before the first delta and between deltas.
	Delay time.Duration
}

func New() *Client {
	return &Client{
		Answer: twoSum,
		Label:  "coding",
		Chunk:  64,
		Delay:  20 * time.Millisecond,
	}
}

func (c *Client) respond(req model.Request) string {
	if req.MaxTokens <= labelTokenLimit {
		return c.Label
	}
	return c.Answer
}

func (c *Client) Complete(ctx context.Context, req model.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := sleep(ctx, c.Delay); err != nil {
		return "", err
	}
	return c.respond(req), nil
}

func (c *Client) CompleteStream(ctx context.Context, req model.Request) (<-chan model.StreamEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	chunks := split(c.respond(req), c.Chunk)

	ch := make(chan model.StreamEvent)
	go func() {
		defer close(ch)
		for _, chunk := range chunks {
			if err := sleep(ctx, c.Delay); err != nil {
				return
			}
			select {
			case ch <- model.StreamEvent{Delta: chunk}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func split(s string, n int) []string {
	if n <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	out := make([]string, 0, len(runes)/n+1)
	for len(runes) > 0 {
		end := min(n, len(runes))
		out = append(out, string(runes[:end]))
		runes = runes[end:]
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
