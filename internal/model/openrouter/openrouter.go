package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vbonduro/screensolve/internal/model"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// request types mirror the OpenAI chat completions structure.
type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	TopP        float64   `json:"top_p"`
	Stream      bool      `json:"stream"`
}

type message struct {
	Role    string `json:"role"`
	Content []part `json:"content"`
}

type part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to any OpenAI-compatible chat completions endpoint; the
// defaults target OpenRouter.
type Client struct {
	apiKey   string
	baseURL  string
	referrer string
	title    string
	client   *http.Client
}

type Option func(*Client)

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter uses
// for app ranking.
func WithAttribution(referrer, title string) Option {
	return func(c *Client) {
		c.referrer = referrer
		c.title = title
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// buildMessages constructs a single user turn: the prompt first, then one
// image_url part per image as a data URI.
func buildMessages(req model.Request) []message {
	parts := make([]part, 0, len(req.Images)+1)
	parts = append(parts, part{Type: "text", Text: req.Prompt})
	for _, img := range req.Images {
		parts = append(parts, part{Type: "image_url", ImageURL: &imageURL{URL: model.DataURI(img)}})
	}
	return []message{{Role: "user", Content: parts}}
}

func (c *Client) newHTTPRequest(ctx context.Context, req model.Request, stream bool) (*http.Request, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	payload, err := json.Marshal(request{
		Model:       req.Model,
		Messages:    buildMessages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referrer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referrer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

func (c *Client) Complete(ctx context.Context, req model.Request) (string, error) {
	httpReq, err := c.newHTTPRequest(ctx, req, false)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call openrouter: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close openrouter response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("openrouter returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(body.Choices) == 0 {
		return "", fmt.Errorf("no response choices received")
	}
	return body.Choices[0].Message.Content, nil
}

// CompleteStream implements model.StreamCompleter. It sends stream:true and
// parses SSE "data:" lines until the [DONE] sentinel, emitting each non-empty
// choices[0].delta.content.
func (c *Client) CompleteStream(ctx context.Context, req model.Request) (<-chan model.StreamEvent, error) {
	httpReq, err := c.newHTTPRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call openrouter: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("openrouter returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	ch := make(chan model.StreamEvent, 16)

	go func() {
		defer close(ch)
		defer func() {
			if err := resp.Body.Close(); err != nil {
				slog.Error("failed to close openrouter stream body", "error", err)
			}
		}()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			line := scanner.Text()
			// SSE comments (": OPENROUTER PROCESSING") and blank lines are keep-alives.
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				send(ctx, ch, model.StreamEvent{Err: fmt.Errorf("openrouter stream error: %s", chunk.Error.Message)})
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !send(ctx, ch, model.StreamEvent{Delta: chunk.Choices[0].Delta.Content}) {
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			send(ctx, ch, model.StreamEvent{Err: fmt.Errorf("read openrouter stream: %w", err)})
		}
	}()

	return ch, nil
}

func send(ctx context.Context, ch chan<- model.StreamEvent, ev model.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
