package claude

import (
	"context"
	"fmt"
	"net/http"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/screensolve/internal/model"
)

// Client adapts the Anthropic Messages API to model.StreamCompleter. The
// model named in each model.Request is ignored in favour of the configured
// Claude model, since the request carries OpenRouter-style identifiers.
type Client struct {
	api   *anthropic.Client
	model string
}

type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
}

func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

func New(apiKey, modelName string, opts ...Option) *Client {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	var clientOpts []anthropic.ClientOption
	if o.baseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(o.baseURL))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, anthropic.WithHTTPClient(o.httpClient))
	}
	return &Client{
		api:   anthropic.NewClient(apiKey, clientOpts...),
		model: modelName,
	}
}

// buildRequest places images before the prompt text, the order Anthropic
// recommends for vision prompts.
func (c *Client) buildRequest(req model.Request) anthropic.MessagesRequest {
	content := make([]anthropic.MessageContent, 0, len(req.Images)+1)
	for _, img := range req.Images {
		content = append(content, anthropic.NewImageMessageContent(
			anthropic.NewMessageContentSource(
				anthropic.MessagesContentSourceTypeBase64,
				model.MediaType(img.MimeType),
				model.Base64(img),
			),
		))
	}
	content = append(content, anthropic.NewTextMessageContent(req.Prompt))

	temperature := float32(req.Temperature)
	mr := anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: content,
		}},
	}
	if req.TopP > 0 {
		topP := float32(req.TopP)
		mr.TopP = &topP
	}
	return mr
}

func (c *Client) Complete(ctx context.Context, req model.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("invalid request: %w", err)
	}

	resp, err := c.api.CreateMessages(ctx, c.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("failed to call claude: %w", err)
	}

	for _, blk := range resp.Content {
		if blk.Type == anthropic.MessagesContentTypeText {
			return blk.GetText(), nil
		}
	}
	return "", fmt.Errorf("claude response contained no text block")
}

// CompleteStream implements model.StreamCompleter by bridging the SDK's
// content_block_delta callback onto a channel. It returns once the first
// delta or a terminal error arrives, so failures opening the stream are
// reported synchronously and later errors arrive as the last event.
func (c *Client) CompleteStream(ctx context.Context, req model.Request) (<-chan model.StreamEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	src := make(chan model.StreamEvent, 16)

	go func() {
		defer close(src)

		_, err := c.api.CreateMessagesStream(ctx, anthropic.MessagesStreamRequest{
			MessagesRequest: c.buildRequest(req),
			OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
				text := data.Delta.GetText()
				if text == "" {
					return
				}
				select {
				case src <- model.StreamEvent{Delta: text}:
				case <-ctx.Done():
				}
			},
		})
		if err != nil && ctx.Err() == nil {
			select {
			case src <- model.StreamEvent{Err: fmt.Errorf("claude stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	var first model.StreamEvent
	var ok bool
	select {
	case first, ok = <-src:
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
	if ok && first.Err != nil {
		cancel()
		return nil, first.Err
	}

	out := make(chan model.StreamEvent, 16)
	go func() {
		defer cancel()
		defer close(out)
		for ev, more := first, ok; more; ev, more = <-src {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
