package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/vbonduro/screensolve/internal/domain"
	"github.com/vbonduro/screensolve/internal/model"
)

// logEvery throttles per-chunk debug logging.
const logEvery = 20

// complete submits req and collects the response, publishing heading plus
// the accumulated text after every non-empty chunk. Submission is retried
// with exponential backoff; once a chunk has arrived the stream is never
// retried.
func (a *Assistant) complete(ctx context.Context, run *domain.Run, req model.Request, heading string) (string, error) {
	if err := req.Validate(); err != nil {
		return "", &TransportError{Op: "build request", Err: err}
	}

	sc, canStream := a.completer.(model.StreamCompleter)
	if !a.opts.Streaming || !canStream {
		return a.completeOnce(ctx, run, req, heading)
	}

	ch, err := retry(ctx, a, func() (<-chan model.StreamEvent, error) {
		return sc.CompleteStream(ctx, req)
	})
	if err != nil {
		return "", a.classifyErr(ctx, "submit request", err)
	}
	a.setState(StateStreaming)

	var acc strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", a.classifyErr(ctx, "stream response", ctx.Err())
		case ev, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return "", a.classifyErr(ctx, "stream response", ctx.Err())
				}
				if run.Chunks == 0 {
					return "", ErrNoOutput
				}
				return acc.String(), nil
			}
			if ev.Err != nil {
				return "", a.classifyErr(ctx, "stream response", ev.Err)
			}
			if ev.Delta == "" {
				continue
			}
			acc.WriteString(ev.Delta)
			run.Chunks++
			a.pub.Output(heading + acc.String())
			if run.Chunks%logEvery == 0 {
				a.logger.Debug("output update", "run_id", run.ID, "chunks", run.Chunks, "chars", acc.Len())
			}
		}
	}
}

func (a *Assistant) completeOnce(ctx context.Context, run *domain.Run, req model.Request, heading string) (string, error) {
	text, err := retry(ctx, a, func() (string, error) {
		return a.completer.Complete(ctx, req)
	})
	if err != nil {
		return "", a.classifyErr(ctx, "complete request", err)
	}
	a.setState(StateStreaming)
	if text == "" {
		return "", ErrNoOutput
	}
	run.Chunks = 1
	a.pub.Output(heading + text)
	return text, nil
}

// classifyErr maps a failure to ErrCancelled when Cancel caused it and to a
// TransportError otherwise.
func (a *Assistant) classifyErr(ctx context.Context, op string, err error) error {
	if errors.Is(context.Cause(ctx), ErrCancelled) {
		return ErrCancelled
	}
	return &TransportError{Op: op, Err: err}
}

func retry[T any](ctx context.Context, a *Assistant, op func() (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err != nil && ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(a.newBackOff()),
		backoff.WithMaxTries(uint(a.opts.RetryCount+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			a.logger.Warn("model request failed, retrying", "attempt", attempt, "retry_in", next, "error", err)
		}),
	)
}
