package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/screensolve/internal/domain"
	"github.com/vbonduro/screensolve/internal/model"
	"github.com/vbonduro/screensolve/internal/model/claude"
	"github.com/vbonduro/screensolve/internal/prompt"
	"github.com/vbonduro/screensolve/internal/relay"
)

// stubModel is a scripted StreamCompleter. Requests with a small token
// budget are classification calls and get label.
type stubModel struct {
	mu sync.Mutex

	label      string
	answer     string
	chunks     []string
	submitErrs []error
	streamErr  error
	block      chan struct{}
	panicky    bool

	started     chan struct{}
	labelCalls  []model.Request
	answerCalls []model.Request
	streamCalls []model.Request
}

func newStubModel(chunks ...string) *stubModel {
	return &stubModel{label: "coding", chunks: chunks, started: make(chan struct{}, 8)}
}

func (m *stubModel) Complete(_ context.Context, req model.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.MaxTokens <= 50 {
		m.labelCalls = append(m.labelCalls, req)
		return m.label, nil
	}
	m.answerCalls = append(m.answerCalls, req)
	return m.answer, nil
}

func (m *stubModel) CompleteStream(ctx context.Context, req model.Request) (<-chan model.StreamEvent, error) {
	m.mu.Lock()
	attempt := len(m.streamCalls)
	m.streamCalls = append(m.streamCalls, req)
	m.mu.Unlock()

	if m.panicky {
		panic("adapter exploded")
	}
	if attempt < len(m.submitErrs) && m.submitErrs[attempt] != nil {
		return nil, m.submitErrs[attempt]
	}
	select {
	case m.started <- struct{}{}:
	default:
	}

	ch := make(chan model.StreamEvent)
	go func() {
		defer close(ch)
		if m.block != nil {
			select {
			case <-m.block:
			case <-ctx.Done():
				return
			}
		}
		for _, c := range m.chunks {
			select {
			case ch <- model.StreamEvent{Delta: c}:
			case <-ctx.Done():
				return
			}
		}
		if m.streamErr != nil {
			ch <- model.StreamEvent{Err: m.streamErr}
		}
	}()
	return ch, nil
}

func (m *stubModel) calls() (label, answer, stream int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.labelCalls), len(m.answerCalls), len(m.streamCalls)
}

type recordingRuns struct {
	mu   sync.Mutex
	runs []domain.Run
}

func (r *recordingRuns) Create(_ context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, *run)
	return nil
}

func (r *recordingRuns) all() []domain.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Run(nil), r.runs...)
}

func testOptions() Options {
	return Options{
		Model:       "primary/model",
		FastModel:   "fast/model",
		Temperature: 0.1,
		MaxTokens:   1000,
		TopP:        0.95,
		RetryCount:  2,
		Timeout:     10 * time.Second,
		Streaming:   true,
	}
}

func newTestAssistant(t *testing.T, c model.Completer, opts Options) (*Assistant, *relay.Relay, *recordingRuns) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := relay.New()
	runs := &recordingRuns{}
	a := New(c, nil, NewSlot(), r, runs, opts, logger)
	a.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return a, r, runs
}

func drain(r *relay.Relay) (outputs, statuses []string) {
	r.Drain(func(ev relay.Event) {
		switch ev.Kind {
		case relay.KindOutput:
			outputs = append(outputs, ev.Text)
		case relay.KindStatus:
			statuses = append(statuses, ev.Text)
		}
	})
	return outputs, statuses
}

func oneImage() domain.CaptureBatch {
	return domain.CaptureBatch{{Data: []byte{0xFF, 0xD8, 0xFF}, MimeType: "image/jpeg"}}
}

func TestAnalyzeStreamingAccumulation(t *testing.T) {
	m := newStubModel("Hel", "lo, ", "world")
	a, r, _ := newTestAssistant(t, m, testOptions())

	rec, err := a.Analyze(context.Background(), oneImage(), false)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", rec.Text)

	outputs, _ := drain(r)
	assert.Equal(t, []string{
		"# Coding Analysis\n\nHel",
		"# Coding Analysis\n\nHello, ",
		"# Coding Analysis\n\nHello, world",
	}, outputs)
}

func TestAnalyzeEndToEnd(t *testing.T) {
	m := newStubModel("def two_sum", "(nums): ...")
	a, r, runs := newTestAssistant(t, m, testOptions())

	assert.False(t, a.HasSolution())

	rec, err := a.Analyze(context.Background(), oneImage(), false)
	require.NoError(t, err)

	require.Len(t, m.labelCalls, 1)
	assert.Equal(t, "primary/model", m.labelCalls[0].Model)

	require.Len(t, m.streamCalls, 1)
	req := m.streamCalls[0]
	assert.Equal(t, prompt.Compose(1, domain.CategoryCoding), req.Prompt)
	assert.Contains(t, req.Prompt, "Examine the screenshots of a programming problem")
	assert.Contains(t, req.Prompt, "UNIVERSAL GUIDELINES:")
	assert.NotContains(t, req.Prompt, "screenshots provided")
	assert.Equal(t, "primary/model", req.Model)
	assert.Len(t, req.Images, 1)
	assert.Equal(t, 1000, req.MaxTokens)

	assert.Equal(t, "def two_sum(nums): ...", rec.Text)
	assert.Equal(t, domain.CategoryCoding, rec.Category)
	assert.NotEmpty(t, rec.RunID)

	last, ok := a.LastSolution()
	require.True(t, ok)
	assert.Equal(t, rec, last)
	assert.True(t, a.HasSolution())
	assert.Equal(t, StateCompleted, a.State())

	_, statuses := drain(r)
	assert.Equal(t, "Processing screenshots...", statuses[0])
	assert.Contains(t, statuses, "Processing 1 image(s)...")
	assert.Contains(t, statuses, "Running content detection...")
	assert.Contains(t, statuses, "Detected content type: coding")
	assert.Contains(t, statuses, "Analyzing coding problem with primary/model...")
	assert.True(t, strings.HasPrefix(statuses[len(statuses)-1], "Analysis complete in "))

	recorded := runs.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, rec.RunID, recorded[0].ID)
	assert.Equal(t, domain.RunCompleted, recorded[0].Status)
	assert.Equal(t, domain.RunAnalysis, recorded[0].Kind)
	assert.Equal(t, "coding", recorded[0].Label)
	assert.Equal(t, 2, recorded[0].Chunks)
	assert.Equal(t, 1, recorded[0].Images)
}

func TestFollowUpWithoutSolution(t *testing.T) {
	m := newStubModel("unused")
	a, r, runs := newTestAssistant(t, m, testOptions())

	_, err := a.FollowUp(context.Background(), "why?")
	assert.ErrorIs(t, err, ErrNoContext)

	outputs, statuses := drain(r)
	assert.Empty(t, outputs)
	assert.Equal(t, []string{"No previous analysis found to follow up on"}, statuses)

	label, answer, stream := m.calls()
	assert.Zero(t, label+answer+stream)
	assert.Empty(t, runs.all())

	assert.ErrorIs(t, a.StartFollowUp("why?"), ErrNoContext)
}

func TestFollowUpUsesPriorSolution(t *testing.T) {
	m := newStubModel("first ", "answer")
	a, r, runs := newTestAssistant(t, m, testOptions())

	_, err := a.Analyze(context.Background(), oneImage(), false)
	require.NoError(t, err)
	drain(r)

	m.chunks = []string{"use ", "a set"}
	rec, err := a.FollowUp(context.Background(), "can you explain why?")
	require.NoError(t, err)

	require.Len(t, m.streamCalls, 2)
	req := m.streamCalls[1]
	assert.Empty(t, req.Images)
	assert.Equal(t, "primary/model", req.Model)
	assert.Equal(t, prompt.ComposeFollowUp("can you explain why?", "first answer", domain.IntentExplanation), req.Prompt)

	assert.Equal(t, "use a set", rec.Text)
	assert.Equal(t, domain.CategoryCoding, rec.Category)
	last, _ := a.LastSolution()
	assert.Equal(t, "use a set", last.Text)

	outputs, statuses := drain(r)
	assert.Equal(t, []string{"# Follow-up Response\n\nuse ", "# Follow-up Response\n\nuse a set"}, outputs)
	assert.True(t, strings.HasPrefix(statuses[len(statuses)-1], "Follow-up complete in "))

	recorded := runs.all()
	require.Len(t, recorded, 2)
	assert.Equal(t, domain.RunFollowUp, recorded[1].Kind)
	assert.Equal(t, "explanation", recorded[1].Label)
}

func TestNotConfigured(t *testing.T) {
	a, r, _ := newTestAssistant(t, nil, testOptions())

	assert.ErrorIs(t, a.Start(oneImage(), false), ErrNotConfigured)
	_, err := a.FollowUp(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNotConfigured)

	outputs, statuses := drain(r)
	assert.Empty(t, outputs)
	assert.Equal(t, []string{"Error: API client not initialized.", "Error: API client not initialized."}, statuses)
}

func TestAnalyzeEmptyBatch(t *testing.T) {
	m := newStubModel("x")
	a, r, _ := newTestAssistant(t, m, testOptions())

	_, err := a.Analyze(context.Background(), nil, false)
	assert.ErrorIs(t, err, ErrNoImages)
	_, statuses := drain(r)
	assert.Equal(t, []string{"No screenshots to process."}, statuses)
}

func TestSubmissionRetry(t *testing.T) {
	m := newStubModel("ok")
	m.submitErrs = []error{errors.New("502 bad gateway"), errors.New("connection reset")}
	a, _, _ := newTestAssistant(t, m, testOptions())

	rec, err := a.Analyze(context.Background(), oneImage(), true)
	require.NoError(t, err)
	assert.Equal(t, "ok", rec.Text)
	assert.Len(t, m.streamCalls, 3)
}

func TestSubmissionAttemptsBounded(t *testing.T) {
	tests := []struct {
		name         string
		retryCount   int
		wantAttempts int
	}{
		{name: "default", retryCount: 2, wantAttempts: 3},
		{name: "no retries", retryCount: 0, wantAttempts: 1},
		{name: "negative treated as zero", retryCount: -1, wantAttempts: 1},
		{name: "very negative treated as zero", retryCount: -100, wantAttempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newStubModel("never")
			for i := 0; i < 10; i++ {
				m.submitErrs = append(m.submitErrs, errors.New("503 overloaded"))
			}
			opts := testOptions()
			opts.RetryCount = tt.retryCount
			opts.Timeout = 2 * time.Second
			a, _, _ := newTestAssistant(t, m, opts)

			_, err := a.Analyze(context.Background(), oneImage(), true)
			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Contains(t, te.Error(), "503 overloaded")
			_, _, streams := m.calls()
			assert.Equal(t, tt.wantAttempts, streams)
		})
	}
}

func TestClaudeStreamOpenFailureIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	}))
	defer server.Close()

	c := claude.New("sk-test", "claude-opus-4-6", claude.WithBaseURL(server.URL))
	a, _, runs := newTestAssistant(t, c, testOptions())

	_, err := a.Analyze(context.Background(), oneImage(), true)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, int32(testOptions().RetryCount+1), calls.Load())

	recorded := runs.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, domain.RunFailed, recorded[0].Status)
}

func TestSubmissionFailure(t *testing.T) {
	m := newStubModel("never")
	m.submitErrs = []error{errors.New("401 unauthorized"), errors.New("401 unauthorized"), errors.New("401 unauthorized")}
	a, r, runs := newTestAssistant(t, m, testOptions())

	_, err := a.Analyze(context.Background(), oneImage(), true)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Error(), "401 unauthorized")
	assert.Len(t, m.streamCalls, 3)
	assert.Equal(t, StateFailed, a.State())
	assert.False(t, a.HasSolution())

	outputs, statuses := drain(r)
	require.Len(t, outputs, 1)
	assert.True(t, strings.HasPrefix(outputs[0], "# Error Processing Screenshots\n\n"))
	assert.Contains(t, outputs[0], "401 unauthorized")
	assert.True(t, strings.HasPrefix(statuses[len(statuses)-1], "Error: "))

	recorded := runs.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, domain.RunFailed, recorded[0].Status)
	assert.Contains(t, recorded[0].Error, "401")
}

func TestMidStreamFailureDiscardsPartial(t *testing.T) {
	m := newStubModel("good")
	a, r, _ := newTestAssistant(t, m, testOptions())
	_, err := a.Analyze(context.Background(), oneImage(), true)
	require.NoError(t, err)
	drain(r)

	m.chunks = []string{"par", "tial"}
	m.streamErr = errors.New("stream reset")
	_, err = a.Analyze(context.Background(), oneImage(), true)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Len(t, m.streamCalls, 2, "mid-stream errors are not retried")

	last, ok := a.LastSolution()
	require.True(t, ok)
	assert.Equal(t, "good", last.Text)
}

func TestNoOutput(t *testing.T) {
	m := newStubModel()
	a, r, runs := newTestAssistant(t, m, testOptions())

	_, err := a.Analyze(context.Background(), oneImage(), true)
	assert.ErrorIs(t, err, ErrNoOutput)
	assert.False(t, a.HasSolution())

	outputs, statuses := drain(r)
	require.Len(t, outputs, 1)
	assert.True(t, strings.HasPrefix(outputs[0], "# No Output Received"))
	assert.Equal(t, "No output received from the model", statuses[len(statuses)-1])
	assert.Equal(t, domain.RunNoOutput, runs.all()[0].Status)
}

func TestFastModeSkipsClassification(t *testing.T) {
	m := newStubModel("quick")
	a, r, _ := newTestAssistant(t, m, testOptions())

	rec, err := a.Analyze(context.Background(), oneImage(), true)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryGeneral, rec.Category)
	assert.Empty(t, m.labelCalls)
	assert.Equal(t, "fast/model", m.streamCalls[0].Model)
	assert.Equal(t, prompt.Compose(1, domain.CategoryGeneral), m.streamCalls[0].Prompt)

	outputs, _ := drain(r)
	assert.Equal(t, []string{"# General Analysis\n\nquick"}, outputs)
}

func TestNonStreamingMode(t *testing.T) {
	m := newStubModel("ignored")
	m.answer = "whole answer"
	opts := testOptions()
	opts.Streaming = false
	a, r, _ := newTestAssistant(t, m, opts)

	rec, err := a.Analyze(context.Background(), oneImage(), false)
	require.NoError(t, err)
	assert.Equal(t, "whole answer", rec.Text)
	assert.Empty(t, m.streamCalls)
	assert.Len(t, m.answerCalls, 1)

	outputs, _ := drain(r)
	assert.Equal(t, []string{"# Coding Analysis\n\nwhole answer"}, outputs)
}

func TestStartRunsInBackgroundAndRejectsSecondTrigger(t *testing.T) {
	m := newStubModel("done")
	m.block = make(chan struct{})
	a, r, _ := newTestAssistant(t, m, testOptions())

	require.NoError(t, a.Start(oneImage(), false))
	<-m.started

	assert.ErrorIs(t, a.Start(oneImage(), false), ErrBusy)
	_, err := a.Analyze(context.Background(), oneImage(), false)
	assert.ErrorIs(t, err, ErrBusy)

	close(m.block)
	a.Wait()

	assert.Equal(t, StateCompleted, a.State())
	last, ok := a.LastSolution()
	require.True(t, ok)
	assert.Equal(t, "done", last.Text)

	outputs, statuses := drain(r)
	assert.Equal(t, AnalysisPlaceholder, outputs[0])
	assert.Contains(t, statuses, "Busy: a request is already in progress")

	// the follow-up trigger is rejected while a session streams
	m.block = make(chan struct{})
	require.NoError(t, a.StartFollowUp("explain"))
	<-m.started
	_, err = a.FollowUp(context.Background(), "again")
	assert.ErrorIs(t, err, ErrBusy)
	close(m.block)
	a.Wait()
}

func TestCancel(t *testing.T) {
	m := newStubModel("never")
	m.block = make(chan struct{})
	a, r, runs := newTestAssistant(t, m, testOptions())

	assert.False(t, a.Cancel())
	require.NoError(t, a.Start(oneImage(), true))
	<-m.started

	assert.True(t, a.Cancel())
	a.Wait()

	assert.Equal(t, StateCancelled, a.State())
	assert.False(t, a.HasSolution())
	_, statuses := drain(r)
	assert.Equal(t, "Cancelled", statuses[len(statuses)-1])
	assert.Equal(t, domain.RunCancelled, runs.all()[0].Status)

	// the busy token is released after cancellation
	close(m.block)
	_, err := a.Analyze(context.Background(), oneImage(), true)
	assert.NoError(t, err)
}

func TestTimeout(t *testing.T) {
	m := newStubModel("slow")
	m.block = make(chan struct{})
	defer close(m.block)
	opts := testOptions()
	opts.Timeout = 20 * time.Millisecond
	a, _, _ := newTestAssistant(t, m, opts)

	_, err := a.Analyze(context.Background(), oneImage(), true)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateFailed, a.State())
}

func TestPanicBecomesFailure(t *testing.T) {
	m := newStubModel("x")
	m.panicky = true
	a, r, runs := newTestAssistant(t, m, testOptions())

	require.NoError(t, a.Start(oneImage(), true))
	a.Wait()

	assert.Equal(t, StateFailed, a.State())
	_, statuses := drain(r)
	assert.Equal(t, "Error: internal error: adapter exploded", statuses[len(statuses)-1])
	assert.Equal(t, domain.RunFailed, runs.all()[0].Status)

	m.panicky = false
	_, err := a.Analyze(context.Background(), oneImage(), true)
	assert.NoError(t, err, "busy token must be released after a panic")
}

func TestSlot(t *testing.T) {
	s := NewSlot()
	_, ok := s.Load()
	assert.False(t, ok)

	s.Store(domain.SolutionRecord{Text: "a"})
	s.Store(domain.SolutionRecord{Text: "b"})
	rec, ok := s.Load()
	require.True(t, ok)
	assert.Equal(t, "b", rec.Text)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.True(t, StateSubmitting.Active())
	assert.False(t, StateCancelled.Active())
}
