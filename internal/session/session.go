// Package session runs analysis and follow-up completions and publishes their
// progress to a UI surface.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/vbonduro/screensolve/internal/classify"
	"github.com/vbonduro/screensolve/internal/domain"
	"github.com/vbonduro/screensolve/internal/model"
	"github.com/vbonduro/screensolve/internal/prompt"
)

const (
	AnalysisPlaceholder = "# Analyzing Problem...\n\n*Processing your screenshots and generating solution...*"
	FollowUpPlaceholder = "# Processing Follow-up Request...\n\n*Please wait while we analyze your follow-up request...*"

	followUpHeading = "# Follow-up Response\n\n"
)

// Publisher receives the two outbound event kinds. relay.Relay implements it.
type Publisher interface {
	Output(text string)
	Status(text string)
}

// runRecorder is the subset of store.RunStore the Assistant requires.
type runRecorder interface {
	Create(ctx context.Context, run *domain.Run) error
}

// Options are the per-request model parameters.
type Options struct {
	Model        string
	FastModel    string
	FastCategory domain.Category
	Temperature  float64
	MaxTokens    int
	TopP         float64
	// RetryCount is the number of extra submission attempts after the first.
	RetryCount int
	Timeout    time.Duration
	Streaming  bool
}

// Assistant owns the single-flight completion pipeline. At most one session
// runs at a time; a second trigger is rejected with ErrBusy.
type Assistant struct {
	completer  model.Completer
	classifier *classify.Classifier
	tables     *classify.Tables
	slot       *Slot
	pub        Publisher
	runs       runRecorder
	opts       Options
	logger     *slog.Logger

	busy *semaphore.Weighted
	wg   sync.WaitGroup

	mu     sync.Mutex
	state  State
	cancel context.CancelCauseFunc

	newBackOff func() backoff.BackOff
}

// New builds an Assistant. A nil completer yields an Assistant whose every
// trigger fails with ErrNotConfigured. runs may be nil.
func New(
	completer model.Completer,
	classifier *classify.Classifier,
	slot *Slot,
	pub Publisher,
	runs runRecorder,
	opts Options,
	logger *slog.Logger,
) *Assistant {
	if classifier == nil && completer != nil {
		classifier = classify.New(completer, opts.Model, nil, logger)
	}
	tables := classify.DefaultTables()
	if classifier != nil {
		tables = classifier.Tables()
	}
	if slot == nil {
		slot = NewSlot()
	}
	if opts.FastCategory == "" {
		opts.FastCategory = domain.CategoryGeneral
	}
	if opts.FastModel == "" {
		opts.FastModel = opts.Model
	}
	opts.RetryCount = max(0, opts.RetryCount)
	return &Assistant{
		completer:  completer,
		classifier: classifier,
		tables:     tables,
		slot:       slot,
		pub:        pub,
		runs:       runs,
		opts:       opts,
		logger:     logger,
		busy:       semaphore.NewWeighted(1),
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

func (a *Assistant) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Assistant) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// HasSolution reports whether a follow-up has context to work from.
func (a *Assistant) HasSolution() bool {
	_, ok := a.slot.Load()
	return ok
}

// LastSolution returns the current SolutionRecord, if any.
func (a *Assistant) LastSolution() (domain.SolutionRecord, bool) {
	return a.slot.Load()
}

// Cancel stops the in-flight session. It reports whether one was running.
func (a *Assistant) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel == nil {
		return false
	}
	a.cancel(ErrCancelled)
	return true
}

// Wait blocks until every session started with Start or StartFollowUp has
// finished.
func (a *Assistant) Wait() {
	a.wg.Wait()
}

// Start runs an analysis of batch on a background goroutine. It returns
// immediately; progress and results arrive through the Publisher.
func (a *Assistant) Start(batch domain.CaptureBatch, fast bool) error {
	if err := a.checkAnalysis(batch); err != nil {
		return err
	}
	if err := a.acquire(); err != nil {
		return err
	}
	a.pub.Output(AnalysisPlaceholder)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.busy.Release(1)
		_, _ = a.analyze(context.Background(), batch, fast)
	}()
	return nil
}

// Analyze runs an analysis of batch and blocks until it finishes.
func (a *Assistant) Analyze(ctx context.Context, batch domain.CaptureBatch, fast bool) (domain.SolutionRecord, error) {
	if err := a.checkAnalysis(batch); err != nil {
		return domain.SolutionRecord{}, err
	}
	if err := a.acquire(); err != nil {
		return domain.SolutionRecord{}, err
	}
	defer a.busy.Release(1)
	return a.analyze(ctx, batch, fast)
}

// StartFollowUp runs a follow-up on a background goroutine.
func (a *Assistant) StartFollowUp(question string) error {
	prior, err := a.checkFollowUp()
	if err != nil {
		return err
	}
	if err := a.acquire(); err != nil {
		return err
	}
	a.pub.Output(FollowUpPlaceholder)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.busy.Release(1)
		_, _ = a.followUp(context.Background(), question, prior)
	}()
	return nil
}

// FollowUp answers question in the context of the current SolutionRecord and
// blocks until it finishes. Without a prior solution it publishes a single
// status and returns ErrNoContext.
func (a *Assistant) FollowUp(ctx context.Context, question string) (domain.SolutionRecord, error) {
	prior, err := a.checkFollowUp()
	if err != nil {
		return domain.SolutionRecord{}, err
	}
	if err := a.acquire(); err != nil {
		return domain.SolutionRecord{}, err
	}
	defer a.busy.Release(1)
	return a.followUp(ctx, question, prior)
}

func (a *Assistant) checkAnalysis(batch domain.CaptureBatch) error {
	if a.completer == nil {
		a.pub.Status("Error: API client not initialized.")
		return ErrNotConfigured
	}
	if len(batch) == 0 {
		a.pub.Status("No screenshots to process.")
		return ErrNoImages
	}
	return nil
}

func (a *Assistant) checkFollowUp() (domain.SolutionRecord, error) {
	if a.completer == nil {
		a.pub.Status("Error: API client not initialized.")
		return domain.SolutionRecord{}, ErrNotConfigured
	}
	prior, ok := a.slot.Load()
	if !ok || prior.Text == "" {
		a.logger.Warn("follow-up requested without a prior solution")
		a.pub.Status("No previous analysis found to follow up on")
		return domain.SolutionRecord{}, ErrNoContext
	}
	return prior, nil
}

func (a *Assistant) acquire() error {
	if !a.busy.TryAcquire(1) {
		a.pub.Status("Busy: a request is already in progress")
		return ErrBusy
	}
	return nil
}

// begin derives the session context, applying the request timeout and
// registering the cancel func for Cancel.
func (a *Assistant) begin(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	a.mu.Lock()
	a.cancel = cancel
	a.state = StateSubmitting
	a.mu.Unlock()

	tctx, tcancel := ctx, context.CancelFunc(func() {})
	if a.opts.Timeout > 0 {
		tctx, tcancel = context.WithTimeout(ctx, a.opts.Timeout)
	}
	return tctx, func() {
		tcancel()
		a.mu.Lock()
		a.cancel = nil
		a.mu.Unlock()
		cancel(nil)
	}
}

func (a *Assistant) analyze(parent context.Context, batch domain.CaptureBatch, fast bool) (rec domain.SolutionRecord, err error) {
	ctx, end := a.begin(parent)
	defer end()

	run := &domain.Run{
		ID:        ulid.Make().String(),
		Kind:      domain.RunAnalysis,
		Model:     a.opts.Model,
		Images:    len(batch),
		StartedAt: time.Now(),
	}
	defer a.recoverPanic(run, &err)

	a.logger.Info("analysis started", "run_id", run.ID, "images", len(batch), "fast", fast)
	a.pub.Status("Processing screenshots...")
	a.pub.Status(fmt.Sprintf("Processing %d image(s)...", len(batch)))

	var category domain.Category
	if fast {
		category = a.opts.FastCategory
		run.Model = a.opts.FastModel
		a.pub.Status(fmt.Sprintf("Fast mode: using %s prompt", category))
	} else {
		category = a.classifier.Classify(ctx, batch, a.pub.Status)
		a.pub.Status(fmt.Sprintf("Detected content type: %s", category))
	}
	run.Label = string(category)
	a.logger.Info("using prompt type", "run_id", run.ID, "category", category)

	req := model.Request{
		Model:       run.Model,
		Prompt:      prompt.Compose(len(batch), category),
		Images:      batch,
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
		TopP:        a.opts.TopP,
	}
	a.pub.Status(fmt.Sprintf("Analyzing %s problem with %s...", category, run.Model))

	heading := fmt.Sprintf("# %s Analysis\n\n", category.Title())
	text, err := a.complete(ctx, run, req, heading)
	if err != nil {
		a.fail(run, err, "Screenshots", "screenshots")
		return domain.SolutionRecord{}, err
	}

	rec = a.finish(run, text, category)
	a.pub.Status(fmt.Sprintf("Analysis complete in %.2fs", rec.Duration.Seconds()))
	return rec, nil
}

func (a *Assistant) followUp(parent context.Context, question string, prior domain.SolutionRecord) (rec domain.SolutionRecord, err error) {
	ctx, end := a.begin(parent)
	defer end()

	intent := a.tables.Intent(question)
	run := &domain.Run{
		ID:        ulid.Make().String(),
		Kind:      domain.RunFollowUp,
		Label:     string(intent),
		Model:     a.opts.Model,
		StartedAt: time.Now(),
	}
	defer a.recoverPanic(run, &err)

	a.logger.Info("follow-up started", "run_id", run.ID, "intent", intent)
	a.pub.Status(fmt.Sprintf("Processing follow-up request with %s...", run.Model))

	req := model.Request{
		Model:       run.Model,
		Prompt:      prompt.ComposeFollowUp(question, prior.Text, intent),
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
		TopP:        a.opts.TopP,
	}

	text, err := a.complete(ctx, run, req, followUpHeading)
	if err != nil {
		a.fail(run, err, "Follow-up", "follow-up")
		return domain.SolutionRecord{}, err
	}

	rec = a.finish(run, text, prior.Category)
	a.pub.Status(fmt.Sprintf("Follow-up complete in %.2fs", rec.Duration.Seconds()))
	return rec, nil
}

// finish promotes the accumulated text to the current SolutionRecord.
func (a *Assistant) finish(run *domain.Run, text string, category domain.Category) domain.SolutionRecord {
	run.Status = domain.RunCompleted
	run.Duration = time.Since(run.StartedAt)
	a.setState(StateCompleted)

	rec := domain.SolutionRecord{
		RunID:       run.ID,
		Text:        text,
		Category:    category,
		Duration:    run.Duration,
		CompletedAt: time.Now(),
	}
	a.slot.Store(rec)
	a.record(run)
	a.logger.Info("session complete", "run_id", run.ID, "kind", run.Kind, "chunks", run.Chunks, "duration", run.Duration)
	return rec
}

// fail moves the session to its terminal error state and tells the UI.
func (a *Assistant) fail(run *domain.Run, err error, title, noun string) {
	run.Duration = time.Since(run.StartedAt)
	run.Error = err.Error()

	switch {
	case errors.Is(err, ErrCancelled):
		run.Status = domain.RunCancelled
		a.setState(StateCancelled)
		a.logger.Info("session cancelled", "run_id", run.ID)
		a.pub.Status("Cancelled")
	case errors.Is(err, ErrNoOutput):
		run.Status = domain.RunNoOutput
		a.setState(StateCompleted)
		a.logger.Warn("no output received", "run_id", run.ID)
		a.pub.Status("No output received from the model")
		a.pub.Output(noOutputText(run.Kind))
	default:
		run.Status = domain.RunFailed
		a.setState(StateFailed)
		a.logger.Error("session failed", "run_id", run.ID, "error", err)
		a.pub.Status("Error: " + err.Error())
		a.pub.Output(fmt.Sprintf("# Error Processing %s\n\nThere was an error processing your %s:\n\n```\n%s\n```\n\nPlease try again.", title, noun, err))
	}
	a.record(run)
}

// recoverPanic converts a panic in the worker into a failed session.
func (a *Assistant) recoverPanic(run *domain.Run, err *error) {
	r := recover()
	if r == nil {
		return
	}
	a.logger.Error("session panicked", "run_id", run.ID, "panic", r)
	*err = fmt.Errorf("internal error: %v", r)
	run.Status = domain.RunFailed
	run.Error = (*err).Error()
	run.Duration = time.Since(run.StartedAt)
	a.setState(StateFailed)
	a.pub.Status("Error: " + (*err).Error())
	a.record(run)
}

func (a *Assistant) record(run *domain.Run) {
	if a.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.runs.Create(ctx, run); err != nil {
		a.logger.Error("failed to record run", "run_id", run.ID, "error", err)
	}
}

func noOutputText(kind domain.RunKind) string {
	if kind == domain.RunFollowUp {
		return "# Follow-up Processing Issue\n\n" +
			"The follow-up was processed, but no response was received from the AI.\n\n" +
			"This can happen if:\n" +
			"- The AI service had a temporary issue\n" +
			"- The follow-up request was unclear\n" +
			"- There was an internal processing error\n\n" +
			"Please try again with a more specific follow-up request."
	}
	return "# No Output Received\n\n" +
		"The screenshots were processed, but no response was received from the AI.\n\n" +
		"This can happen if:\n" +
		"- The AI service had a temporary issue\n" +
		"- The screenshots did not show a recognizable problem\n" +
		"- The response was filtered by the provider\n\n" +
		"Please try again, or capture a clearer screenshot."
}
