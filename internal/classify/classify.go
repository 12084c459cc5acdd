// Package classify labels screenshots and follow-up questions.
package classify

import (
	"context"
	"log/slog"

	"github.com/vbonduro/screensolve/internal/domain"
	"github.com/vbonduro/screensolve/internal/model"
)

const labelPrompt = `ONLY respond with one of these exact words based on what you see in the image:
- "coding" - if this shows a coding/programming problem or code snippet
- "multiple_choice" - if this shows a multiple choice question or quiz (including history, science, etc.)
- "debugging" - if this shows an error message or debugging scenario
- "system_design" - if this shows a system design/architecture problem
- "general" - if it doesn't clearly fit any of the above categories

RESPOND ONLY with the single most appropriate word from the list above, nothing else.
Example: If you see multiple choice history questions, respond with ONLY: multiple_choice`

const checklistPrompt = `Analyze what's shown in this image and answer the following yes/no questions:
1. Does this image show multiple choice questions? (yes/no)
2. Does this image show programming code or a coding problem? (yes/no)
3. Does this image show error messages or debugging information? (yes/no)
4. Does this image show a system design diagram or architecture? (yes/no)

Format your response exactly like this example:
1. yes
2. no
3. no
4. no`

const (
	detectTemperature  = 0.1
	detectTopP         = 0.95
	labelMaxTokens     = 10
	checklistMaxTokens = 50
)

// Classifier runs the two-stage content detection against a fast model.
type Classifier struct {
	model     model.Completer
	modelName string
	tables    *Tables
	logger    *slog.Logger
}

func New(m model.Completer, modelName string, tables *Tables, logger *slog.Logger) *Classifier {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Classifier{
		model:     m,
		modelName: modelName,
		tables:    tables,
		logger:    logger,
	}
}

func (c *Classifier) Tables() *Tables { return c.tables }

// Classify returns the category of the first image in batch. An empty batch
// is treated as coding. Errors never escape: any failed model call degrades
// to general. status, if non-nil, receives progress messages.
func (c *Classifier) Classify(ctx context.Context, batch domain.CaptureBatch, status func(string)) domain.Category {
	if len(batch) == 0 {
		c.logger.Warn("no images provided for content detection")
		return domain.CategoryCoding
	}
	if status == nil {
		status = func(string) {}
	}
	first := batch[0]

	status("Running content detection...")
	raw, err := c.model.Complete(ctx, c.request(labelPrompt, labelMaxTokens, first))
	if err != nil {
		c.logger.Error("content detection failed", "error", err)
		return domain.CategoryGeneral
	}
	c.logger.Debug("raw detection response", "response", raw)

	cat := c.tables.Resolve(Normalize(raw))
	if cat.Valid() {
		c.logger.Info("content type detected", "category", cat)
		return cat
	}

	status("Running secondary content detection...")
	c.logger.Info("using secondary content detection", "primary", cat)
	reply, err := c.model.Complete(ctx, c.request(checklistPrompt, checklistMaxTokens, first))
	if err != nil {
		c.logger.Error("secondary content detection failed", "error", err)
		return domain.CategoryGeneral
	}
	cat = ParseChecklist(reply)
	c.logger.Info("secondary detection result", "category", cat)
	return cat
}

func (c *Classifier) request(prompt string, maxTokens int, img domain.Image) model.Request {
	return model.Request{
		Model:       c.modelName,
		Prompt:      prompt,
		Images:      []domain.Image{img},
		Temperature: detectTemperature,
		MaxTokens:   maxTokens,
		TopP:        detectTopP,
	}
}
