package domain

import (
	"strings"
	"time"
)

// Image is one captured screenshot.
type Image struct {
	Data     []byte
	MimeType string
}

// CaptureBatch is an ordered set of screenshots for one analysis request, in
// capture order.
type CaptureBatch []Image

// Category is the kind of problem shown in a screenshot.
type Category string

const (
	CategoryCoding         Category = "coding"
	CategoryMultipleChoice Category = "multiple_choice"
	CategoryDebugging      Category = "debugging"
	CategorySystemDesign   Category = "system_design"
	CategoryGeneral        Category = "general"
)

// Categories lists the closed label set.
var Categories = []Category{
	CategoryCoding,
	CategoryMultipleChoice,
	CategoryDebugging,
	CategorySystemDesign,
	CategoryGeneral,
}

func (c Category) Valid() bool {
	switch c {
	case CategoryCoding, CategoryMultipleChoice, CategoryDebugging, CategorySystemDesign, CategoryGeneral:
		return true
	}
	return false
}

// Title upper-cases the first letter of each underscore-separated word, so
// "multiple_choice" becomes "Multiple_Choice".
func (c Category) Title() string {
	parts := strings.Split(string(c), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "_")
}

// Intent is the kind of follow-up question being asked.
type Intent string

const (
	IntentErrorFix     Intent = "error_fix"
	IntentExplanation  Intent = "explanation"
	IntentOptimization Intent = "optimization"
	IntentAlternative  Intent = "alternative"
	IntentGeneral      Intent = "general"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentErrorFix, IntentExplanation, IntentOptimization, IntentAlternative, IntentGeneral:
		return true
	}
	return false
}

// SolutionRecord is the last fully completed analysis result.
type SolutionRecord struct {
	RunID       string
	Text        string
	Category    Category
	Duration    time.Duration
	CompletedAt time.Time
}

// RunKind distinguishes image analysis from follow-up runs.
type RunKind string

const (
	RunAnalysis RunKind = "analysis"
	RunFollowUp RunKind = "followup"
)

// RunStatus is the terminal state of a session.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunNoOutput  RunStatus = "no_output"
	RunCancelled RunStatus = "cancelled"
)

// Run is operational metadata for one completion session. It never carries
// prompt or solution text.
type Run struct {
	ID        string
	Kind      RunKind
	Label     string
	Model     string
	Status    RunStatus
	Chunks    int
	Images    int
	Duration  time.Duration
	Error     string
	StartedAt time.Time
}
