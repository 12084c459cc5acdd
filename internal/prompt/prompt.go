// Package prompt builds the instruction text sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/vbonduro/screensolve/internal/domain"
)

// multiImageThreshold is the image count above which the combined-context
// note is added.
const multiImageThreshold = 3

// Template returns the instruction template for c. Unknown categories and
// general share one template.
func Template(c domain.Category) string {
	if t, ok := templates[c]; ok {
		return t
	}
	return generalTemplate
}

// Compose builds the analysis prompt for imageCount screenshots of kind c.
func Compose(imageCount int, c domain.Category) string {
	var b strings.Builder
	b.WriteString(baseIntro)
	b.WriteString(Template(c))
	if imageCount > multiImageThreshold {
		fmt.Fprintf(&b, multiImageFormat, imageCount)
	}
	b.WriteString(universalGuidelines)
	return b.String()
}

// ComposeFollowUp embeds the prior solution and the question ahead of the
// intent-specific instructions. An empty prior yields a minimal context.
func ComposeFollowUp(question, prior string, intent domain.Intent) string {
	var b strings.Builder
	if prior == "" {
		fmt.Fprintf(&b, "User's follow-up question: %s\n\nProvide a general answer.", question)
	} else {
		fmt.Fprintf(&b, "You previously analyzed a problem and provided this solution:\n\n%s\n\nUser's follow-up question: %s\n\n", prior, question)
	}

	suffix, ok := followUpSuffixes[intent]
	if !ok {
		suffix = followUpSuffixes[domain.IntentGeneral]
	}
	b.WriteString(suffix)
	return b.String()
}
