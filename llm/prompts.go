package llm

import (
	"fmt"
	"strings"
	"time"

	"tradeloom/helpers"
)

// Constants for summary formatting
const (
	maxSummaryWords = 120
	dateLayout      = "2006-01-02"
)

// LessonDigest carries the computed statistics of one mined lesson.
// Everything the summary may mention is in here; the prompt forbids the
// model from reaching beyond it.
type LessonDigest struct {
	PatternKey  string
	Scope       string
	Kind        string
	BraidLevel  int
	SampleCount int
	MeanOutcome float64
	Baseline    float64
	Delta       float64
	Variance    float64
	Edge        float64
	WindowStart time.Time
	WindowEnd   time.Time
}

// FormatLessonPrompt creates a prompt for the LLM to write one lesson
// summary from mined statistics
func FormatLessonPrompt(d LessonDigest) string {
	var sb strings.Builder
	sb.Grow(1024)

	sb.WriteString("A statistical learning pass over trading evidence produced the finding below. Write the lesson for the trading desk:\n\n")

	sb.WriteString(fmt.Sprintf("**%s** (%s, abstraction level %d)\n", d.PatternKey, d.Kind, d.BraidLevel))
	sb.WriteString(fmt.Sprintf("   - Context: %s\n", helpers.FormatScope(d.Scope)))
	sb.WriteString(fmt.Sprintf("   - Evidence: %d observations between %s and %s\n",
		d.SampleCount, d.WindowStart.Format(dateLayout), d.WindowEnd.Format(dateLayout)))
	sb.WriteString(fmt.Sprintf("   - Mean outcome: %s vs baseline %s (delta %s)\n",
		helpers.FormatPercent(d.MeanOutcome), helpers.FormatPercent(d.Baseline), helpers.FormatPercent(d.Delta)))
	sb.WriteString(fmt.Sprintf("   - Outcome variance: %.4f\n", d.Variance))
	sb.WriteString(fmt.Sprintf("   - Edge statistic: %s\n\n", helpers.FormatEdge(d.Edge)))

	sb.WriteString("Task:\n")
	sb.WriteString("1. **State the finding**: what does this pattern do relative to the baseline?\n")
	sb.WriteString("2. **Qualify it**: how far should the desk trust it given the sample size and variance?\n")
	sb.WriteString("3. **Bound it**: name the exact context it applies to, nothing wider.\n")
	sb.WriteString(fmt.Sprintf("\nAnswer in plain English, to the point, professional. At most %d words.", maxSummaryWords))

	return sb.String()
}

// TemplateLessonSummary renders the deterministic fallback summary from
// the same statistics. Produced whenever the LLM is disabled, cooling
// down, or failing; the numeric pipeline never depends on the LLM.
func TemplateLessonSummary(d LessonDigest) string {
	direction := "outperforms"
	if d.Delta < 0 {
		direction = "underperforms"
	}

	return fmt.Sprintf(
		"%s in %s %s the %s baseline: mean outcome %s vs %s across %d observations (%s to %s). Edge %s at abstraction level %d.",
		d.PatternKey,
		helpers.FormatScope(d.Scope),
		direction,
		d.Kind,
		helpers.FormatPercent(d.MeanOutcome),
		helpers.FormatPercent(d.Baseline),
		d.SampleCount,
		d.WindowStart.Format(dateLayout),
		d.WindowEnd.Format(dateLayout),
		helpers.FormatEdge(d.Edge),
		d.BraidLevel,
	)
}
