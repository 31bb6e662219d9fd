package worker

import (
	"strconv"

	"undercity/internal/agent"
)

// briefingSize is the size budget applied to a context briefing, scaled by
// tier — a cheap tier gets a minimal briefing to keep its limited context
// window focused, while the top tier gets the full picture.
type briefingSize int

const (
	briefingMinimal briefingSize = iota
	briefingCompact
	briefingFull
)

// maxFiles bounds how many predicted/sibling file paths briefingSize lists
// explicitly before falling back to "and N more".
func (b briefingSize) maxFiles() int {
	switch b {
	case briefingMinimal:
		return 5
	case briefingCompact:
		return 15
	default:
		return 50
	}
}

// tokenBudget caps the rendered briefing text itself, on top of maxFiles'
// item-count cap: a handful of very long paths (or a verbose sibling list)
// can still blow a cheap tier's context window even under the file cap.
func (b briefingSize) tokenBudget() int {
	switch b {
	case briefingMinimal:
		return 500
	case briefingCompact:
		return 2000
	default:
		return 8000
	}
}

func sizeForTier(tier string) briefingSize {
	switch tier {
	case "haiku":
		return briefingMinimal
	case "sonnet":
		return briefingCompact
	default:
		return briefingFull
	}
}

// buildBriefing renders the target-file and sibling-boundary block fed into
// the execute-phase prompt, bounded to the tier's size budget by both item
// count and a hard token ceiling.
func buildBriefing(predictedFiles, siblingBoundaries []string, tier string) (briefing, siblingBlock string) {
	size := sizeForTier(tier)
	briefing = agent.TruncateToTokenLimit(joinBounded(predictedFiles, size.maxFiles()), size.tokenBudget())
	siblingBlock = agent.TruncateToTokenLimit(joinBounded(siblingBoundaries, size.maxFiles()), size.tokenBudget())
	return briefing, siblingBlock
}

// truncateForTier bounds a free-text prompt field (ticket context, plan,
// diff, failure summary) to tier's token budget before it's folded into an
// agent prompt.
func truncateForTier(text, tier string) string {
	return agent.TruncateToTokenLimit(text, sizeForTier(tier).tokenBudget())
}

func joinBounded(items []string, max int) string {
	if len(items) == 0 {
		return "(none)"
	}
	out := items
	omitted := 0
	if len(out) > max {
		omitted = len(out) - max
		out = out[:max]
	}
	result := ""
	for _, item := range out {
		result += "- " + item + "\n"
	}
	if omitted > 0 {
		result += "(and " + strconv.Itoa(omitted) + " more)\n"
	}
	return result
}
