// Package ratelimit tracks rolling token usage against 5-hour and weekly
// budgets, pauses admission when thresholds are crossed or an explicit
// rate-limit message is observed, and auto-resumes once wall-clock passes
// the pause deadline.
package ratelimit

import "time"

// ModelPricing mirrors the per-model USD-per-million-token rates used to
// translate raw token counts into a cost figure for the usage summary.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// DefaultCostModel returns baseline pricing for the model tiers Undercity
// escalates through. Unknown models fall back to zero cost rather than
// failing a task.
func DefaultCostModel() map[string]ModelPricing {
	return map[string]ModelPricing{
		"haiku":  {InputPer1M: 1.00, OutputPer1M: 5.00},
		"sonnet": {InputPer1M: 3.00, OutputPer1M: 15.00},
		"opus":   {InputPer1M: 15.00, OutputPer1M: 75.00},
	}
}

// UsageEntry is one recorded agent invocation's token accounting.
type UsageEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	TaskID       string    `json:"taskId"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"inputTokens"`
	OutputTokens int64     `json:"outputTokens"`
	DurationMs   int64     `json:"durationMs"`
	CostUSD      float64   `json:"costUsd"`
}

// UsageBlock is a 5-hour rolling billing window, floored to the hour it
// started in, the same bucketing rule Anthropic applies to Claude Code
// billing windows.
type UsageBlock struct {
	StartTime     time.Time    `json:"startTime"`
	EndTime       time.Time    `json:"endTime"`
	ActualEndTime time.Time    `json:"actualEndTime"`
	TotalTokens   int64        `json:"totalTokens"`
	InputTokens   int64        `json:"inputTokens"`
	OutputTokens  int64        `json:"outputTokens"`
	CostUSD       float64      `json:"costUsd"`
	Entries       []UsageEntry `json:"entries"`
	Models        []string     `json:"models"`
}

// BurnRate is consumption velocity computed from a block's entry history.
type BurnRate struct {
	TokensPerMinute float64 `json:"tokensPerMinute"`
	CostPerHour     float64 `json:"costPerHour"`
}

// Projection estimates end-of-block totals assuming the current burn rate
// holds for the remainder of the window.
type Projection struct {
	TotalTokens      int64   `json:"totalTokens"`
	TotalCost        float64 `json:"totalCost"`
	RemainingMinutes int     `json:"remainingMinutes"`
}

// floorToHour floors t to its hour boundary, the start of its 5-hour block.
func floorToHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// IsActive reports whether b is still within its 5-hour window and has seen
// activity recently enough not to be considered stale.
func (b *UsageBlock) IsActive(now time.Time) bool {
	if now.After(b.EndTime) {
		return false
	}
	if b.ActualEndTime.IsZero() {
		return true
	}
	return now.Sub(b.ActualEndTime) < 5*time.Hour
}

// CalculateBurnRate derives tokens/minute and cost/hour from the block's
// first and last entries. Returns nil with fewer than two entries.
func (b *UsageBlock) CalculateBurnRate() *BurnRate {
	if len(b.Entries) < 2 {
		return nil
	}
	first := b.Entries[0]
	last := b.Entries[len(b.Entries)-1]
	minutes := last.Timestamp.Sub(first.Timestamp).Minutes()
	if minutes <= 0 {
		return nil
	}
	return &BurnRate{
		TokensPerMinute: float64(b.TotalTokens) / minutes,
		CostPerHour:     (b.CostUSD / minutes) * 60,
	}
}

// Project extrapolates the burn rate to the end of the block's window.
func (b *UsageBlock) Project() *Projection {
	rate := b.CalculateBurnRate()
	if rate == nil {
		return nil
	}
	remaining := time.Until(b.EndTime).Minutes()
	if remaining < 0 {
		remaining = 0
	}
	return &Projection{
		TotalTokens:      b.TotalTokens + int64(rate.TokensPerMinute*remaining),
		TotalCost:        b.CostUSD + (rate.CostPerHour/60)*remaining,
		RemainingMinutes: int(remaining),
	}
}

// AddEntry folds a usage entry's tokens and cost into the block's totals.
func (b *UsageBlock) AddEntry(e UsageEntry) {
	b.Entries = append(b.Entries, e)
	b.TotalTokens += e.InputTokens + e.OutputTokens
	b.InputTokens += e.InputTokens
	b.OutputTokens += e.OutputTokens
	b.CostUSD += e.CostUSD
	b.ActualEndTime = e.Timestamp
	for _, m := range b.Models {
		if m == e.Model {
			return
		}
	}
	b.Models = append(b.Models, e.Model)
}
