package ratelimit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTracker_RecordTaskAccumulates(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir, Options{FiveHourTokenBudget: 1_000_000, WeeklyTokenBudget: 5_000_000})
	require.NoError(t, err)

	require.NoError(t, tr.RecordTask("t1", "sonnet", 1000, 500, 2000))
	require.NoError(t, tr.RecordTask("t2", "sonnet", 2000, 1000, 3000))

	summary := tr.GetUsageSummary()
	require.Equal(t, int64(4500), summary.FiveHourTokens)
	require.Equal(t, int64(4500), summary.WeeklyTokens)
	require.False(t, summary.Paused)
}

func TestTracker_LocalThresholdPauses(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir, Options{FiveHourTokenBudget: 1000, FiveHourPausePct: 0.5})
	require.NoError(t, err)

	require.NoError(t, tr.RecordTask("t1", "sonnet", 600, 0, 1000))
	require.True(t, tr.IsPaused())
}

func TestTracker_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, tr.RecordTask("t1", "opus", 100, 50, 500))

	require.FileExists(t, filepath.Join(dir, "rate-limit-state.json"))

	reloaded, err := New(dir, Options{})
	require.NoError(t, err)
	summary := reloaded.GetUsageSummary()
	require.Equal(t, int64(150), summary.FiveHourTokens)
}

func TestTracker_RecordRateLimitHitPausesUntilParsedReset(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir, Options{})
	require.NoError(t, err)

	require.NoError(t, tr.RecordRateLimitHit("sonnet", "You've hit your limit · resets 6am (UTC)"))
	require.True(t, tr.IsPaused())

	summary := tr.GetUsageSummary()
	require.Equal(t, 1, summary.RateLimitHits)
	require.NotNil(t, summary.PauseUntil)
}

func TestTracker_CheckAutoResume(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir, Options{})
	require.NoError(t, err)

	require.NoError(t, tr.Pause("manual", time.Now().Add(-time.Minute)))
	require.False(t, tr.IsPaused())

	resumed := tr.CheckAutoResume()
	require.True(t, resumed)
	require.False(t, tr.IsPaused())
}

func TestTracker_SyncWithActualUsageOverridesLocal(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir, Options{FiveHourTokenBudget: 1_000_000})
	require.NoError(t, err)

	require.NoError(t, tr.SyncWithActualUsage(97.0, 40.0))
	summary := tr.GetUsageSummary()
	require.Equal(t, 97.0, summary.FiveHourPct)
	require.True(t, summary.Paused)
}

func TestParseResetTime(t *testing.T) {
	parsed, ok := ParseResetTime("You've hit your limit · resets 2:30pm (UTC)")
	require.True(t, ok)
	require.Equal(t, "UTC", parsed.Timezone)

	_, ok = ParseResetTime("an unrelated error message")
	require.False(t, ok)
}
