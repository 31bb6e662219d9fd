package filetracker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractPathsFromText(t *testing.T) {
	paths := ExtractPathsFromText("please update internal/runner/session.go and add a test in internal/runner/session_test.go")
	require.Contains(t, paths, "internal/runner/session.go")
	require.Contains(t, paths, "internal/runner/session_test.go")
}

func TestTracker_DetectConflicts_BothEdit(t *testing.T) {
	tr := New()
	tr.StartTaskTracking("t1", "/wt1")
	tr.StartTaskTracking("t2", "/wt2")
	tr.RecordAccess("t1", "src/router.go", AccessEdit)
	tr.RecordAccess("t2", "src/router.go", AccessEdit)

	conflicts := tr.DetectConflicts([]string{"t1", "t2"})
	require.Contains(t, conflicts, "src/router.go")
	require.ElementsMatch(t, []string{"t1", "t2"}, conflicts["src/router.go"])
}

func TestTracker_DetectConflicts_NoOverlapNoConflict(t *testing.T) {
	tr := New()
	tr.StartTaskTracking("t1", "/wt1")
	tr.StartTaskTracking("t2", "/wt2")
	tr.RecordAccess("t1", "a.go", AccessEdit)
	tr.RecordAccess("t2", "b.go", AccessEdit)

	conflicts := tr.DetectConflicts([]string{"t1", "t2"})
	require.Empty(t, conflicts)
}

func TestTracker_DetectConflicts_EditVsConfidentPrediction(t *testing.T) {
	tr := New()
	tr.StartTaskTracking("t1", "/wt1")
	tr.RecordAccess("t1", "internal/router/handler.go", AccessEdit)
	tr.StopTaskTracking("t1", "add rate limiting to the router")

	tr.StartTaskTracking("t2", "/wt2")
	tr.StopTaskTracking("t2", "add caching to the router")

	conflicts := tr.DetectConflicts([]string{"t1", "t2"})
	require.Contains(t, conflicts, "internal/router/handler.go")
	require.ElementsMatch(t, []string{"t1", "t2"}, conflicts["internal/router/handler.go"])
}

func TestTracker_PredictRelevantFiles_ColdFallback(t *testing.T) {
	tr := New()
	preds := tr.PredictRelevantFiles("add a handler in internal/runner/session.go", 5)
	require.NotEmpty(t, preds)
	require.Equal(t, "internal/runner/session.go", preds[0].Path)
	require.Equal(t, 1.0, preds[0].Confidence)
}

func TestTracker_PredictRelevantFiles_Learned(t *testing.T) {
	tr := New()
	tr.StartTaskTracking("t1", "/wt1")
	tr.RecordAccess("t1", "internal/router/handler.go", AccessEdit)
	tr.StopTaskTracking("t1", "add rate limiting to the router")

	preds := tr.PredictRelevantFiles("add caching to the router", 5)
	require.NotEmpty(t, preds)
	require.Equal(t, "internal/router/handler.go", preds[0].Path)
}

func TestValidateBatchOverlaps(t *testing.T) {
	err := ValidateBatchOverlaps([]TaskFiles{
		{TaskID: "t1", Files: []string{"a.go"}},
		{TaskID: "t2", Files: []string{"a.go"}},
	})
	require.Error(t, err)

	err = ValidateBatchOverlaps([]TaskFiles{
		{TaskID: "t1", Files: []string{"a.go"}},
		{TaskID: "t2", Files: []string{"b.go"}},
	})
	require.NoError(t, err)
}
