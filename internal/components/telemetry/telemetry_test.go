package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	recorder := NewRecorderAPI()
	scoped := NewScopedAPI("bump", NewScopedAPI("executor", recorder))

	scoped.ReportBroken("attempt", "oops")
	scoped.ReportWarning("attempt")
	scoped.ReportInfo("waiting")
	scoped.ReportCount("attempts", 3)

	reports := recorder.Reports()
	require.Len(t, reports, 4)
	require.Equal(t, "executor.bump.attempt", reports[0].Id)
	require.Equal(t, []any{"oops"}, reports[0].Params)
	require.Equal(t, LevelWarning, reports[1].Level)
	require.Equal(t, "executor: bump: waiting", reports[2].Id)
	require.Equal(t, int64(3), reports[3].Count)

	require.Len(t, recorder.Filter(LevelBroken, "attempt"), 1)
	require.Empty(t, recorder.Filter(LevelDebug, ""))
}
