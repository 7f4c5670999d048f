package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxidepm/oxidepm/internal/apperr"
	"github.com/oxidepm/oxidepm/internal/appspec"
)

func openTest(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestInsertAndGetApp(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()

	spec := &appspec.AppSpec{Name: "echo-srv", Mode: appspec.ModeRawCommand, Command: "sleep", Args: []string{"3600"}}
	require.NoError(t, r.InsertApp(ctx, spec))
	require.NotZero(t, spec.ID)

	got, err := r.GetByName(ctx, "echo-srv")
	require.NoError(t, err)
	require.Equal(t, spec.ID, got.ID)
	require.Equal(t, "sleep", got.Command)

	byID, err := r.GetByID(ctx, spec.ID)
	require.NoError(t, err)
	require.Equal(t, "echo-srv", byID.Name)
}

func TestInsertAppDuplicateNameRejected(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()

	require.NoError(t, r.InsertApp(ctx, &appspec.AppSpec{Name: "dup", Mode: appspec.ModeRawCommand}))
	err := r.InsertApp(ctx, &appspec.AppSpec{Name: "dup", Mode: appspec.ModeRawCommand})
	require.Error(t, err)
	require.Equal(t, apperr.AppAlreadyExists, apperr.KindOf(err))
}

func TestGetByNameNotFound(t *testing.T) {
	r := openTest(t)
	_, err := r.GetByName(context.Background(), "nope")
	require.Error(t, err)
	require.Equal(t, apperr.AppNotFound, apperr.KindOf(err))
}

func TestDeleteApp(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()
	spec := &appspec.AppSpec{Name: "to-delete", Mode: appspec.ModeRawCommand}
	require.NoError(t, r.InsertApp(ctx, spec))
	require.NoError(t, r.DeleteApp(ctx, spec.ID))
	_, err := r.GetByID(ctx, spec.ID)
	require.Error(t, err)
}

func TestRunsAndMetrics(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()
	spec := &appspec.AppSpec{Name: "runs-app", Mode: appspec.ModeRawCommand}
	require.NoError(t, r.InsertApp(ctx, spec))

	runID, err := r.InsertRun(ctx, spec.ID, 1234)
	require.NoError(t, err)
	require.NoError(t, r.IncrementRestarts(ctx, runID))
	code := 0
	require.NoError(t, r.UpdateRunStop(ctx, runID, appspec.StatusStopped, &code))

	for i := 0; i < 5; i++ {
		require.NoError(t, r.InsertMetric(ctx, spec.ID, MetricSample{CPUPercent: float64(i), MemoryBytes: uint64(i * 1024)}))
	}
	samples, err := r.TailMetrics(ctx, spec.ID, 3)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	require.Equal(t, float64(2), samples[0].CPUPercent)
	require.Equal(t, float64(4), samples[2].CPUPercent)
}

func TestGetAll(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()
	require.NoError(t, r.InsertApp(ctx, &appspec.AppSpec{Name: "a", Mode: appspec.ModeRawCommand}))
	require.NoError(t, r.InsertApp(ctx, &appspec.AppSpec{Name: "b", Mode: appspec.ModeRawCommand}))
	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
