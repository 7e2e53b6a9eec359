package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/DongHuiTiao/ai-vote-circle/internal/jobs"
	"github.com/DongHuiTiao/ai-vote-circle/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatUpsertsSingleRow(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()

	processed := int64(0)
	h := &jobs.HeartbeatReporter{
		DB:         gdb,
		InstanceID: jobs.NewInstanceID(),
		StartedAt:  time.Now().Add(-90 * time.Second),
		Processed:  &processed,
	}

	require.NoError(t, h.ReportRunning(ctx))
	processed = 7
	require.NoError(t, h.ReportRunning(ctx))

	var rows int64
	require.NoError(t, gdb.Model(&jobs.WorkerHeartbeat{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	var hb jobs.WorkerHeartbeat
	require.NoError(t, gdb.First(&hb, "instance_id = ?", h.InstanceID).Error)
	assert.Equal(t, jobs.HeartbeatRunning, hb.Status)
	assert.EqualValues(t, 7, hb.TotalProcessed)
	assert.GreaterOrEqual(t, hb.UptimeSeconds, int64(90))
}

func TestHeartbeatStatusTransitions(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()

	h := &jobs.HeartbeatReporter{DB: gdb, InstanceID: "test-1", StartedAt: time.Now()}

	require.NoError(t, h.ReportRunning(ctx))
	require.NoError(t, h.ReportError(ctx))
	var hb jobs.WorkerHeartbeat
	require.NoError(t, gdb.First(&hb, "instance_id = ?", "test-1").Error)
	assert.Equal(t, jobs.HeartbeatError, hb.Status)

	require.NoError(t, h.ReportStopped(ctx))
	require.NoError(t, gdb.First(&hb, "instance_id = ?", "test-1").Error)
	assert.Equal(t, jobs.HeartbeatStopped, hb.Status)
}

func TestHeartbeatDistinctInstances(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()

	a := &jobs.HeartbeatReporter{DB: gdb, InstanceID: "a", StartedAt: time.Now()}
	b := &jobs.HeartbeatReporter{DB: gdb, InstanceID: "b", StartedAt: time.Now()}
	require.NoError(t, a.ReportRunning(ctx))
	require.NoError(t, b.ReportRunning(ctx))
	require.NoError(t, a.ReportStopped(ctx))

	var rows int64
	require.NoError(t, gdb.Model(&jobs.WorkerHeartbeat{}).Count(&rows).Error)
	assert.EqualValues(t, 2, rows)

	var hb jobs.WorkerHeartbeat
	require.NoError(t, gdb.First(&hb, "instance_id = ?", "b").Error)
	assert.Equal(t, jobs.HeartbeatRunning, hb.Status)
}

func TestNewInstanceIDIsUnique(t *testing.T) {
	assert.NotEqual(t, jobs.NewInstanceID(), jobs.NewInstanceID())
}
