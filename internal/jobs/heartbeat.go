package jobs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HeartbeatReporter upserts this instance's liveness row. Advisory only:
// last-write-wins is fine, and callers swallow its errors — losing a
// heartbeat tick must never stall job processing.
type HeartbeatReporter struct {
	DB         *gorm.DB
	InstanceID string
	StartedAt  time.Time

	// Read at report time; owned by the worker's single loop thread.
	Processed *int64
}

// NewInstanceID derives a stable-enough worker identity from the host and
// pid, with a short random suffix to keep restarted pids distinct.
func NewInstanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

func (h *HeartbeatReporter) ReportRunning(ctx context.Context) error {
	return h.report(ctx, HeartbeatRunning)
}

func (h *HeartbeatReporter) ReportStopped(ctx context.Context) error {
	return h.report(ctx, HeartbeatStopped)
}

func (h *HeartbeatReporter) ReportError(ctx context.Context) error {
	return h.report(ctx, HeartbeatError)
}

func (h *HeartbeatReporter) report(ctx context.Context, status string) error {
	now := time.Now()
	var processed int64
	if h.Processed != nil {
		processed = *h.Processed
	}
	row := WorkerHeartbeat{
		InstanceID:     h.InstanceID,
		Status:         status,
		PID:            os.Getpid(),
		UptimeSeconds:  int64(now.Sub(h.StartedAt).Seconds()),
		TotalProcessed: processed,
		LastActivityAt: now,
		StartedAt:      h.StartedAt,
	}
	return h.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "instance_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "pid", "uptime_seconds", "total_processed", "last_activity_at", "updated_at",
		}),
	}).Create(&row).Error
}
