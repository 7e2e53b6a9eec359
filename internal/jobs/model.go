package jobs

import "time"

// Job status. Transitions only move forward: pending -> processing ->
// completed, or back to pending for a retry, or to failed once the retry
// budget is spent. failed is terminal; rows are kept for audit.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// VoteJob asks the worker to cast an AI vote on an existing vote for a
// user. The (user_id, vote_id) unique index is the enqueue dedup key.
type VoteJob struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"not null;uniqueIndex:uq_vote_jobs_user_vote"`
	VoteID string `gorm:"size:36;not null;uniqueIndex:uq_vote_jobs_user_vote"`

	Status   string `gorm:"size:16;not null;default:'pending';index:idx_vote_jobs_claim,priority:1"`
	Priority int    `gorm:"not null;default:0;index:idx_vote_jobs_claim,priority:2"`

	RetryCount int     `gorm:"not null;default:0"`
	Error      *string `gorm:"type:text"`

	CreatedAt   time.Time `gorm:"autoCreateTime;not null;index:idx_vote_jobs_claim,priority:3"`
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// PostJob asks the worker to generate and publish one AI vote post for a
// user. ScheduledFor is truncated to local midnight; the
// (user_id, scheduled_for) unique index guarantees at most one recurring
// job per user per calendar day.
type PostJob struct {
	ID           uint64    `gorm:"primaryKey"`
	UserID       uint64    `gorm:"not null;uniqueIndex:uq_post_jobs_user_day"`
	ScheduledFor time.Time `gorm:"not null;uniqueIndex:uq_post_jobs_user_day"`

	Status string `gorm:"size:16;not null;default:'pending';index:idx_post_jobs_claim"`

	// Set once the generated vote is persisted.
	VoteID *string `gorm:"size:36"`

	RetryCount int     `gorm:"not null;default:0"`
	Error      *string `gorm:"type:text"`

	CreatedAt   time.Time `gorm:"autoCreateTime;not null"`
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Heartbeat status values.
const (
	HeartbeatRunning = "running"
	HeartbeatStopped = "stopped"
	HeartbeatError   = "error"
)

// WorkerHeartbeat is one row per worker instance, upserted in place. A
// monitor treats an instance as dead when LastActivityAt falls behind a
// multiple of the heartbeat interval; that policy lives in the monitor.
type WorkerHeartbeat struct {
	ID         uint64 `gorm:"primaryKey"`
	InstanceID string `gorm:"size:64;not null;uniqueIndex"`
	Status     string `gorm:"size:16;not null"`
	PID        int    `gorm:"column:pid;not null"`

	UptimeSeconds  int64 `gorm:"not null;default:0"`
	TotalProcessed int64 `gorm:"not null;default:0"`

	LastActivityAt time.Time `gorm:"not null"`
	StartedAt      time.Time `gorm:"not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime;not null"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime;not null"`
}

// DayStart truncates t to local midnight, the calendar-day key for
// recurring post jobs.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
