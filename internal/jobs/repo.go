package jobs

import (
	"context"
	"time"

	"github.com/DongHuiTiao/ai-vote-circle/internal/auth"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	DB *gorm.DB
}

// EnqueueVoteJobs inserts one pending job per vote id, skipping any
// (user, vote) pair that is already queued. Returns the number actually
// inserted.
func (r *Repo) EnqueueVoteJobs(ctx context.Context, userID uint64, voteIDs []string, priority int) (int64, error) {
	if len(voteIDs) == 0 {
		return 0, nil
	}
	rows := make([]VoteJob, 0, len(voteIDs))
	for _, vid := range voteIDs {
		rows = append(rows, VoteJob{
			UserID:   userID,
			VoteID:   vid,
			Status:   StatusPending,
			Priority: priority,
		})
	}
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "vote_id"}},
		DoNothing: true,
	}).Create(&rows)
	return res.RowsAffected, res.Error
}

// EnsureDailyPostJobs makes today's recurring batch exist: if any post job
// is scheduled for day, it does nothing; otherwise it creates one pending
// job per user holding an access token. skip-duplicates on
// (user, scheduled_for) keeps concurrent workers from double-creating.
func (r *Repo) EnsureDailyPostJobs(ctx context.Context, day time.Time) (int64, error) {
	day = DayStart(day)

	var n int64
	if err := r.DB.WithContext(ctx).Model(&PostJob{}).
		Where("scheduled_for = ?", day).
		Count(&n).Error; err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	var userIDs []uint64
	if err := r.DB.WithContext(ctx).Model(&auth.User{}).
		Where("access_token IS NOT NULL").
		Pluck("id", &userIDs).Error; err != nil {
		return 0, err
	}
	if len(userIDs) == 0 {
		return 0, nil
	}

	rows := make([]PostJob, 0, len(userIDs))
	for _, uid := range userIDs {
		rows = append(rows, PostJob{
			UserID:       uid,
			ScheduledFor: day,
			Status:       StatusPending,
		})
	}
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "scheduled_for"}},
		DoNothing: true,
	}).Create(&rows)
	return res.RowsAffected, res.Error
}

// ClaimVoteBatch selects up to n pending jobs ordered by priority desc,
// then age, and flips each to processing with a conditional update. A row
// another worker claimed in between loses the compare-and-swap and is
// dropped from the batch, so no job has two owners.
func (r *Repo) ClaimVoteBatch(ctx context.Context, n int) ([]VoteJob, error) {
	var candidates []VoteJob
	err := r.DB.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("priority DESC, created_at ASC").
		Limit(n).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]VoteJob, 0, len(candidates))
	now := time.Now()
	for i := range candidates {
		job := candidates[i]
		res := r.DB.WithContext(ctx).Model(&VoteJob{}).
			Where("id = ? AND status = ?", job.ID, StatusPending).
			Updates(map[string]any{"status": StatusProcessing, "started_at": now})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 1 {
			job.Status = StatusProcessing
			job.StartedAt = &now
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

// ClaimPostBatch is the post-queue claim: oldest pending first.
func (r *Repo) ClaimPostBatch(ctx context.Context, n int) ([]PostJob, error) {
	var candidates []PostJob
	err := r.DB.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("created_at ASC").
		Limit(n).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]PostJob, 0, len(candidates))
	now := time.Now()
	for i := range candidates {
		job := candidates[i]
		res := r.DB.WithContext(ctx).Model(&PostJob{}).
			Where("id = ? AND status = ?", job.ID, StatusPending).
			Updates(map[string]any{"status": StatusProcessing, "started_at": now})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 1 {
			job.Status = StatusProcessing
			job.StartedAt = &now
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

func (r *Repo) CompleteVoteJob(ctx context.Context, tx *gorm.DB, id uint64) error {
	if tx == nil {
		tx = r.DB
	}
	return tx.WithContext(ctx).Model(&VoteJob{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": StatusCompleted, "completed_at": time.Now()}).Error
}

func (r *Repo) CompletePostJob(ctx context.Context, tx *gorm.DB, id uint64, voteID *string) error {
	if tx == nil {
		tx = r.DB
	}
	updates := map[string]any{"status": StatusCompleted, "completed_at": time.Now()}
	if voteID != nil {
		updates["vote_id"] = *voteID
	}
	return tx.WithContext(ctx).Model(&PostJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ReleaseVoteJob undoes a claim for a job that never started running:
// back to pending with no retry charged.
func (r *Repo) ReleaseVoteJob(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&VoteJob{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]any{"status": StatusPending, "started_at": nil}).Error
}

func (r *Repo) ReleasePostJob(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&PostJob{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]any{"status": StatusPending, "started_at": nil}).Error
}

// RecordVoteJobFailure increments the retry count and either requeues the
// job or terminalizes it, keeping the error message for diagnosis.
func (r *Repo) RecordVoteJobFailure(ctx context.Context, id uint64, retryCount int, terminal bool, msg string) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	return r.DB.WithContext(ctx).Model(&VoteJob{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "retry_count": retryCount, "error": msg}).Error
}

func (r *Repo) RecordPostJobFailure(ctx context.Context, id uint64, retryCount int, terminal bool, msg string) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	return r.DB.WithContext(ctx).Model(&PostJob{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "retry_count": retryCount, "error": msg}).Error
}

// Stats is the per-status breakdown backing the queue-progress UI.
type Stats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

func (r *Repo) VoteJobStats(ctx context.Context, userID uint64) (Stats, error) {
	var s Stats
	rows := []struct {
		Status string
		N      int64
	}{}
	err := r.DB.WithContext(ctx).Model(&VoteJob{}).
		Select("status, count(*) as n").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return s, err
	}
	for _, row := range rows {
		switch row.Status {
		case StatusPending:
			s.Pending = row.N
		case StatusProcessing:
			s.Processing = row.N
		case StatusCompleted:
			s.Completed = row.N
		case StatusFailed:
			s.Failed = row.N
		}
		s.Total += row.N
	}
	return s, nil
}

func (r *Repo) RecentVoteJobs(ctx context.Context, userID uint64, n int) ([]VoteJob, error) {
	var out []VoteJob
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(n).
		Find(&out).Error
	return out, err
}

// PendingCounts reports queue depth for idle detection and gauges.
func (r *Repo) PendingCounts(ctx context.Context) (voteJobs, postJobs int64, err error) {
	if err = r.DB.WithContext(ctx).Model(&VoteJob{}).
		Where("status = ?", StatusPending).
		Count(&voteJobs).Error; err != nil {
		return
	}
	err = r.DB.WithContext(ctx).Model(&PostJob{}).
		Where("status = ?", StatusPending).
		Count(&postJobs).Error
	return
}
