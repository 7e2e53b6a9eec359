package db

import (
	"fmt"

	"github.com/DongHuiTiao/ai-vote-circle/internal/auth"
	"github.com/DongHuiTiao/ai-vote-circle/internal/jobs"
	"github.com/DongHuiTiao/ai-vote-circle/internal/vote"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables. Dedup uniques (vote jobs on (user, vote), post jobs on
	// (user, day), responses on (vote, user, operator)) come from the
	// model tags.
	if err := gdb.AutoMigrate(
		&auth.User{},
		&vote.Vote{},
		&vote.VoteResponse{},
		&jobs.VoteJob{},
		&jobs.PostJob{},
		&jobs.WorkerHeartbeat{},
	); err != nil {
		return err
	}

	// Helpful indexes for the hot queries.
	stmts := []string{
		// claim scans
		`create index if not exists idx_post_jobs_day on post_jobs(scheduled_for, status);`,
		// status reads per user
		`create index if not exists idx_vote_jobs_user_created on vote_jobs(user_id, created_at desc);`,
		// response lookups by vote
		`create index if not exists idx_vote_responses_vote on vote_responses(vote_id, created_at desc);`,
		// monitor scan
		`create index if not exists idx_heartbeats_activity on worker_heartbeats(last_activity_at desc);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
