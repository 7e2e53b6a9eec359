package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/DongHuiTiao/ai-vote-circle/internal/auth"
	"github.com/DongHuiTiao/ai-vote-circle/internal/metrics"
	"github.com/DongHuiTiao/ai-vote-circle/internal/vote"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CompletionClient is the slice of the SecondMe client the processors
// need. Both calls block until the stream closes.
type CompletionClient interface {
	ActStream(accessToken, message, actionControl string) (string, error)
	ChatStream(accessToken, message, actionControl string) (string, error)
}

// BatchItem is one claimed job. Run owns the job to a terminal-or-retry
// outcome and never returns an error: failures are recorded on the row.
// Release puts a claimed-but-never-started job back to pending, so a stop
// request mid-batch leaves no row in processing without an owner.
type BatchItem struct {
	Run     func(ctx context.Context)
	Release func(ctx context.Context)
}

// QueueProcessor is one drainable queue. ClaimBatch claims due jobs in
// delivery order; the worker runs them with PacingDelay between items.
type QueueProcessor interface {
	Name() string
	ClaimBatch(ctx context.Context) ([]BatchItem, error)
	PacingDelay() time.Duration
}

// VoteJobProcessor drains the auto-vote queue: ask the user's agent for a
// choice on an existing vote and record it as an AI response.
type VoteJobProcessor struct {
	DB      *gorm.DB
	Repo    *Repo
	Votes   *vote.Service
	Client  CompletionClient
	Metrics *metrics.Collector

	BatchSize  int
	Delay      time.Duration
	MaxRetries int

	Processed *int64
}

func (p *VoteJobProcessor) Name() string { return "vote" }
func (p *VoteJobProcessor) PacingDelay() time.Duration { return p.Delay }

func (p *VoteJobProcessor) ClaimBatch(ctx context.Context) ([]BatchItem, error) {
	batch, err := p.Repo.ClaimVoteBatch(ctx, p.BatchSize)
	if err != nil {
		return nil, err
	}
	out := make([]BatchItem, 0, len(batch))
	for i := range batch {
		job := batch[i]
		out = append(out, BatchItem{
			Run: func(ctx context.Context) { p.processOne(ctx, job) },
			Release: func(ctx context.Context) {
				if err := p.Repo.ReleaseVoteJob(ctx, job.ID); err != nil {
					log.Printf("[worker] releasing vote job %d: %v", job.ID, err)
				}
			},
		})
	}
	return out, nil
}

func (p *VoteJobProcessor) processOne(ctx context.Context, job VoteJob) {
	started := time.Now()
	if err := p.attempt(ctx, job); err != nil {
		p.fail(ctx, job, err)
		return
	}
	(*p.Processed)++
	p.Metrics.RecordProcessed(p.Name(), time.Since(started).Seconds())
}

func (p *VoteJobProcessor) attempt(ctx context.Context, job VoteJob) error {
	// Idempotency guard: a duplicate claim or a restart mid-job finds the
	// response already written and completes without another AI call.
	done, err := p.Votes.HasResponse(ctx, job.VoteID, job.UserID, vote.OperatorAI)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if done {
		log.Printf("[worker] vote job %d: user %d already voted on %s, skipping", job.ID, job.UserID, job.VoteID)
		return p.Repo.CompleteVoteJob(ctx, nil, job.ID)
	}

	v, err := p.Votes.Get(ctx, job.VoteID)
	if err != nil {
		return fmt.Errorf("load vote %s: %w", job.VoteID, err)
	}
	if len(v.Options) == 0 {
		return errors.New("vote has no options")
	}

	var u auth.User
	if err := p.DB.WithContext(ctx).First(&u, job.UserID).Error; err != nil {
		return fmt.Errorf("load user %d: %w", job.UserID, err)
	}
	if u.AccessToken == nil {
		return errors.New("user has no access token")
	}

	raw, err := p.Client.ActStream(*u.AccessToken, BuildVotePrompt(v), BuildVoteActionControl(v))
	if err != nil {
		return err
	}

	res, err := ParseChoice(raw, v.Type, len(v.Options))
	if err != nil {
		return err
	}

	// Result write, aggregate bump and the completed transition share one
	// transaction so a crash cannot leave a response without a completed
	// job or vice versa.
	reason := res.Reason
	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resp := vote.VoteResponse{
			VoteID:       job.VoteID,
			UserID:       job.UserID,
			OperatorType: vote.OperatorAI,
			Choice:       res.Choice,
			Reason:       &reason,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vote_id"}, {Name: "user_id"}, {Name: "operator_type"}},
			DoNothing: true,
		}).Create(&resp).Error; err != nil {
			return err
		}
		if err := tx.Model(&vote.Vote{}).
			Where("id = ?", job.VoteID).
			Update("active_at", time.Now()).Error; err != nil {
			return err
		}
		return p.Repo.CompleteVoteJob(ctx, tx, job.ID)
	})
}

func (p *VoteJobProcessor) fail(ctx context.Context, job VoteJob, cause error) {
	p.Metrics.RecordFailed(p.Name())

	retryCount := job.RetryCount + 1
	terminal := retryCount >= p.MaxRetries
	if err := p.Repo.RecordVoteJobFailure(ctx, job.ID, retryCount, terminal, cause.Error()); err != nil {
		log.Printf("[worker] vote job %d: recording failure: %v", job.ID, err)
		return
	}
	if terminal {
		log.Printf("[worker] vote job %d failed permanently after %d attempts: %v", job.ID, retryCount, cause)
	} else {
		log.Printf("[worker] vote job %d will retry (%d/%d): %v", job.ID, retryCount, p.MaxRetries, cause)
	}
}

// PostJobProcessor drains the daily-post queue: ask the user's agent to
// invent a fresh vote and publish it under their name.
type PostJobProcessor struct {
	DB      *gorm.DB
	Repo    *Repo
	Client  CompletionClient
	Metrics *metrics.Collector

	BatchSize  int
	Delay      time.Duration
	MaxRetries int

	Processed *int64
}

func (p *PostJobProcessor) Name() string { return "post" }
func (p *PostJobProcessor) PacingDelay() time.Duration { return p.Delay }

func (p *PostJobProcessor) ClaimBatch(ctx context.Context) ([]BatchItem, error) {
	batch, err := p.Repo.ClaimPostBatch(ctx, p.BatchSize)
	if err != nil {
		return nil, err
	}
	out := make([]BatchItem, 0, len(batch))
	for i := range batch {
		job := batch[i]
		out = append(out, BatchItem{
			Run: func(ctx context.Context) { p.processOne(ctx, job) },
			Release: func(ctx context.Context) {
				if err := p.Repo.ReleasePostJob(ctx, job.ID); err != nil {
					log.Printf("[daily] releasing post job %d: %v", job.ID, err)
				}
			},
		})
	}
	return out, nil
}

func (p *PostJobProcessor) processOne(ctx context.Context, job PostJob) {
	started := time.Now()
	if err := p.attempt(ctx, job); err != nil {
		p.fail(ctx, job, err)
		return
	}
	(*p.Processed)++
	p.Metrics.RecordProcessed(p.Name(), time.Since(started).Seconds())
}

func (p *PostJobProcessor) attempt(ctx context.Context, job PostJob) error {
	// Idempotency guard: the job already carries its result link, or the
	// user already has an AI post for that day.
	if job.VoteID != nil {
		return p.Repo.CompletePostJob(ctx, nil, job.ID, nil)
	}
	day := DayStart(job.ScheduledFor)
	var n int64
	err := p.DB.WithContext(ctx).Model(&vote.Vote{}).
		Where("created_by = ? AND operator_type = ? AND created_at >= ? AND created_at < ?",
			job.UserID, vote.OperatorAI, day, day.AddDate(0, 0, 1)).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if n > 0 {
		log.Printf("[daily] post job %d: user %d already posted for %s, skipping", job.ID, job.UserID, day.Format("2006-01-02"))
		return p.Repo.CompletePostJob(ctx, nil, job.ID, nil)
	}

	var u auth.User
	if err := p.DB.WithContext(ctx).First(&u, job.UserID).Error; err != nil {
		return fmt.Errorf("load user %d: %w", job.UserID, err)
	}
	if u.AccessToken == nil {
		return errors.New("user has no access token")
	}

	raw, err := p.Client.ChatStream(*u.AccessToken, PostPrompt, PostActionControl)
	if err != nil {
		return err
	}

	draft, err := ParsePostDraft(raw)
	if err != nil {
		return err
	}

	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v := vote.Vote{
			Title:        draft.Title,
			Description:  draft.Description,
			Type:         draft.Type,
			Options:      draft.Options,
			OperatorType: vote.OperatorAI,
			CreatedBy:    job.UserID,
		}
		if err := tx.Create(&v).Error; err != nil {
			return err
		}
		log.Printf("[daily] post job %d: published %q for user %d", job.ID, v.Title, job.UserID)
		return p.Repo.CompletePostJob(ctx, tx, job.ID, &v.ID)
	})
}

func (p *PostJobProcessor) fail(ctx context.Context, job PostJob, cause error) {
	p.Metrics.RecordFailed(p.Name())

	retryCount := job.RetryCount + 1
	terminal := retryCount >= p.MaxRetries
	if err := p.Repo.RecordPostJobFailure(ctx, job.ID, retryCount, terminal, cause.Error()); err != nil {
		log.Printf("[daily] post job %d: recording failure: %v", job.ID, err)
		return
	}
	if terminal {
		log.Printf("[daily] post job %d failed permanently after %d attempts: %v", job.ID, retryCount, cause)
	} else {
		log.Printf("[daily] post job %d will retry (%d/%d): %v", job.ID, retryCount, p.MaxRetries, cause)
	}
}
