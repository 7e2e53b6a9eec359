package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DongHuiTiao/ai-vote-circle/internal/jobs"
	"github.com/DongHuiTiao/ai-vote-circle/internal/metrics"
	"github.com/DongHuiTiao/ai-vote-circle/internal/testutil"
	"github.com/DongHuiTiao/ai-vote-circle/internal/vote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClient struct {
	actCalls  int
	chatCalls int
	act       func() (string, error)
	chat      func() (string, error)
}

func (f *fakeClient) ActStream(token, message, actionControl string) (string, error) {
	f.actCalls++
	if f.act == nil {
		return "", errors.New("unexpected act call")
	}
	return f.act()
}

func (f *fakeClient) ChatStream(token, message, actionControl string) (string, error) {
	f.chatCalls++
	if f.chat == nil {
		return "", errors.New("unexpected chat call")
	}
	return f.chat()
}

func newVoteProcessor(gdb *gorm.DB, client *fakeClient) *jobs.VoteJobProcessor {
	var processed int64
	return &jobs.VoteJobProcessor{
		DB:         gdb,
		Repo:       &jobs.Repo{DB: gdb},
		Votes:      &vote.Service{DB: gdb},
		Client:     client,
		Metrics:    metrics.NewCollector(),
		BatchSize:  10,
		MaxRetries: 3,
		Processed:  &processed,
	}
}

func newPostProcessor(gdb *gorm.DB, client *fakeClient) *jobs.PostJobProcessor {
	var processed int64
	return &jobs.PostJobProcessor{
		DB:         gdb,
		Repo:       &jobs.Repo{DB: gdb},
		Client:     client,
		Metrics:    metrics.NewCollector(),
		BatchSize:  1,
		MaxRetries: 3,
		Processed:  &processed,
	}
}

func seedVote(t *testing.T, gdb *gorm.DB, creator uint64, voteType string, options []string) *vote.Vote {
	t.Helper()
	svc := &vote.Service{DB: gdb}
	v, err := svc.Create(context.Background(), creator, vote.CreateVoteInput{
		Title:   "Pick one of these",
		Type:    voteType,
		Options: options,
	})
	require.NoError(t, err)
	return v
}

func runBatch(t *testing.T, ctx context.Context, p jobs.QueueProcessor) int {
	t.Helper()
	items, err := p.ClaimBatch(ctx)
	require.NoError(t, err)
	for _, item := range items {
		item.Run(ctx)
	}
	return len(items)
}

func TestVoteJobProcessorEndToEnd(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()

	u := testutil.SeedUser(t, gdb, "agent@x.dev", ptr("tok"))
	v := seedVote(t, gdb, u.ID, vote.TypeSingle, []string{"A", "B"})

	client := &fakeClient{act: func() (string, error) {
		return "```json\n{\"choice\":1,\"reason\":\"picks B\"}\n```", nil
	}}
	p := newVoteProcessor(gdb, client)

	_, err := p.Repo.EnqueueVoteJobs(ctx, u.ID, []string{v.ID}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, runBatch(t, ctx, p))

	var resp vote.VoteResponse
	require.NoError(t, gdb.First(&resp, "vote_id = ?", v.ID).Error)
	assert.Equal(t, u.ID, resp.UserID)
	assert.Equal(t, vote.OperatorAI, resp.OperatorType)
	assert.Equal(t, json.RawMessage("1"), resp.Choice)
	require.NotNil(t, resp.Reason)
	assert.Equal(t, "picks B", *resp.Reason)

	var j jobs.VoteJob
	require.NoError(t, gdb.First(&j, "vote_id = ?", v.ID).Error)
	assert.Equal(t, jobs.StatusCompleted, j.Status)
	assert.NotNil(t, j.CompletedAt)
	assert.EqualValues(t, 1, *p.Processed)

	// the aggregate's ActiveAt moved forward
	var after vote.Vote
	require.NoError(t, gdb.First(&after, "id = ?", v.ID).Error)
	assert.True(t, after.ActiveAt.After(v.ActiveAt) || after.ActiveAt.Equal(v.ActiveAt))
}

func TestVoteJobProcessorIdempotency(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()

	u := testutil.SeedUser(t, gdb, "agent@x.dev", ptr("tok"))
	v := seedVote(t, gdb, u.ID, vote.TypeSingle, []string{"A", "B"})

	client := &fakeClient{act: func() (string, error) {
		return `{"choice":0,"reason":"fine"}`, nil
	}}
	p := newVoteProcessor(gdb, client)

	_, err := p.Repo.EnqueueVoteJobs(ctx, u.ID, []string{v.ID}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, runBatch(t, ctx, p))
	assert.Equal(t, 1, client.actCalls)

	// simulate a duplicate claim: requeue the completed job and run again
	require.NoError(t, gdb.Model(&jobs.VoteJob{}).
		Where("vote_id = ?", v.ID).
		Update("status", jobs.StatusPending).Error)
	require.Equal(t, 1, runBatch(t, ctx, p))

	// the guard skipped the AI call and went straight to completed
	assert.Equal(t, 1, client.actCalls)

	var n int64
	require.NoError(t, gdb.Model(&vote.VoteResponse{}).Where("vote_id = ?", v.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n, "exactly one response per (user, vote, operator)")

	var j jobs.VoteJob
	require.NoError(t, gdb.First(&j, "vote_id = ?", v.ID).Error)
	assert.Equal(t, jobs.StatusCompleted, j.Status)
}

func TestVoteJobProcessorRetryBudget(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()

	u := testutil.SeedUser(t, gdb, "agent@x.dev", ptr("tok"))
	v := seedVote(t, gdb, u.ID, vote.TypeSingle, []string{"A", "B"})

	client := &fakeClient{act: func() (string, error) {
		return "", errors.New("upstream down")
	}}
	p := newVoteProcessor(gdb, client)

	_, err := p.Repo.EnqueueVoteJobs(ctx, u.ID, []string{v.ID}, 0)
	require.NoError(t, err)

	// attempt 1 and 2 requeue with the retry count bumped by exactly one
	for want := 1; want <= 2; want++ {
		require.Equal(t, 1, runBatch(t, ctx, p))
		var j jobs.VoteJob
		require.NoError(t, gdb.First(&j, "vote_id = ?", v.ID).Error)
		assert.Equal(t, jobs.StatusPending, j.Status)
		assert.Equal(t, want, j.RetryCount)
		require.NotNil(t, j.Error)
	}

	// attempt 3 exhausts the budget
	require.Equal(t, 1, runBatch(t, ctx, p))
	var j jobs.VoteJob
	require.NoError(t, gdb.First(&j, "vote_id = ?", v.ID).Error)
	assert.Equal(t, jobs.StatusFailed, j.Status)
	assert.Equal(t, 3, j.RetryCount)
	require.NotNil(t, j.Error)
	assert.Contains(t, *j.Error, "upstream down")

	// terminal: nothing left to claim
	require.Equal(t, 0, runBatch(t, ctx, p))
	assert.Equal(t, 3, client.actCalls)
}

func TestVoteJobProcessorValidationFailureUsesRetryBudget(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()

	u := testutil.SeedUser(t, gdb, "agent@x.dev", ptr("tok"))
	v := seedVote(t, gdb, u.ID, vote.TypeSingle, []string{"A", "B", "C"})

	client := &fakeClient{act: func() (string, error) {
		return `{"choice": 5, "reason": "ok"}`, nil // out of range
	}}
	p := newVoteProcessor(gdb, client)

	_, err := p.Repo.EnqueueVoteJobs(ctx, u.ID, []string{v.ID}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, runBatch(t, ctx, p))

	var j jobs.VoteJob
	require.NoError(t, gdb.First(&j, "vote_id = ?", v.ID).Error)
	assert.Equal(t, jobs.StatusPending, j.Status, "validation failures retry like transport failures")
	assert.Equal(t, 1, j.RetryCount)
	require.NotNil(t, j.Error)
	assert.Contains(t, *j.Error, "out of range")

	var n int64
	require.NoError(t, gdb.Model(&vote.VoteResponse{}).Count(&n).Error)
	assert.Zero(t, n, "rejected output is never persisted")
}

func TestVoteJobProcessorMissingAccessToken(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()

	u := testutil.SeedUser(t, gdb, "revoked@x.dev", nil)
	v := seedVote(t, gdb, u.ID, vote.TypeSingle, []string{"A", "B"})

	client := &fakeClient{}
	p := newVoteProcessor(gdb, client)

	_, err := p.Repo.EnqueueVoteJobs(ctx, u.ID, []string{v.ID}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, runBatch(t, ctx, p))

	assert.Zero(t, client.actCalls)
	var j jobs.VoteJob
	require.NoError(t, gdb.First(&j, "vote_id = ?", v.ID).Error)
	assert.Equal(t, jobs.StatusPending, j.Status)
	assert.Equal(t, 1, j.RetryCount)
}

func TestPostJobProcessorEndToEnd(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()

	u := testutil.SeedUser(t, gdb, "poster@x.dev", ptr("tok"))

	client := &fakeClient{chat: func() (string, error) {
		return "```json\n{\"title\":\"Coffee or tea?\",\"description\":\"morning fuel\",\"type\":\"single\",\"options\":[\"coffee\",\"tea\",\"neither\"]}\n```", nil
	}}
	p := newPostProcessor(gdb, client)

	day := jobs.DayStart(time.Now())
	require.NoError(t, gdb.Create(&jobs.PostJob{UserID: u.ID, ScheduledFor: day, Status: jobs.StatusPending}).Error)
	require.Equal(t, 1, runBatch(t, ctx, p))

	var v vote.Vote
	require.NoError(t, gdb.First(&v, "created_by = ?", u.ID).Error)
	assert.Equal(t, "Coffee or tea?", v.Title)
	assert.Equal(t, vote.OperatorAI, v.OperatorType)
	assert.EqualValues(t, []string{"coffee", "tea", "neither"}, []string(v.Options))

	var j jobs.PostJob
	require.NoError(t, gdb.First(&j, "user_id = ?", u.ID).Error)
	assert.Equal(t, jobs.StatusCompleted, j.Status)
	require.NotNil(t, j.VoteID)
	assert.Equal(t, v.ID, *j.VoteID)
}

func TestPostJobProcessorIdempotency(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()

	u := testutil.SeedUser(t, gdb, "poster@x.dev", ptr("tok"))

	client := &fakeClient{chat: func() (string, error) {
		return `{"title":"Coffee or tea?","description":"d","type":"single","options":["a","b","c"]}`, nil
	}}
	p := newPostProcessor(gdb, client)

	day := jobs.DayStart(time.Now())
	require.NoError(t, gdb.Create(&jobs.PostJob{UserID: u.ID, ScheduledFor: day, Status: jobs.StatusPending}).Error)
	require.Equal(t, 1, runBatch(t, ctx, p))
	assert.Equal(t, 1, client.chatCalls)

	// duplicate claim after completion: requeue and run again
	require.NoError(t, gdb.Model(&jobs.PostJob{}).
		Where("user_id = ?", u.ID).
		Update("status", jobs.StatusPending).Error)
	require.Equal(t, 1, runBatch(t, ctx, p))

	assert.Equal(t, 1, client.chatCalls, "guard skips the AI call")
	var n int64
	require.NoError(t, gdb.Model(&vote.Vote{}).Where("created_by = ?", u.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n, "one post per user per day")
}

func TestPostJobProcessorRejectsBadDraft(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()

	u := testutil.SeedUser(t, gdb, "poster@x.dev", ptr("tok"))

	client := &fakeClient{chat: func() (string, error) {
		return `{"title":"no","description":"d","type":"single","options":["a"]}`, nil
	}}
	p := newPostProcessor(gdb, client)

	require.NoError(t, gdb.Create(&jobs.PostJob{UserID: u.ID, ScheduledFor: jobs.DayStart(time.Now()), Status: jobs.StatusPending}).Error)
	require.Equal(t, 1, runBatch(t, ctx, p))

	var j jobs.PostJob
	require.NoError(t, gdb.First(&j, "user_id = ?", u.ID).Error)
	assert.Equal(t, jobs.StatusPending, j.Status)
	assert.Equal(t, 1, j.RetryCount)

	var n int64
	require.NoError(t, gdb.Model(&vote.Vote{}).Count(&n).Error)
	assert.Zero(t, n)
}
