package vote_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DongHuiTiao/ai-vote-circle/internal/testutil"
	"github.com/DongHuiTiao/ai-vote-circle/internal/vote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestCreateAndGet(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()
	svc := &vote.Service{DB: gdb}
	u := testutil.SeedUser(t, gdb, "a@x.dev", nil)

	v, err := svc.Create(ctx, u.ID, vote.CreateVoteInput{
		Title:   "Lunch spot today",
		Options: []string{"ramen", "tacos"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, vote.TypeSingle, v.Type, "type defaults to single")
	assert.Equal(t, vote.OperatorHuman, v.OperatorType)
	assert.False(t, v.ActiveAt.IsZero())

	got, err := svc.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lunch spot today", got.Title)
	assert.EqualValues(t, []string{"ramen", "tacos"}, []string(got.Options))

	_, err = svc.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, vote.ErrNotFound)
}

func TestListOrdersByActivity(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()
	svc := &vote.Service{DB: gdb}
	u := testutil.SeedUser(t, gdb, "a@x.dev", nil)

	older, err := svc.Create(ctx, u.ID, vote.CreateVoteInput{Title: "Older vote", Options: []string{"a", "b"}})
	require.NoError(t, err)
	newer, err := svc.Create(ctx, u.ID, vote.CreateVoteInput{Title: "Newer vote", Options: []string{"a", "b"}})
	require.NoError(t, err)

	require.NoError(t, gdb.Model(&vote.Vote{}).Where("id = ?", older.ID).
		Update("active_at", time.Now().Add(-time.Hour)).Error)

	vs, err := svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, newer.ID, vs[0].ID, "a response bumps a vote back to the top")
	assert.Equal(t, older.ID, vs[1].ID)
}

func TestRespond(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()
	svc := &vote.Service{DB: gdb}
	u := testutil.SeedUser(t, gdb, "a@x.dev", nil)

	v, err := svc.Create(ctx, u.ID, vote.CreateVoteInput{Title: "Lunch spot today", Options: []string{"a", "b", "c"}})
	require.NoError(t, err)
	require.NoError(t, gdb.Model(&vote.Vote{}).Where("id = ?", v.ID).
		Update("active_at", time.Now().Add(-time.Hour)).Error)

	err = svc.Respond(ctx, vote.RespondInput{
		VoteID: v.ID,
		UserID: u.ID,
		Choice: json.RawMessage("1"),
		Reason: ptr("looks good"),
	})
	require.NoError(t, err)

	ok, err := svc.HasResponse(ctx, v.ID, u.ID, vote.OperatorHuman)
	require.NoError(t, err)
	assert.True(t, ok)

	after, err := svc.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, after.ActiveAt.After(time.Now().Add(-time.Minute)), "responding bumps ActiveAt")

	// second submission for the same (vote, user, operator) is rejected
	err = svc.Respond(ctx, vote.RespondInput{VoteID: v.ID, UserID: u.ID, Choice: json.RawMessage("2")})
	assert.ErrorIs(t, err, vote.ErrAlreadyResponded)

	// but the same user's AI agent may respond independently
	err = svc.Respond(ctx, vote.RespondInput{
		VoteID:       v.ID,
		UserID:       u.ID,
		Choice:       json.RawMessage("0"),
		OperatorType: vote.OperatorAI,
	})
	require.NoError(t, err)
}

func TestRespondValidation(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()
	svc := &vote.Service{DB: gdb}
	u := testutil.SeedUser(t, gdb, "a@x.dev", nil)

	v, err := svc.Create(ctx, u.ID, vote.CreateVoteInput{Title: "Lunch spot today", Options: []string{"a", "b"}})
	require.NoError(t, err)

	err = svc.Respond(ctx, vote.RespondInput{VoteID: v.ID, UserID: u.ID, Choice: json.RawMessage("9")})
	assert.ErrorIs(t, err, vote.ErrInvalidChoice)

	err = svc.Respond(ctx, vote.RespondInput{VoteID: "missing", UserID: u.ID, Choice: json.RawMessage("0")})
	assert.ErrorIs(t, err, vote.ErrNotFound)
}

func TestResults(t *testing.T) {
	gdb := testutil.OpenDB(t)
	ctx := context.Background()
	svc := &vote.Service{DB: gdb}

	owner := testutil.SeedUser(t, gdb, "owner@x.dev", nil)
	v, err := svc.Create(ctx, owner.ID, vote.CreateVoteInput{
		Title:   "Team outing plan",
		Type:    vote.TypeMultiple,
		Options: []string{"bowling", "hiking", "karaoke"},
	})
	require.NoError(t, err)

	a := testutil.SeedUser(t, gdb, "a@x.dev", nil)
	b := testutil.SeedUser(t, gdb, "b@x.dev", nil)
	require.NoError(t, svc.Respond(ctx, vote.RespondInput{VoteID: v.ID, UserID: a.ID, Choice: json.RawMessage("[0,2]")}))
	require.NoError(t, svc.Respond(ctx, vote.RespondInput{VoteID: v.ID, UserID: b.ID, Choice: json.RawMessage("[2]")}))

	res, err := svc.Results(ctx, v.ID, len(v.Options))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2}, res.Counts)
	assert.Equal(t, 2, res.Total)

	mine, err := svc.GetResponse(ctx, v.ID, a.ID, vote.OperatorHuman)
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, json.RawMessage("[0,2]"), mine.Choice)

	none, err := svc.GetResponse(ctx, v.ID, owner.ID, vote.OperatorHuman)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestValidateChoice(t *testing.T) {
	cases := []struct {
		name     string
		choice   string
		voteType string
		options  int
		ok       bool
	}{
		{"single in range", "1", vote.TypeSingle, 3, true},
		{"single at lower bound", "0", vote.TypeSingle, 3, true},
		{"single out of range", "3", vote.TypeSingle, 3, false},
		{"single negative", "-1", vote.TypeSingle, 3, false},
		{"single rejects array", "[1]", vote.TypeSingle, 3, false},
		{"multiple in range", "[0,2]", vote.TypeMultiple, 3, true},
		{"multiple empty", "[]", vote.TypeMultiple, 3, false},
		{"multiple out of range", "[0,3]", vote.TypeMultiple, 3, false},
		{"multiple rejects scalar", "1", vote.TypeMultiple, 3, false},
		{"garbage", `"x"`, vote.TypeSingle, 3, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := vote.ValidateChoice(json.RawMessage(tc.choice), tc.voteType, tc.options)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, vote.ErrInvalidChoice)
			}
		})
	}
}
