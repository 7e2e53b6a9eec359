package vote

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("vote not found")
var ErrInvalidChoice = errors.New("invalid choice")
var ErrAlreadyResponded = errors.New("already responded")

type Service struct {
	DB *gorm.DB
}

type CreateVoteInput struct {
	Title        string
	Description  string
	Type         string
	Options      []string
	OperatorType string
}

func (s *Service) Create(ctx context.Context, userID uint64, in CreateVoteInput) (*Vote, error) {
	if in.Type == "" {
		in.Type = TypeSingle
	}
	if in.OperatorType == "" {
		in.OperatorType = OperatorHuman
	}
	v := Vote{
		Title:        in.Title,
		Description:  in.Description,
		Type:         in.Type,
		Options:      in.Options,
		OperatorType: in.OperatorType,
		CreatedBy:    userID,
	}
	if err := s.DB.WithContext(ctx).Create(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Vote, error) {
	var v Vote
	if err := s.DB.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]Vote, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var vs []Vote
	err := s.DB.WithContext(ctx).
		Order("active_at desc").
		Limit(limit).
		Find(&vs).Error
	return vs, err
}

type RespondInput struct {
	VoteID       string
	UserID       uint64
	Choice       json.RawMessage
	Reason       *string
	OperatorType string
}

// Respond inserts a response and bumps the vote's ActiveAt in one
// transaction. The insert skips on conflict so a duplicate submission for
// the same (vote, user, operator) is a no-op rather than an error.
func (s *Service) Respond(ctx context.Context, in RespondInput) error {
	if in.OperatorType == "" {
		in.OperatorType = OperatorHuman
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v Vote
		if err := tx.First(&v, "id = ?", in.VoteID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := ValidateChoice(in.Choice, v.Type, len(v.Options)); err != nil {
			return err
		}

		resp := VoteResponse{
			VoteID:       in.VoteID,
			UserID:       in.UserID,
			OperatorType: in.OperatorType,
			Choice:       in.Choice,
			Reason:       in.Reason,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vote_id"}, {Name: "user_id"}, {Name: "operator_type"}},
			DoNothing: true,
		}).Create(&resp)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyResponded
		}

		return tx.Model(&Vote{}).
			Where("id = ?", in.VoteID).
			Update("active_at", time.Now()).Error
	})
}

// HasResponse reports whether a response exists for the triple. The worker
// uses it as its idempotency guard before calling the completion service.
func (s *Service) HasResponse(ctx context.Context, voteID string, userID uint64, operatorType string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&VoteResponse{}).
		Where("vote_id = ? AND user_id = ? AND operator_type = ?", voteID, userID, operatorType).
		Count(&n).Error
	return n > 0, err
}

// Results tallies responses per option index. Single choices count once,
// multiple choices once per selected index. Unparseable stored choices
// are skipped rather than failing the whole tally.
type Results struct {
	Counts []int `json:"counts"`
	Total  int   `json:"total"`
}

func (s *Service) Results(ctx context.Context, voteID string, optionCount int) (*Results, error) {
	var responses []VoteResponse
	if err := s.DB.WithContext(ctx).Find(&responses, "vote_id = ?", voteID).Error; err != nil {
		return nil, err
	}
	res := &Results{Counts: make([]int, optionCount)}
	for _, r := range responses {
		var idxs []int
		if err := json.Unmarshal(r.Choice, &idxs); err != nil {
			var idx int
			if err := json.Unmarshal(r.Choice, &idx); err != nil {
				continue
			}
			idxs = []int{idx}
		}
		counted := false
		for _, i := range idxs {
			if i >= 0 && i < optionCount {
				res.Counts[i]++
				counted = true
			}
		}
		if counted {
			res.Total++
		}
	}
	return res, nil
}

// GetResponse returns the user's own response to a vote, nil when they
// have not responded with that operator.
func (s *Service) GetResponse(ctx context.Context, voteID string, userID uint64, operatorType string) (*VoteResponse, error) {
	var r VoteResponse
	err := s.DB.WithContext(ctx).
		First(&r, "vote_id = ? AND user_id = ? AND operator_type = ?", voteID, userID, operatorType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ValidateChoice checks cardinality and index range against the vote's
// option list: a single vote wants one number, a multiple vote a non-empty
// array, every index in [0, optionCount).
func ValidateChoice(choice json.RawMessage, voteType string, optionCount int) error {
	if voteType == TypeMultiple {
		var idxs []int
		if err := json.Unmarshal(choice, &idxs); err != nil || len(idxs) == 0 {
			return ErrInvalidChoice
		}
		for _, i := range idxs {
			if i < 0 || i >= optionCount {
				return ErrInvalidChoice
			}
		}
		return nil
	}
	var idx int
	if err := json.Unmarshal(choice, &idx); err != nil {
		return ErrInvalidChoice
	}
	if idx < 0 || idx >= optionCount {
		return ErrInvalidChoice
	}
	return nil
}
