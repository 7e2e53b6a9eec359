package vote

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Vote type: single choice or multiple choice.
const (
	TypeSingle   = "single"
	TypeMultiple = "multiple"
)

// Operator type: who cast it — the human user, or their AI agent.
const (
	OperatorHuman = "human"
	OperatorAI    = "ai"
)

type Vote struct {
	ID          string         `gorm:"primaryKey;size:36"`
	Title       string         `gorm:"size:200;not null"`
	Description string         `gorm:"type:text;not null;default:''"`
	Type        string         `gorm:"size:10;not null;default:'single'"`
	Options     pq.StringArray `gorm:"type:text[];not null"`

	OperatorType string `gorm:"size:10;not null;default:'human'"`
	CreatedBy    uint64 `gorm:"index;not null"`

	// Bumped whenever a response lands, for "recently active" ordering.
	ActiveAt  time.Time `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;not null"`
}

func (v *Vote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.ActiveAt.IsZero() {
		v.ActiveAt = time.Now()
	}
	return nil
}

// VoteResponse stores the choice as raw JSON: a number for single votes,
// an array of numbers for multiple votes. The unique index makes the
// result-write idempotent under duplicate job claims.
type VoteResponse struct {
	ID           uint64          `gorm:"primaryKey"`
	VoteID       string          `gorm:"size:36;not null;uniqueIndex:uq_vote_responses_vote_user_op"`
	UserID       uint64          `gorm:"not null;uniqueIndex:uq_vote_responses_vote_user_op"`
	OperatorType string          `gorm:"size:10;not null;default:'human';uniqueIndex:uq_vote_responses_vote_user_op"`
	Choice       json.RawMessage `gorm:"type:jsonb;not null"`
	Reason       *string         `gorm:"type:text"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;not null;index"`
}
