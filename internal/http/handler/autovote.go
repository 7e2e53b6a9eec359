package handler

import (
	"encoding/json"
	"net/http"

	"github.com/DongHuiTiao/ai-vote-circle/internal/auth"
	"github.com/DongHuiTiao/ai-vote-circle/internal/jobs"
	"github.com/DongHuiTiao/ai-vote-circle/internal/vote"

	"gorm.io/gorm"
)

type AutoVoteHandler struct {
	DB   *gorm.DB
	Repo *jobs.Repo
}

// Enqueue queues one vote job per vote the user's agent has not voted on
// yet and returns immediately; the worker drains the queue in the
// background. Re-running is harmless: the (user, vote) dedup skips rows
// already queued.
func (h *AutoVoteHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var voteIDs []string
	if err := h.DB.WithContext(r.Context()).Model(&vote.Vote{}).
		Pluck("id", &voteIDs).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	var votedIDs []string
	if err := h.DB.WithContext(r.Context()).Model(&vote.VoteResponse{}).
		Where("user_id = ? AND operator_type = ?", uid, vote.OperatorAI).
		Pluck("vote_id", &votedIDs).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	voted := make(map[string]struct{}, len(votedIDs))
	for _, id := range votedIDs {
		voted[id] = struct{}{}
	}
	todo := make([]string, 0, len(voteIDs))
	for _, id := range voteIDs {
		if _, ok := voted[id]; !ok {
			todo = append(todo, id)
		}
	}

	queued, err := h.Repo.EnqueueVoteJobs(r.Context(), uid, todo, 0)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total":         len(voteIDs),
		"already_voted": len(votedIDs),
		"queued":        queued,
	})
}

// Status renders the queue-progress view: per-status counts plus the ten
// most recent jobs.
func (h *AutoVoteHandler) Status(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	stats, err := h.Repo.VoteJobStats(r.Context(), uid)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	recent, err := h.Repo.RecentVoteJobs(r.Context(), uid, 10)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"stats":       stats,
		"recent_jobs": recent,
	})
}
