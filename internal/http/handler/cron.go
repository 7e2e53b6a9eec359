package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DongHuiTiao/ai-vote-circle/internal/jobs"
)

// CronHandler is the manual trigger for the daily post batch. The worker
// self-checks every iteration, so this exists for ops and external cron
// redundancy, guarded by a shared secret.
type CronHandler struct {
	Repo       *jobs.Repo
	CronSecret string
}

func (h *CronHandler) DailyAIVote(w http.ResponseWriter, r *http.Request) {
	if h.CronSecret == "" {
		http.Error(w, "cron secret not configured", http.StatusInternalServerError)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+h.CronSecret {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	created, err := h.Repo.EnsureDailyPostJobs(r.Context(), time.Now())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"created": created,
		"date":    jobs.DayStart(time.Now()).Format("2006-01-02"),
	})
}
