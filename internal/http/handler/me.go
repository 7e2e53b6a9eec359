package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/DongHuiTiao/ai-vote-circle/internal/auth"

	"gorm.io/gorm"
)

type MeHandler struct {
	DB *gorm.DB
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var u auth.User
	if err := h.DB.WithContext(r.Context()).First(&u, uid).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"user_id":            u.ID,
		"email":              u.Email,
		"nickname":           u.Nickname,
		"secondme_connected": u.AccessToken != nil,
	})
}

type connectSecondMeReq struct {
	AccessToken    string `json:"access_token"`
	SecondmeUserID string `json:"secondme_user_id"`
	Nickname       string `json:"nickname"`
}

// ConnectSecondMe stores the SecondMe credential on the user. Token
// refresh and expiry stay the caller's problem; the worker just attaches
// whatever is stored.
func (h *MeHandler) ConnectSecondMe(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req connectSecondMeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.AccessToken = strings.TrimSpace(req.AccessToken)
	if req.AccessToken == "" {
		http.Error(w, "access_token required", http.StatusBadRequest)
		return
	}

	updates := map[string]any{
		"access_token": req.AccessToken,
	}
	if s := strings.TrimSpace(req.SecondmeUserID); s != "" {
		updates["secondme_user_id"] = s
	}
	if n := strings.TrimSpace(req.Nickname); n != "" {
		updates["nickname"] = n
	}
	if err := h.DB.WithContext(r.Context()).Model(&auth.User{}).
		Where("id = ?", uid).
		Updates(updates).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
