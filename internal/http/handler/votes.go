package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/DongHuiTiao/ai-vote-circle/internal/auth"
	"github.com/DongHuiTiao/ai-vote-circle/internal/jobs"
	"github.com/DongHuiTiao/ai-vote-circle/internal/vote"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type VoteHandler struct {
	Svc *vote.Service
	DB  *gorm.DB
	SM  jobs.CompletionClient
}

type createVoteReq struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Options     []string `json:"options"`
}

func (h *VoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createVoteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || len(req.Options) < 2 {
		http.Error(w, "title and at least 2 options required", http.StatusBadRequest)
		return
	}
	if req.Type != "" && req.Type != vote.TypeSingle && req.Type != vote.TypeMultiple {
		http.Error(w, "type must be single or multiple", http.StatusBadRequest)
		return
	}

	v, err := h.Svc.Create(r.Context(), uid, vote.CreateVoteInput{
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		Type:        req.Type,
		Options:     req.Options,
	})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *VoteHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	vs, err := h.Svc.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"votes": vs})
}

func (h *VoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, vote.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	results, err := h.Svc.Results(r.Context(), v.ID, len(v.Options))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := map[string]any{"vote": v, "results": results}
	if uid, ok := auth.UserIDFromContext(r.Context()); ok {
		mine, err := h.Svc.GetResponse(r.Context(), v.ID, uid, vote.OperatorHuman)
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		out["my_response"] = mine
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

type respondReq struct {
	Choice json.RawMessage `json:"choice"`
	Reason *string         `json:"reason"`
}

func (h *VoteHandler) Respond(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req respondReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if len(req.Choice) == 0 {
		http.Error(w, "choice required", http.StatusBadRequest)
		return
	}

	err := h.Svc.Respond(r.Context(), vote.RespondInput{
		VoteID:       id,
		UserID:       uid,
		Choice:       req.Choice,
		Reason:       req.Reason,
		OperatorType: vote.OperatorHuman,
	})
	switch {
	case errors.Is(err, vote.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, vote.ErrInvalidChoice):
		http.Error(w, "invalid choice", http.StatusBadRequest)
	case errors.Is(err, vote.ErrAlreadyResponded):
		http.Error(w, "already responded", http.StatusConflict)
	case err != nil:
		http.Error(w, "server error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// AISuggest runs the same prompt/validate path as the worker, but
// synchronously, for the "ask my agent" button.
func (h *VoteHandler) AISuggest(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	v, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, vote.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if len(v.Options) == 0 {
		http.Error(w, "vote has no options", http.StatusBadRequest)
		return
	}

	var u auth.User
	if err := h.DB.WithContext(r.Context()).First(&u, uid).Error; err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if u.AccessToken == nil {
		http.Error(w, "secondme not connected", http.StatusForbidden)
		return
	}

	raw, err := h.SM.ActStream(*u.AccessToken, jobs.BuildVotePrompt(v), jobs.BuildVoteActionControl(v))
	if err != nil {
		http.Error(w, "ai service unavailable", http.StatusServiceUnavailable)
		return
	}

	res, err := jobs.ParseChoice(raw, v.Type, len(v.Options))
	if err != nil {
		http.Error(w, "ai returned invalid suggestion", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choice": res.Choice,
		"reason": res.Reason,
	})
}
