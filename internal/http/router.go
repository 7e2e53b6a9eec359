package http

import (
	"net/http"

	"github.com/DongHuiTiao/ai-vote-circle/internal/auth"
	"github.com/DongHuiTiao/ai-vote-circle/internal/config"
	"github.com/DongHuiTiao/ai-vote-circle/internal/http/handler"
	mw "github.com/DongHuiTiao/ai-vote-circle/internal/http/middleware"
	"github.com/DongHuiTiao/ai-vote-circle/internal/jobs"
	"github.com/DongHuiTiao/ai-vote-circle/internal/metrics"
	"github.com/DongHuiTiao/ai-vote-circle/internal/vote"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

func NewRouter(cfg config.Config, db *gorm.DB, jwtSvc *auth.JWT, sm jobs.CompletionClient, collector *metrics.Collector) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if collector != nil {
		r.Method(http.MethodGet, "/metrics", collector.Handler())
	}

	ah := &handler.AuthHandler{DB: db, JWT: jwtSvc}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	me := &handler.MeHandler{DB: db}
	r.Route("/me", func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))
		r.Get("/", me.Me)
		r.Post("/secondme", me.ConnectSecondMe)
	})

	voteSvc := &vote.Service{DB: db}
	voteH := &handler.VoteHandler{Svc: voteSvc, DB: db, SM: sm}

	r.Route("/votes", func(r chi.Router) {
		r.Get("/", voteH.List)

		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(jwtSvc))
			r.Get("/{id}", voteH.Get)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(jwtSvc))
			r.Post("/", voteH.Create)
			r.Post("/{id}/respond", voteH.Respond)
			r.Post("/{id}/ai-suggest", voteH.AISuggest)
		})
	})

	jobsRepo := &jobs.Repo{DB: db}
	av := &handler.AutoVoteHandler{DB: db, Repo: jobsRepo}
	r.Route("/auto-vote", func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))
		r.Post("/", av.Enqueue)
		r.Get("/status", av.Status)
	})

	cron := &handler.CronHandler{Repo: jobsRepo, CronSecret: cfg.CronSecret}
	r.Get("/cron/daily-ai-vote", cron.DailyAIVote)

	return r
}
