package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DongHuiTiao/ai-vote-circle/internal/auth"
	"github.com/DongHuiTiao/ai-vote-circle/internal/config"
	"github.com/DongHuiTiao/ai-vote-circle/internal/db"
	httpx "github.com/DongHuiTiao/ai-vote-circle/internal/http"
	"github.com/DongHuiTiao/ai-vote-circle/internal/jobs"
	"github.com/DongHuiTiao/ai-vote-circle/internal/metrics"
	"github.com/DongHuiTiao/ai-vote-circle/internal/secondme"
)

func main() {
	cfg, _ := config.Load()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal(err)
	}

	jwtSvc := auth.NewJWT(cfg.JWTSecret)
	sm := secondme.NewClient(cfg.SecondMeBaseURL)
	collector := metrics.NewCollector()
	r := httpx.NewRouter(cfg, gdb, jwtSvc, sm, collector)

	// embedded worker
	worker := jobs.NewWorker(gdb, cfg.Worker, sm, collector)

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := worker.Stop(shutdownCtx); err != nil {
		log.Printf("worker stop: %v", err)
	}
	cancel()
	_ = srv.Shutdown(shutdownCtx)
}
