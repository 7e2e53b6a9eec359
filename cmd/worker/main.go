package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DongHuiTiao/ai-vote-circle/internal/config"
	"github.com/DongHuiTiao/ai-vote-circle/internal/db"
	"github.com/DongHuiTiao/ai-vote-circle/internal/jobs"
	"github.com/DongHuiTiao/ai-vote-circle/internal/metrics"
	"github.com/DongHuiTiao/ai-vote-circle/internal/secondme"
)

// Standalone queue worker. More than one instance may run against the
// same database; the claim CAS keeps them from double-processing.
func main() {
	cfg, _ := config.Load()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal(err)
	}

	sm := secondme.NewClient(cfg.SecondMeBaseURL)
	collector := metrics.NewCollector()
	worker := jobs.NewWorker(gdb, cfg.Worker, sm, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Printf("received %s, stopping worker...", sig)

	// Bounded by one job's worst-case processing time: the loop finishes
	// the item in hand, releases the rest of its batch, and reports a
	// stopped heartbeat.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer stopCancel()
	if err := worker.Stop(stopCtx); err != nil {
		log.Printf("worker stop: %v", err)
	}
}
