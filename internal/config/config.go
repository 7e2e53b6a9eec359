package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	// SecondMe agent-completion service.
	SecondMeBaseURL string

	// Shared secret for the manual daily-batch trigger endpoint.
	CronSecret string

	Worker WorkerConfig
}

// WorkerConfig tunes the queue worker. Defaults mirror the production
// deployment: content generation is slow and rate-sensitive, so post jobs
// run one at a time with a long pause; vote suggestions run in batches of
// ten with a short pause.
type WorkerConfig struct {
	VoteBatchSize    int
	VoteProcessDelay time.Duration
	PostBatchSize    int
	PostProcessDelay time.Duration

	PollInterval      time.Duration
	MaxRetries        int
	HeartbeatInterval time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		VoteBatchSize:     10,
		VoteProcessDelay:  3 * time.Second,
		PostBatchSize:     1,
		PostProcessDelay:  10 * time.Second,
		PollInterval:      5 * time.Second,
		MaxRetries:        3,
		HeartbeatInterval: 30 * time.Second,
	}
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		SecondMeBaseURL:      getenv("SECONDME_API_BASE_URL", "https://app.secondme.io"),
		CronSecret:           getenv("CRON_SECRET", ""),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	cfg.JWTSecret = mustGetenv("JWT_SECRET")

	w := DefaultWorkerConfig()
	w.VoteBatchSize = getenvInt("WORKER_VOTE_BATCH_SIZE", w.VoteBatchSize)
	w.VoteProcessDelay = getenvDuration("WORKER_VOTE_PROCESS_DELAY", w.VoteProcessDelay)
	w.PostBatchSize = getenvInt("WORKER_POST_BATCH_SIZE", w.PostBatchSize)
	w.PostProcessDelay = getenvDuration("WORKER_POST_PROCESS_DELAY", w.PostProcessDelay)
	w.PollInterval = getenvDuration("WORKER_POLL_INTERVAL", w.PollInterval)
	w.MaxRetries = getenvInt("WORKER_MAX_RETRIES", w.MaxRetries)
	w.HeartbeatInterval = getenvDuration("WORKER_HEARTBEAT_INTERVAL", w.HeartbeatInterval)
	cfg.Worker = w

	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
