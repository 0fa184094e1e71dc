package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Mode selects the backend trio used for room storage, locking, and task
// scheduling.
const (
	ModeMemory = "memory"
	ModeRedis  = "redis"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port     string
	Mode     string
	RedisURL string

	SchedulerInterval time.Duration
	RoomInactivity    time.Duration
	JanitorInterval   time.Duration

	AccusationVote  time.Duration
	FinalVote       time.Duration
	LastChance      time.Duration
	DisconnectGrace time.Duration
}

// Load reads configuration from the environment with sensible defaults,
// after loading a local .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	mode := envOrDefault("MODE", ModeMemory)
	if mode != ModeMemory && mode != ModeRedis {
		mode = ModeMemory
	}

	return &Config{
		Port:              envOrDefault("PORT", "8010"),
		Mode:              mode,
		RedisURL:          envOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		SchedulerInterval: durationOrDefault("SCHEDULER_INTERVAL", time.Second),
		RoomInactivity:    durationOrDefault("ROOM_INACTIVITY", 6*time.Hour),
		JanitorInterval:   durationOrDefault("JANITOR_INTERVAL", 10*time.Minute),
		AccusationVote:    durationOrDefault("ACCUSATION_VOTE_DURATION", 60*time.Second),
		FinalVote:         durationOrDefault("FINAL_VOTE_DURATION", 2*time.Minute),
		LastChance:        durationOrDefault("LAST_CHANCE_DURATION", 45*time.Second),
		DisconnectGrace:   durationOrDefault("DISCONNECT_GRACE", 90*time.Second),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
