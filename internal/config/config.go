package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every runtime setting of the service.
type Config struct {
	Port      string
	MongoURI  string
	DBName    string
	JWTSecret string
	JWTTTL    time.Duration

	// Delivery pipeline tuning.
	WorkerCount      int
	QueueSize        int
	MaxRetries       int
	RecoveryBatch    int64
	ReaperStaleness  time.Duration
	PendingPollSpec  string
	ReaperSpec       string
	DraftReminderAge time.Duration
}

// LoadConfig reads configuration from the environment, loading .env first if present.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, relying on environment")
	}

	return &Config{
		Port:      getEnv("PORT", "8080"),
		MongoURI:  getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:    getEnv("DB_NAME", "hris"),
		JWTSecret: getEnv("JWT_SECRET", "dev-secret"),
		JWTTTL:    getDuration("JWT_TTL", 24*time.Hour),

		WorkerCount:      getInt("DELIVERY_WORKERS", 4),
		QueueSize:        getInt("DELIVERY_QUEUE_SIZE", 1024),
		MaxRetries:       getInt("DELIVERY_MAX_RETRIES", 5),
		RecoveryBatch:    int64(getInt("DELIVERY_RECOVERY_BATCH", 1000)),
		ReaperStaleness:  getDuration("DELIVERY_REAPER_STALENESS", 5*time.Minute),
		PendingPollSpec:  getEnv("DELIVERY_POLL_SPEC", "@every 1m"),
		ReaperSpec:       getEnv("DELIVERY_REAPER_SPEC", "@every 1m"),
		DraftReminderAge: getDuration("REVIEW_DRAFT_REMINDER_AGE", 72*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		logrus.Warnf("Invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		logrus.Warnf("Invalid duration for %s, using default %s", key, fallback)
	}
	return fallback
}
