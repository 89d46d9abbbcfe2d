package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	DBDriver string
	DBURL    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TimeZone     string
	ReminderCron string
	Channel      string

	ItemDelay       time.Duration
	BackoffBase     time.Duration
	ClaimStaleAfter time.Duration

	JWTSecret string

	Twilio TwilioConfig
}

type TwilioConfig struct {
	AccountSID          string
	AuthToken           string
	WhatsAppNumber      string
	PhoneNumber         string
	DayBeforeContentSID string
	UpcomingContentSID  string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return &Config{
		Port:            getEnv("PORT", "8080"),
		DBDriver:        getEnv("DB_DRIVER", "postgres"),
		DBURL:           getEnv("DB_URL", ""),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         redisDB,
		TimeZone:        getEnv("TZ_NAME", "UTC"),
		ReminderCron:    getEnv("REMINDER_CRON", "0 * * * *"),
		Channel:         getEnv("CHANNEL", "twilio"),
		ItemDelay:       getDuration("REMINDER_ITEM_DELAY", time.Second),
		BackoffBase:     getDuration("REMINDER_BACKOFF_BASE", time.Second),
		ClaimStaleAfter: getDuration("REMINDER_CLAIM_STALE_AFTER", 30*time.Minute),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		Twilio: TwilioConfig{
			AccountSID:          os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:           os.Getenv("TWILIO_AUTH_TOKEN"),
			WhatsAppNumber:      os.Getenv("TWILIO_WHATSAPP_NUMBER"),
			PhoneNumber:         os.Getenv("TWILIO_PHONE_NUMBER"),
			DayBeforeContentSID: os.Getenv("TWILIO_DAY_BEFORE_CONTENT_SID"),
			UpcomingContentSID:  os.Getenv("TWILIO_NEAR_TIME_CONTENT_SID"),
		},
	}
}

// Location resolves the service's local time zone. Day boundaries and quiet
// hours are computed in it.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.TimeZone)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value, "default", fallback)
		return fallback
	}
	return d
}
