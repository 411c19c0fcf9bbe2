package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	LogLevel string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// IPNKey signs NOWPayments instant payment notifications.
	IPNKey    string
	JWTSecret string

	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int

	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	EmailFrom string

	// Kafka (comma-separated brokers, empty disables publishing)
	KafkaBrokers            []string
	KafkaPaymentsTopic      string
	KafkaSubscriptionsTopic string
	KafkaConsumerGroup      string

	// SubscriptionSweepInterval enables the periodic expiry sweep when > 0.
	SubscriptionSweepInterval time.Duration
}

// Load reads an optional .env file and builds the configuration from the
// environment.
func Load() Config {
	envLocations := []string{
		".env",
		"config/.env",
		"../config/.env",
	}

	envLoaded := false
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		log.Println("No .env file found, using environment variables")
	}

	return Config{
		HTTPAddr: getEnvWithDefault("HTTP_ADDR", ":8080"),
		LogLevel: getEnvWithDefault("LOG_LEVEL", "INFO"),

		DBHost:     getEnvWithDefault("DB_HOST", "localhost"),
		DBPort:     getEnvWithDefault("DB_PORT", "5432"),
		DBUser:     getEnvWithDefault("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnvWithDefault("DB_NAME", "learning"),
		DBSSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),

		IPNKey:    os.Getenv("IPN_KEY"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		CORSAllowedOrigins: splitList(getEnvWithDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		RateLimitPerSecond: getFloatWithDefault("RATE_LIMIT_PER_SECOND", 0),
		RateLimitBurst:     getIntWithDefault("RATE_LIMIT_BURST", 0),

		SMTPHost:  getEnvWithDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:  getIntWithDefault("SMTP_PORT", 587),
		SMTPUser:  os.Getenv("SMTP_USER"),
		SMTPPass:  os.Getenv("SMTP_PASS"),
		EmailFrom: os.Getenv("EMAIL_FROM"),

		KafkaBrokers:            splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaPaymentsTopic:      getEnvWithDefault("KAFKA_PAYMENTS_TOPIC", "learning.payments"),
		KafkaSubscriptionsTopic: getEnvWithDefault("KAFKA_SUBSCRIPTIONS_TOPIC", "learning.subscriptions"),
		KafkaConsumerGroup:      getEnvWithDefault("KAFKA_CONSUMER_GROUP", "learning-platform-notifier"),

		SubscriptionSweepInterval: getDurationWithDefault("SUBSCRIPTION_SWEEP_INTERVAL", 0),
	}
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var missing []string
	if c.IPNKey == "" {
		missing = append(missing, "IPN_KEY")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DBConnString returns the lib/pq connection string.
func (c Config) DBConnString() string {
	return "host=" + c.DBHost +
		" port=" + c.DBPort +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" sslmode=" + c.DBSSLMode
}

// KafkaEnabled reports whether at least one broker is configured.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// MailEnabled reports whether SMTP credentials are configured.
func (c Config) MailEnabled() bool {
	return c.SMTPUser != "" && c.SMTPPass != ""
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
		log.Printf("Invalid integer for %s=%q, using %d", key, value, defaultValue)
	}
	return defaultValue
}

func getFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
		log.Printf("Invalid number for %s=%q, using %g", key, value, defaultValue)
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
		log.Printf("Invalid duration for %s=%q, using %s", key, value, defaultValue)
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
