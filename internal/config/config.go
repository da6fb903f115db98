package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Port             string
	AllowedOrigins   []string
	AllowCredentials bool
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	KafkaBrokers     []string
	Environment      string

	// Client-side settings.
	ServerWSURL  string
	APIBaseURL   string
	SessionToken string

	// Timing knobs for the assignment flow. The two hold durations pace the
	// UI, the wait timeout bounds how long a customer sits in
	// WaitingForAgent before the flow gives up.
	AgentWaitTimeout time.Duration
	BootstrapHold    time.Duration
	PendingChatHold  time.Duration
	PendingChatTTL   time.Duration
}

func LoadConfig() *Config {
	// Get allowed origins from environment variable
	allowedOrigins := []string{"*"} // Default to allow all origins
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		allowedOrigins = strings.Split(origins, ",")
		for i, origin := range allowedOrigins {
			allowedOrigins[i] = strings.TrimSpace(origin)
		}
	}

	// Get Kafka brokers
	kafkaBrokers := []string{"localhost:9092"} // Default
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		kafkaBrokers = strings.Split(brokers, ",")
		for i, broker := range kafkaBrokers {
			kafkaBrokers[i] = strings.TrimSpace(broker)
		}
	}

	return &Config{
		Port:             getEnv("PORT", "8082"),
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: getEnv("ALLOW_CREDENTIALS", "false") == "true",
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:     kafkaBrokers,
		Environment:      getEnv("ENVIRONMENT", "development"),
		ServerWSURL:      getEnv("SERVER_WS_URL", "ws://localhost:8082/ws"),
		APIBaseURL:       getEnv("API_BASE_URL", "http://localhost:8082"),
		SessionToken:     getEnv("SESSION_TOKEN", ""),
		AgentWaitTimeout: getDurationEnv("AGENT_WAIT_TIMEOUT", 30*time.Second),
		BootstrapHold:    getDurationEnv("BOOTSTRAP_HOLD", 1*time.Second),
		PendingChatHold:  getDurationEnv("PENDING_CHAT_HOLD", 2*time.Second),
		PendingChatTTL:   getDurationEnv("PENDING_CHAT_TTL", 24*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetCORSOrigins returns CORS origins as a comma-separated string
func (c *Config) GetCORSOrigins() string {
	if c.Environment == "production" && len(c.AllowedOrigins) > 0 && c.AllowedOrigins[0] != "*" {
		return strings.Join(c.AllowedOrigins, ",")
	}
	return "*"
}

// IsDevelopment returns true if environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
