package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// API configuration
	APIPort string

	// LLM configuration
	LLM LLMConfig

	// Learning configuration
	Learning LearningConfig
}

// LLMConfig holds LLM service configuration
type LLMConfig struct {
	Enabled         bool
	Endpoint        string
	APIKey          string
	Model           string
	MaxTokens       int
	Temperature     float64
	CooldownMinutes int
}

// LearningConfig holds the learning pipeline parameters and gates
type LearningConfig struct {
	// Scheduling
	RunIntervalMinutes            int
	AcceleratedRunIntervalMinutes int
	RefreshIntervalMinutes        int

	// Intake
	StrandWindowHours int
	BatchLimit        int

	// Grouping
	RefinementMinSize int
	RefinementRadius  float64

	// Mining gates
	MinLessonSamples  int
	SupportSaturation float64
	DecayHalfLifeHrs  int
	MiningParallelism int

	// Ensemble
	CorrelationCeiling float64

	// Overrides
	MinOverrideEdge float64
	OverrideTTLDays int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "tradeloom"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "tradeloom"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "tradeloom123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		// API configuration
		APIPort: getEnvOrDefault("API_PORT", "8090"),

		// LLM configuration
		LLM: LLMConfig{
			Enabled:         getEnvOrDefault("LLM_ENABLED", "false") == "true",
			Endpoint:        getEnvOrDefault("LLM_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:          getEnvOrDefault("LLM_API_KEY", ""),
			Model:           getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:       getEnvInt("LLM_MAX_TOKENS", 400),
			Temperature:     getEnvFloat("LLM_TEMPERATURE", 0.3),
			CooldownMinutes: getEnvInt("LLM_COOLDOWN_MINUTES", 15),
		},

		// Learning configuration
		Learning: LearningConfig{
			RunIntervalMinutes:            getEnvInt("LEARNING_RUN_INTERVAL", 30),
			AcceleratedRunIntervalMinutes: getEnvInt("LEARNING_ACCELERATED_INTERVAL", 10),
			RefreshIntervalMinutes:        getEnvInt("LEARNING_REFRESH_INTERVAL", 60),

			StrandWindowHours: getEnvInt("LEARNING_STRAND_WINDOW_HOURS", 30*24),
			BatchLimit:        getEnvInt("LEARNING_BATCH_LIMIT", 2000),

			RefinementMinSize: getEnvInt("LEARNING_REFINEMENT_MIN_SIZE", 12),
			RefinementRadius:  getEnvFloat("LEARNING_REFINEMENT_RADIUS", 0.35),

			MinLessonSamples:  getEnvInt("LEARNING_MIN_LESSON_SAMPLES", 33),
			SupportSaturation: getEnvFloat("LEARNING_SUPPORT_SATURATION", 20.0),
			DecayHalfLifeHrs:  getEnvInt("LEARNING_DECAY_HALF_LIFE_HOURS", 72),
			MiningParallelism: getEnvInt("LEARNING_MINING_PARALLELISM", 4),

			CorrelationCeiling: getEnvFloat("LEARNING_CORRELATION_CEILING", 0.3),

			MinOverrideEdge: getEnvFloat("LEARNING_MIN_OVERRIDE_EDGE", 0.05),
			OverrideTTLDays: getEnvInt("LEARNING_OVERRIDE_TTL_DAYS", 14),
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
