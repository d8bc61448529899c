// File: internal/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	// LLM backend (OpenAI-compatible chat completions endpoint).
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMTemperature float64
	// Embedding backend. Leave EmbeddingBaseURL empty to run with the
	// deterministic offline embedder.
	EmbeddingBaseURL   string
	EmbeddingAPIKey    string
	EmbeddingModelName string
	EmbeddingDimension int

	RetrievalTopK int
	DataDir       string
	UploadDir     string
	HistoryDBPath string
	Environment   string
}

// Load reads configuration from environment variables or a .env file.
func Load() *Config {
	env := os.Getenv("ENV")
	if strings.ToLower(env) != "production" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found; continuing with environment variables")
		}
	}

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "https://v1.voct.top/v1"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "EMPTY"),
		LLMModel:           getEnv("LLM_MODEL", "gpt-4.1-mini"),
		LLMTemperature:     getEnvAsFloat("LLM_TEMPERATURE", 0.3),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", ""),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", "EMPTY"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "bge-large-zh-v1.5"),
		EmbeddingDimension: getEnvAsInt("EMBEDDING_DIMENSION", 1024),
		RetrievalTopK:      getEnvAsInt("RAG_TOPK", 5),
		DataDir:            getEnv("DATA_DIR", "data"),
		UploadDir:          getEnv("UPLOAD_DIR", "uploads"),
		HistoryDBPath:      getEnv("HISTORY_DB_PATH", "history.db"),
		Environment:        env,
	}

	// Validation for production environments.
	if strings.ToLower(env) == "production" {
		missing := []string{}
		if cfg.LLMBaseURL == "" {
			missing = append(missing, "LLM_BASE_URL")
		}
		if cfg.LLMAPIKey == "" || cfg.LLMAPIKey == "EMPTY" {
			missing = append(missing, "LLM_API_KEY")
		}
		if cfg.EmbeddingBaseURL == "" {
			missing = append(missing, "EMBEDDING_BASE_URL")
		}
		if len(missing) > 0 {
			log.Fatalf("Missing required production environment variables: %v", missing)
		}
	}

	return cfg
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an env var as an integer, with a fallback.
func getEnvAsInt(key string, defaultValue int) int {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as integer. Using default value.", key)
		return defaultValue
	}
	return intValue
}

// getEnvAsFloat gets an env var as a float, with a fallback.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as float. Using default value.", key)
		return defaultValue
	}
	return floatValue
}
