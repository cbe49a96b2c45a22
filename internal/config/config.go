package config

import (
	"crypto/rand"
	"log"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	ServerPort  string
	Environment string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis configuration
	RedisAddress string

	// JWT configuration
	JWTSecret string

	// Generation (Gemini) configuration
	GeminiAPIKey      string
	GeminiBaseURL     string
	CreateModel       string
	EditModel         string
	GenerationTimeout time.Duration
	ImageCheckTimeout time.Duration
	FallbackImageURL  string

	// Editor sessions
	SaveDebounce       time.Duration
	SessionIdleTimeout time.Duration
	WorkerCount        int

	// Generation rate limit, per user
	RateLimitRPS   float64
	RateLimitBurst int

	// Observability
	JaegerEndpoint string

	FrontendAddress string
}

// Global application configuration
var AppConfig Config

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Find .env file
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Try to find .env in parent directories
		envPath = filepath.Join("..", ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			envPath = filepath.Join("..", "..", ".env")
		}
	}

	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateRandomSecret(32)
		log.Println("Generated random JWT secret")
	}

	AppConfig = Config{
		ServerPort:         getEnv("PORT", "8080"),
		Environment:        getEnv("ENV", "development"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "postgres"),
		DBName:             getEnv("DB_NAME", "site_builder"),
		RedisAddress:       getEnv("REDIS_ADDRESS", "localhost:6379"),
		JWTSecret:          jwtSecret,
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		CreateModel:        getEnv("CREATE_MODEL", ""),
		EditModel:          getEnv("EDIT_MODEL", ""),
		GenerationTimeout:  getEnvDuration("GENERATION_TIMEOUT", 3*time.Minute),
		ImageCheckTimeout:  getEnvDuration("IMAGE_CHECK_TIMEOUT", 5*time.Second),
		FallbackImageURL:   getEnv("FALLBACK_IMAGE_URL", "https://images.pexels.com/photos/1181244/pexels-photo-1181244.jpeg"),
		SaveDebounce:       getEnvDuration("SAVE_DEBOUNCE", time.Second),
		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		WorkerCount:        getEnvInt("WORKER_COUNT", 4),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 0.2),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 3),
		JaegerEndpoint:     getEnv("JAEGER_ENDPOINT", ""),
		FrontendAddress:    getEnv("FRONTEND_ADDRESS", "https://production-frontend.com"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go duration strings such as "1s" or "3m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// generateRandomSecret generates a random secret of the specified length
func generateRandomSecret(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	secret := make([]byte, length)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			n = big.NewInt(time.Now().UnixNano() % int64(len(charset)))
		}
		secret[i] = charset[n.Int64()]
	}
	return string(secret)
}
