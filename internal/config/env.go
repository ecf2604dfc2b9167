package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port        string
	DatabaseURL string
	SslCertPath string
	JWTSecret   string

	AwsAccessKey    string
	AwsSecretKey    string
	AwsSessionToken string
	AwsRegion       string
	FileBucket      string
	S3Endpoint      string

	GeminiAPIKey  string
	OllamaURL     string
	BedrockRegion string
	DefaultModel  string
	ModelsFile    string

	LLMTimeout     time.Duration
	QueryTimeout   time.Duration
	ChartTimeout   time.Duration
	HistoryLimit   int
	ChartsEnabled  bool
	ProfileWorkers int

	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
}

// LoadConfig loads .env (when present) and reads the environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		AwsAccessKey:    getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:    getEnv("AWS_SECRET_KEY", ""),
		AwsSessionToken: getEnv("AWS_SESSION_TOKEN", ""),
		AwsRegion:       getEnv("AWS_REGION", "us-east-1"),
		FileBucket:      getEnv("FILE_BUCKET", "leonidas-files"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		OllamaURL:     getEnv("OLLAMA_URL", "http://localhost:11434"),
		BedrockRegion: getEnv("BEDROCK_REGION", "us-east-1"),
		DefaultModel:  getEnv("DEFAULT_MODEL", "OPENAI_20b_BR"),
		ModelsFile:    getEnv("MODELS_FILE", ""),

		LLMTimeout:     getEnvDuration("LLM_TIMEOUT", 90*time.Second),
		QueryTimeout:   getEnvDuration("QUERY_TIMEOUT", 60*time.Second),
		ChartTimeout:   getEnvDuration("CHART_TIMEOUT", 20*time.Second),
		HistoryLimit:   getEnvInt("HISTORY_LIMIT", 10),
		ChartsEnabled:  getEnvBool("CHARTS_ENABLED", true),
		ProfileWorkers: getEnvInt("PROFILE_WORKERS", 2),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate checks the settings the HTTP server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET not set"))
	}
	if c.FileBucket == "" {
		errs = append(errs, errors.New("FILE_BUCKET not set"))
	}
	if c.HistoryLimit < 0 {
		errs = append(errs, errors.New("HISTORY_LIMIT must not be negative"))
	}
	return errors.Join(errs...)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.Warnf("%s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logrus.Warnf("%s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logrus.Warnf("%s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
