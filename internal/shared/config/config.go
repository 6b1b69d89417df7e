package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"

	ObjectStoreLocal = "local"
	ObjectStoreS3    = "s3"
)

// Config holds application configuration.
type Config struct {
	Port               string
	CORSAllowOrigin    []string
	DatabaseURL        string
	DBDriver           string
	SQLitePath         string
	AutoMigrate        bool
	Env                string
	LogLevel           string
	JWTSecret          string
	JWTIssuer          string
	AnalysisAPIURL     string
	AnalysisAPITimeout time.Duration
	GitHubToken        string
	ObjectStoreType    string
	LocalStoreDir      string
	AWSRegion          string
	S3Bucket           string
	S3Prefix           string
	SSEKMSKeyID        string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	driver := normalizeDriver(getEnv("DB_DRIVER", ""), dbURL)

	if env == "production" && driver == DriverPostgres && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:               getEnv("PORT", "8080"),
		CORSAllowOrigin:    splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:        dbURL,
		DBDriver:           driver,
		SQLitePath:         getEnv("SQLITE_PATH", "./data/analyses.db"),
		AutoMigrate:        getEnvBool("DB_AUTO_MIGRATE", env != "production"),
		Env:                env,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTIssuer:          getEnv("JWT_ISSUER", "onboarding-backend"),
		AnalysisAPIURL:     getEnv("ANALYSIS_API_URL", ""),
		AnalysisAPITimeout: getEnvDuration("ANALYSIS_API_TIMEOUT", 90*time.Second),
		GitHubToken:        getEnv("GITHUB_TOKEN", ""),
		ObjectStoreType:    normalizeStoreType(getEnv("OBJECT_STORE", ObjectStoreLocal)),
		LocalStoreDir:      getEnv("LOCAL_STORE_DIR", "./data/exports"),
		AWSRegion:          getEnv("AWS_REGION", ""),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Prefix:           getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:        getEnv("SSE_KMS_KEY_ID", ""),
	}
}

// IsDevLike reports whether env tolerates falling back to in-memory storage.
func (c Config) IsDevLike() bool {
	switch c.Env {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		// Load never overrides variables that are already set.
		if err := godotenv.Load(path); err != nil {
			log.Printf("config: ignore %s: %v", path, err)
		}
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config: %s invalid bool: %v", key, err)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

// normalizeDriver picks postgres when only DATABASE_URL is given and memory when nothing is.
func normalizeDriver(raw, dbURL string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "postgresql", "pg":
		return DriverPostgres
	case "sqlite", "sqlite3":
		return DriverSQLite
	case "memory", "mem":
		return DriverMemory
	}
	if strings.TrimSpace(dbURL) != "" {
		return DriverPostgres
	}
	return DriverMemory
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ObjectStoreS3:
		return ObjectStoreS3
	default:
		return ObjectStoreLocal
	}
}
