package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	LogLevel    string
	LogFormat   string
	CORSOrigins string

	ReportBackend string // mongo | postgres | sqlite | memory
	SQLDSN        string

	LedgerBackend string // mongo | redis | memory
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EvidenceBackend string // fs | s3 | gcs
	UploadDir       string
	PublicBaseURL   string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	GCSBucket       string

	OracleURL           string
	OracleTimeout       time.Duration
	OracleAttempts      int
	OracleRPS           float64
	OracleConfThreshold float64

	GeocoderURL     string
	GeocoderKey     string
	GeocoderTimeout time.Duration
	LocationTimeout time.Duration
	LocationMaxAge  time.Duration

	PersistAttempts int
	CreditAttempts  int

	VerificationPolicyFile string
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		Port:        getenv("PORT", "3005"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "text"),
		CORSOrigins: getenv("CORS_ORIGINS", "http://localhost:3000, http://localhost:3001, http://localhost:3002"),

		ReportBackend: strings.ToLower(getenv("REPORT_BACKEND", "mongo")),
		SQLDSN:        getenv("SQL_DSN", "civicpulse.db"),

		LedgerBackend: strings.ToLower(getenv("LEDGER_BACKEND", "mongo")),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		EvidenceBackend: strings.ToLower(getenv("EVIDENCE_BACKEND", "fs")),
		UploadDir:       getenv("UPLOAD_DIR", "uploads"),
		PublicBaseURL:   getenv("PUBLIC_BASE_URL", "http://localhost:3005/uploads"),
		S3Bucket:        getenv("S3_BUCKET", "pothole-photos"),
		S3Region:        getenv("S3_REGION", "us-east-1"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		GCSBucket:       getenv("GCS_BUCKET", "pothole-photos"),

		OracleURL:           getenv("ORACLE_URL", "http://localhost:8000/detect"),
		OracleTimeout:       getDuration("ORACLE_TIMEOUT", 20*time.Second),
		OracleAttempts:      getInt("ORACLE_ATTEMPTS", 3),
		OracleRPS:           getFloat("ORACLE_RPS", 5),
		OracleConfThreshold: getFloat("ORACLE_CONF_THRESHOLD", 0.25),

		GeocoderURL:     getenv("GEOCODER_URL", "https://api.opencagedata.com/geocode/v1/json"),
		GeocoderKey:     os.Getenv("GEOCODER_KEY"),
		GeocoderTimeout: getDuration("GEOCODER_TIMEOUT", 5*time.Second),
		LocationTimeout: getDuration("LOCATION_TIMEOUT", 10*time.Second),
		LocationMaxAge:  getDuration("LOCATION_MAX_AGE", 60*time.Second),

		PersistAttempts: getInt("PERSIST_ATTEMPTS", 3),
		CreditAttempts:  getInt("CREDIT_ATTEMPTS", 3),

		VerificationPolicyFile: os.Getenv("VERIFICATION_POLICY_FILE"),
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if v, err := strconv.Atoi(getenv(k, "")); err == nil {
		return v
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(getenv(k, ""), 64); err == nil {
		return v
	}
	return def
}

// getDuration accepts Go durations ("20s") or bare seconds ("20").
func getDuration(k string, def time.Duration) time.Duration {
	raw := getenv(k, "")
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
