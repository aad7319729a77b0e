package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Camera   CameraConfig
	FaceMesh FaceMeshConfig
	Tracking TrackingConfig
	Models   ModelsConfig
	AWS      AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/studyeyes?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT validation settings. Token issuance lives in the
// auth service; this backend only validates.
type JWTConfig struct {
	Secret string
}

// CameraConfig holds frame-source probing and acquisition settings.
// The thresholds are deployment policy, not correctness constants:
// production uses 0.7 / 30, degraded dev setups may loosen to 0.3 / 50.
type CameraConfig struct {
	Indices          []int // device indices to probe, in order
	Width            int
	Height           int
	FPS              int
	WarmupFrames     int     // frames discarded before validation
	ProbeAttempts    int     // validation burst size
	MinSuccessRatio  float64 // good-frame ratio required to accept a candidate
	MinLuminanceMean float64 // below this a frame counts as black
	MinLuminanceStd  float64 // below this a frame counts as frozen/flat
	MaxFailedFrames  int     // consecutive read failures before synthetic fallback
}

// FaceMeshConfig holds the landmark sidecar settings.
type FaceMeshConfig struct {
	WorkerCommand       string   // e.g. "python3"
	WorkerArgs          []string // e.g. ["workers/facemesh_worker.py"]
	DetectionConfidence float64
	TrackingConfidence  float64
}

// TrackingConfig holds tick cadence and temporal window settings.
type TrackingConfig struct {
	TickRate         int // target ticks per second
	WindowSeconds    int // temporal window retention horizon
	WindowMaxSamples int // hard cap on buffered samples
	PersistEvery     int // persist a snapshot every N ticks
}

// ModelsConfig holds classifier artifact settings.
type ModelsConfig struct {
	Dir                string // directory for attention/distraction/fatigue artifacts
	Estimators         int
	AttentionDepth     int
	DistractionDepth   int
	FatigueDepth       int
	BootstrapSamples   int
	RetrainMinExamples int
}

// AWSConfig holds optional S3 mirroring for model artifacts.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ModelsBucket    string
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/studyeyes?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "studyeyes"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
		},
		Camera: CameraConfig{
			Indices:          getEnvInts("CAMERA_INDICES", []int{0, 1, 2}),
			Width:            getEnvInt("CAMERA_WIDTH", 640),
			Height:           getEnvInt("CAMERA_HEIGHT", 480),
			FPS:              getEnvInt("CAMERA_FPS", 30),
			WarmupFrames:     getEnvInt("CAMERA_WARMUP_FRAMES", 10),
			ProbeAttempts:    getEnvInt("CAMERA_PROBE_ATTEMPTS", 20),
			MinSuccessRatio:  getEnvFloat("CAMERA_MIN_SUCCESS_RATIO", 0.7),
			MinLuminanceMean: getEnvFloat("CAMERA_MIN_LUMINANCE_MEAN", 10),
			MinLuminanceStd:  getEnvFloat("CAMERA_MIN_LUMINANCE_STD", 5),
			MaxFailedFrames:  getEnvInt("CAMERA_MAX_FAILED_FRAMES", 30),
		},
		FaceMesh: FaceMeshConfig{
			WorkerCommand:       getEnv("FACEMESH_WORKER_CMD", "python3"),
			WorkerArgs:          splitTrim(getEnv("FACEMESH_WORKER_ARGS", "workers/facemesh_worker.py"), ","),
			DetectionConfidence: getEnvFloat("FACEMESH_DETECTION_CONFIDENCE", 0.5),
			TrackingConfidence:  getEnvFloat("FACEMESH_TRACKING_CONFIDENCE", 0.5),
		},
		Tracking: TrackingConfig{
			TickRate:         getEnvInt("TRACKING_TICK_RATE", 30),
			WindowSeconds:    getEnvInt("TRACKING_WINDOW_SECONDS", 30),
			WindowMaxSamples: getEnvInt("TRACKING_WINDOW_MAX_SAMPLES", 900),
			PersistEvery:     getEnvInt("TRACKING_PERSIST_EVERY", 30),
		},
		Models: ModelsConfig{
			Dir:                getEnv("MODELS_DIR", "models"),
			Estimators:         getEnvInt("MODELS_ESTIMATORS", 100),
			AttentionDepth:     getEnvInt("MODELS_ATTENTION_DEPTH", 10),
			DistractionDepth:   getEnvInt("MODELS_DISTRACTION_DEPTH", 8),
			FatigueDepth:       getEnvInt("MODELS_FATIGUE_DEPTH", 6),
			BootstrapSamples:   getEnvInt("MODELS_BOOTSTRAP_SAMPLES", 1000),
			RetrainMinExamples: getEnvInt("MODELS_RETRAIN_MIN_EXAMPLES", 100),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ModelsBucket:    getEnv("AWS_S3_MODELS_BUCKET", ""),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvInts(key string, fallback []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
