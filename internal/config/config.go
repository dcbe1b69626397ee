package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database Database
	Detector Detector
	Gateway  Gateway
	Workflow Workflow
}

type Database struct {
	Driver       string // "postgres" (default) or "mysql"
	URL          string
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	IndexPath    string // Path to persist the face label index (optional, rebuilt on startup if empty)
}

type Detector struct {
	URL               string  // face detector service, defaults to http://localhost:8000
	DistanceThreshold float64 // max cosine distance for a label match (default 0.5)
}

type Gateway struct {
	URL   string // chat gateway base URL for outbound sends
	Token string
}

type Workflow struct {
	IgnoreClassTime bool          // bypass the session time-window check
	EventTimeout    time.Duration // overall budget per inbound event (default 90s)
	FaceDir         string        // directory for enrolled face sample images (default "faces")
	TempDir         string        // directory for transient face crops (default "temp")
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean flag.
// Accepts the forms strconv.ParseBool understands; anything else is the default.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envDuration reads an environment variable as a time.Duration (e.g. "90s").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Database: Database{
			Driver:       envString("DATABASE_DRIVER", "postgres"),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			IndexPath:    os.Getenv("FACE_INDEX_PATH"),
		},
		Detector: Detector{
			URL:               os.Getenv("DETECTOR_URL"),
			DistanceThreshold: envFloat("DETECTOR_DISTANCE_THRESHOLD", 0.5),
		},
		Gateway: Gateway{
			URL:   os.Getenv("GATEWAY_URL"),
			Token: os.Getenv("GATEWAY_TOKEN"),
		},
		Workflow: Workflow{
			IgnoreClassTime: envBool("ATTEND_IGNORE_CLASS_TIME", false),
			EventTimeout:    envDuration("EVENT_TIMEOUT", 90*time.Second),
			FaceDir:         envString("FACE_DIR", "faces"),
			TempDir:         envString("TEMP_DIR", "temp"),
		},
	}
}
