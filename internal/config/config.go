package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"trafficmonitor/internal/incident"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               int
	DatabasePath       string
	ModelPath          string
	ConfigPath         string
	LabelsPath         string  // One detector label per line; empty uses the built-in vocabulary
	DetectionThreshold float64 // Minimum detector confidence for a label to count
	ProcessingInterval int     // Run detection on every Nth frame (1 = every frame)
	DetectorWorkers    int     // Number of detector networks loaded in parallel
	JPEGQuality        int
	CameraCacheTTL     int // Seconds a camera lookup stays cached

	QuietFrameThreshold int               // Empty frames that close an incident episode
	SeverityRanking     []string          // Labels, most severe first
	SeverityMap         map[string]string // Label -> high/medium/low
	PersistRetryLimit   int               // Store attempts per incident before it is dropped
	PersistBackoffMS    int               // First wait between store retries when a stream closes; doubles each round

	LogDirectory  string
	LogMaxSizeMB  int // Size at which a level log file is rotated
	LogMaxBackups int // Rotated files kept per level
}

// Load reads configuration from the environment. Values in a .env file in the
// working directory are loaded first but never override the real environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnvAsInt("PORT", 8080),
		DatabasePath:       getEnv("DB_PATH", filepath.Join(".", "data", "traffic.db")),
		ModelPath:          getEnv("MODEL_PATH", filepath.Join(".", "models", "traffic_incidents.pb")),
		ConfigPath:         getEnv("CONFIG_PATH", filepath.Join(".", "models", "traffic_incidents.pbtxt")),
		LabelsPath:         getEnv("LABELS_PATH", ""),
		DetectionThreshold: getEnvAsFloat("DETECTION_THRESHOLD", 0.5),
		ProcessingInterval: getEnvAsInt("PROCESSING_INTERVAL", 1),
		DetectorWorkers:    getEnvAsInt("DETECTOR_WORKERS", 2),
		JPEGQuality:        getEnvAsInt("JPEG_QUALITY", 80),
		CameraCacheTTL:     getEnvAsInt("CAMERA_CACHE_TTL", 300),

		QuietFrameThreshold: getEnvAsInt("QUIET_FRAME_THRESHOLD", 5),
		SeverityRanking:     getEnvAsList("SEVERITY_RANKING", incident.DefaultRanking),
		SeverityMap:         getEnvAsMap("SEVERITY_MAP", defaultSeverityMap()),
		PersistRetryLimit:   getEnvAsInt("PERSIST_RETRY_LIMIT", 3),
		PersistBackoffMS:    getEnvAsInt("PERSIST_BACKOFF_MS", 50),

		LogDirectory:  getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogMaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
	}
}

// AggregatorConfig converts the severity settings into a validated
// aggregator configuration.
func (c *Config) AggregatorConfig() (incident.Config, error) {
	severities := make(map[string]incident.Severity, len(c.SeverityMap))
	for label, level := range c.SeverityMap {
		sev, err := incident.ParseSeverity(level)
		if err != nil {
			return incident.Config{}, fmt.Errorf("SEVERITY_MAP entry %q: %w", label, err)
		}
		severities[label] = sev
	}

	cfg := incident.Config{
		QuietFrameThreshold: c.QuietFrameThreshold,
		SeverityRanking:     c.SeverityRanking,
		SeverityMap:         severities,
	}

	// Fail at startup rather than on the first stream.
	if _, err := incident.New(cfg); err != nil {
		return incident.Config{}, err
	}
	return cfg, nil
}

func defaultSeverityMap() map[string]string {
	m := make(map[string]string, len(incident.DefaultSeverityMap))
	for label, sev := range incident.DefaultSeverityMap {
		m[label] = string(sev)
	}
	return m
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blank items.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvAsMap parses "key=value,key=value". Malformed pairs are skipped.
func getEnvAsMap(key string, defaultValue map[string]string) map[string]string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	m := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		m[k] = v
	}
	return m
}
