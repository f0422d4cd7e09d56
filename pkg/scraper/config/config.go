package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Settings holds all runtime configuration. It is built once in main from
// the environment and passed down by reference; no package-level state.
type Settings struct {
	MarketplaceAPIBaseURL string
	MarketplaceBaseURL    string
	MarketplaceUsername   string
	MarketplaceAPIToken   string

	RequestDelay            time.Duration
	MaxRetryAttempts        int
	MaxConcurrentDownloads  int
	MaxVersionScrapeWorkers int
	VersionAgeLimitDays     int

	// ExpandServerHosting tags apps found via a "server" search with
	// "datacenter" hosting as well. Heuristic carried over from the
	// historical scraper; disable with EXPAND_SERVER_HOSTING=false.
	ExpandServerHosting bool

	DatabaseDSN    string
	MetadataDir    string
	BinariesDir    string
	TaskStatusPath string

	ListenAddr string
}

// Load reads settings from the environment, applying the defaults the
// scraper has always used.
func Load() Settings {
	metadataDir := getenv("METADATA_DIR", "data/metadata")

	s := Settings{
		MarketplaceAPIBaseURL: getenv("MARKETPLACE_API_V2", "https://marketplace.atlassian.com/rest/2"),
		MarketplaceBaseURL:    getenv("MARKETPLACE_BASE_URL", "https://marketplace.atlassian.com"),
		MarketplaceUsername:   os.Getenv("MARKETPLACE_USERNAME"),
		MarketplaceAPIToken:   os.Getenv("MARKETPLACE_API_TOKEN"),

		RequestDelay:            time.Duration(getenvFloat("SCRAPER_REQUEST_DELAY", 1.0) * float64(time.Second)),
		MaxRetryAttempts:        getenvInt("MAX_RETRY_ATTEMPTS", 3),
		MaxConcurrentDownloads:  getenvInt("MAX_CONCURRENT_DOWNLOADS", 3),
		MaxVersionScrapeWorkers: getenvInt("MAX_VERSION_SCRAPER_WORKERS", 4),
		VersionAgeLimitDays:     getenvInt("VERSION_AGE_LIMIT_DAYS", 365),

		ExpandServerHosting: getenvBool("EXPAND_SERVER_HOSTING", true),

		DatabaseDSN:    getenv("DATABASE_DSN", filepath.Join(metadataDir, "marketplace.db")),
		MetadataDir:    metadataDir,
		BinariesDir:    getenv("BINARIES_DIR", "data/binaries"),
		TaskStatusPath: getenv("TASK_STATUS_PATH", filepath.Join(metadataDir, "task_status.json")),

		ListenAddr: getenv("LISTEN_ADDR", ":1337"),
	}
	return s
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
