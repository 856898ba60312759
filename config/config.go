package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL  string
	DBPath       string
	LogPath      string
	ControlAddr  string
	ControlToken string
	Checker      CheckerConfig
	Scheduler    SchedulerConfig
	Notify       NotifyConfig
	Platforms    map[string]*PlatformConfig
}

// CheckerConfig holds the bootstrap defaults for the check worker. The
// same knobs can be overridden at runtime through the settings table.
type CheckerConfig struct {
	PoolSize         int
	Concurrency      int
	NavTimeout       time.Duration
	ContentTimeout   time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	BlockedResources []string
	LogRetention     time.Duration
}

type SchedulerConfig struct {
	Cron            string
	Interval        time.Duration
	StartupDelay    time.Duration
	ShutdownTimeout time.Duration
}

type NotifyConfig struct {
	APIBase string
}

// PlatformConfig is the bundled per-platform selector table, used as the
// last-resort fallback when the selector cache has never loaded from the DB.
type PlatformConfig struct {
	Platform  string                    `yaml:"platform"`
	Selectors map[string][]SelectorRule `yaml:"selectors"`
	Patterns  PatternTable              `yaml:"patterns"`
}

type SelectorRule struct {
	Name      string `yaml:"name"`
	Selector  string `yaml:"selector"`
	Extractor string `yaml:"extractor"`
	Priority  int    `yaml:"priority"`
}

type PatternTable struct {
	Available   []string `yaml:"available"`
	Unavailable []string `yaml:"unavailable"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DBPath:       getEnv("DB_PATH", "staywatch.db"),
		LogPath:      getEnv("LOG_PATH", "daemon.log"),
		ControlAddr:  getEnv("CONTROL_ADDR", ":8090"),
		ControlToken: os.Getenv("CONTROL_TOKEN"),
		Checker: CheckerConfig{
			PoolSize:         getEnvInt("BROWSER_POOL_SIZE", 3),
			Concurrency:      getEnvInt("WORKER_CONCURRENCY", 3),
			NavTimeout:       getEnvDuration("NAV_TIMEOUT", 45*time.Second),
			ContentTimeout:   getEnvDuration("CONTENT_TIMEOUT", 15*time.Second),
			MaxRetries:       getEnvInt("MAX_RETRIES", 3),
			RetryDelay:       getEnvDuration("RETRY_DELAY", 5*time.Second),
			BlockedResources: getEnvList("BLOCKED_RESOURCES", []string{"image", "font", "stylesheet", "media"}),
			LogRetention:     getEnvDuration("CHECKLOG_RETENTION", 30*24*time.Hour),
		},
		Scheduler: SchedulerConfig{
			Cron:            os.Getenv("CHECK_CRON"),
			Interval:        getEnvDuration("CHECK_INTERVAL", 10*time.Minute),
			StartupDelay:    getEnvDuration("STARTUP_DELAY", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 60*time.Second),
		},
		Notify: NotifyConfig{
			APIBase: getEnv("MESSAGING_API_BASE", "https://api.line.me"),
		},
		Platforms: make(map[string]*PlatformConfig),
	}

	if err := cfg.loadPlatformConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadPlatformConfigs() error {
	dir := getEnv("PLATFORM_CONFIG_DIR", "config/platforms")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}

		var pc PlatformConfig
		if err := yaml.Unmarshal(data, &pc); err != nil {
			return err
		}

		c.Platforms[pc.Platform] = &pc
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultVal
}
