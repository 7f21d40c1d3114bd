package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/marketplace.ini"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// MarketConfig describes runtime options for the marketplace daemon and CLI.
// It is constructed once at startup and passed to components explicitly.
type MarketConfig struct {
	Environment string
	HTTPAddress string

	// DatabaseURL selects the store backend: postgres:// DSNs open the
	// Postgres store, anything else is treated as a SQLite file path.
	DatabaseURL string
	DBMaxOpen   int
	DBMaxIdle   int
	// Connection lifetime knobs, in minutes; zero leaves driver defaults.
	DBConnLifetime int
	DBConnIdleTime int

	// Upstream completion provider.
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIOrg       string
	CompletionModel string

	AuthSecret string
	SessionTTL time.Duration

	// InvokeTimeout bounds the external agent call per invocation.
	InvokeTimeout time.Duration

	// CatalogPath is the YAML seed file consumed by `agentmart seed`.
	CatalogPath string

	// Base log file; used when the specific files are unset.
	LogFile       string
	LogFileCLI    string
	LogFileDaemon string
	LogLevel      string
}

// LoadMarketConfig reads the current environment and loads the appropriate
// marketplace config file, applying AGENTMART_* environment overrides.
func LoadMarketConfig(root string) (MarketConfig, error) {
	if root == "" {
		root = "."
	}
	// Optional .env; missing files are fine.
	_ = godotenv.Load(filepath.Join(root, ".env"))

	s, err := loadSettings(root)
	if err != nil {
		return MarketConfig{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return MarketConfig{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := MarketConfig{
		Environment:     s.Environment,
		HTTPAddress:     firstNonEmpty(os.Getenv("AGENTMART_HTTP_ADDRESS"), merged["http_address"], ":8080"),
		DatabaseURL:     firstNonEmpty(os.Getenv("AGENTMART_DATABASE_URL"), merged["database_url"], DefaultDatabasePath()),
		DBMaxOpen:       parseOptionalInt(firstNonEmpty(os.Getenv("AGENTMART_DB_MAX_OPEN"), merged["db_max_open"]), 0),
		DBMaxIdle:       parseOptionalInt(firstNonEmpty(os.Getenv("AGENTMART_DB_MAX_IDLE"), merged["db_max_idle"]), 0),
		DBConnLifetime:  parseOptionalInt(firstNonEmpty(os.Getenv("AGENTMART_DB_CONN_LIFETIME"), merged["db_conn_lifetime"]), 0),
		DBConnIdleTime:  parseOptionalInt(firstNonEmpty(os.Getenv("AGENTMART_DB_CONN_IDLE_TIME"), merged["db_conn_idle_time"]), 0),
		OpenAIAPIKey:    firstNonEmpty(os.Getenv("AGENTMART_OPENAI_API_KEY"), os.Getenv("OPENAI_API_KEY"), merged["openai_api_key"]),
		OpenAIBaseURL:   firstNonEmpty(os.Getenv("AGENTMART_OPENAI_BASE_URL"), merged["openai_base_url"]),
		OpenAIOrg:       firstNonEmpty(os.Getenv("AGENTMART_OPENAI_ORG"), merged["openai_org"]),
		CompletionModel: firstNonEmpty(os.Getenv("AGENTMART_COMPLETION_MODEL"), merged["completion_model"]),
		AuthSecret:      firstNonEmpty(os.Getenv("AGENTMART_AUTH_SECRET"), merged["auth_secret"], "agentmart-dev-secret"),
		CatalogPath:     firstNonEmpty(os.Getenv("AGENTMART_CATALOG_PATH"), merged["catalog_path"], filepath.Join(root, "config", "catalog.yaml")),
		LogFile:         firstNonEmpty(os.Getenv("AGENTMART_LOG_FILE"), merged["log_file"]),
		LogLevel:        firstNonEmpty(merged["log_level"], "info"),
	}

	cfg.LogFileCLI = firstNonEmpty(os.Getenv("AGENTMART_LOG_FILE_CLI"), os.Getenv("AGENTMART_LOG_FILE"), merged["log_file_cli"], merged["log_file"])
	cfg.LogFileDaemon = firstNonEmpty(os.Getenv("AGENTMART_LOG_FILE_DAEMON"), os.Getenv("AGENTMART_LOG_FILE"), merged["log_file_daemon"], merged["log_file"])

	cfg.SessionTTL, err = parseOptionalDuration(firstNonEmpty(os.Getenv("AGENTMART_SESSION_TTL"), merged["session_ttl"]), 24*time.Hour)
	if err != nil {
		return MarketConfig{}, fmt.Errorf("invalid session_ttl: %w", err)
	}
	cfg.InvokeTimeout, err = parseOptionalDuration(firstNonEmpty(os.Getenv("AGENTMART_INVOKE_TIMEOUT"), merged["invoke_timeout"]), 2*time.Minute)
	if err != nil {
		return MarketConfig{}, fmt.Errorf("invalid invoke_timeout: %w", err)
	}

	return cfg, nil
}

// UsesPostgres reports whether the configured database is a Postgres DSN.
func (c MarketConfig) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func parseOptionalDuration(v string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	return time.ParseDuration(strings.TrimSpace(v))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DefaultDatabasePath returns the fallback SQLite location under the user's
// home directory.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "marketplace.db"
	}
	return filepath.Join(home, ".agentmart", "marketplace.db")
}
