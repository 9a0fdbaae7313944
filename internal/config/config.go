package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig   BasicConfig               `json:"basic_config"`
	Databases     map[string]DatabaseConfig `json:"databases"`
	Redis         RedisConfig               `json:"redis"`
	Providers     map[string]ProviderConfig `json:"providers"`
	Orchestration OrchestrationConfig       `json:"orchestration"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout"` // minutes
	SessionCacheTTL   int    `json:"session_cache_ttl"`   // minutes
}

// OrchestrationConfig carries the product-defined tuning knobs for the
// conversation pipeline. The numbers have no documented rationale, so they
// stay configurable instead of hard-coded.
type OrchestrationConfig struct {
	SummaryTriggerMessages int     `json:"summary_trigger_messages"`
	SummarySourceLimit     int     `json:"summary_source_limit"`
	HistoryWindowDays      int     `json:"history_window_days"`
	ContextMessageLimit    int     `json:"context_message_limit"`
	RecentMessageCount     int     `json:"recent_message_count"`
	Temperature            float64 `json:"temperature"`
	MaxOutputTokens        int     `json:"max_output_tokens"`
}

const (
	DefaultSummaryTriggerMessages = 5
	DefaultSummarySourceLimit     = 100
	DefaultHistoryWindowDays      = 90
	DefaultContextMessageLimit    = 10
	DefaultRecentMessageCount     = 3
	DefaultTemperature            = 0.3
	DefaultMaxOutputTokens        = 2048
)

// Load reads configuration from the provided path (defaults to config.json).
// A .env file, when present, is folded into the environment first so API keys
// can stay out of the config file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	for name, db := range cfg.Databases {
		if name != "mysql" && db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	for name, prov := range cfg.Providers {
		if prov.APIKey == "" {
			prov.APIKey = os.Getenv(providerKeyEnv(name))
			cfg.Providers[name] = prov
		}
	}

	cfg.Orchestration.applyDefaults()
	return &cfg, nil
}

func (o *OrchestrationConfig) applyDefaults() {
	if o.SummaryTriggerMessages <= 0 {
		o.SummaryTriggerMessages = DefaultSummaryTriggerMessages
	}
	if o.SummarySourceLimit <= 0 {
		o.SummarySourceLimit = DefaultSummarySourceLimit
	}
	if o.HistoryWindowDays <= 0 {
		o.HistoryWindowDays = DefaultHistoryWindowDays
	}
	if o.ContextMessageLimit <= 0 {
		o.ContextMessageLimit = DefaultContextMessageLimit
	}
	if o.RecentMessageCount <= 0 {
		o.RecentMessageCount = DefaultRecentMessageCount
	}
	if o.Temperature <= 0 || o.Temperature > 1 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = DefaultMaxOutputTokens
	}
}

func providerKeyEnv(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini":
		return "GOOGLE_API_KEY"
	case "claude":
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}
