package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv    = "RESEARCH_RADAR_CONFIG"
	databaseDSNEnv   = "DATABASE_DSN"
	llmAPIKeyEnv     = "LLM_API_KEY"
	llmModelEnv      = "LLM_MODEL"
	searchAPIKeyEnv  = "SEARCH_API_KEY"
	mlAPIKeyEnv      = "ML_API_KEY"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	telegramChatEnv  = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Search        SearchConfig       `yaml:"search"`
	LLM           LLMConfig          `yaml:"llm"`
	ML            MLConfig           `yaml:"ml"`
	Research      ResearchConfig     `yaml:"research"`
	Extractor     ExtractorConfig    `yaml:"extractor"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines the controller tick behaviour.
type SchedulerConfig struct {
	Enabled          bool `yaml:"enabled"`
	TickSeconds      int  `yaml:"tickSeconds"`
	LookAheadMinutes int  `yaml:"lookAheadMinutes"`
	RunOnStartup     bool `yaml:"runOnStartup"`
}

// TickInterval resolves the tick duration, defaulting to one minute.
func (s SchedulerConfig) TickInterval() time.Duration {
	if s.TickSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(s.TickSeconds) * time.Second
}

// LookAhead resolves the pre-run window, defaulting to 15 minutes.
func (s SchedulerConfig) LookAhead() time.Duration {
	if s.LookAheadMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.LookAheadMinutes) * time.Minute
}

// SearchConfig defines how to contact the web-search provider.
type SearchConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"apiKey"`
	MinIntervalMS int    `yaml:"minIntervalMs"`
	MaxAttempts   int    `yaml:"maxAttempts"`
}

// MinInterval resolves the minimum gap between search calls.
func (s SearchConfig) MinInterval() time.Duration {
	if s.MinIntervalMS <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(s.MinIntervalMS) * time.Millisecond
}

// LLMConfig defines how to contact the chat-completion API.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// MLConfig describes the optional embeddings inference service. An
// empty InferenceURL disables topic clustering.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// ResearchConfig bounds a single research run.
type ResearchConfig struct {
	MaxIterations       int     `yaml:"maxIterations"`
	CandidateCap        int     `yaml:"candidateCap"`
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
}

// ExtractorConfig tunes page fetching.
type ExtractorConfig struct {
	TimeoutSeconds int `yaml:"timeoutSeconds"`
	Concurrency    int `yaml:"concurrency"`
	SnippetWords   int `yaml:"snippetWords"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Validate reports every missing required setting at once so a failed
// startup is actionable from a single log line.
func (c Config) Validate() error {
	var missing []string

	if c.Database.DSN == "" {
		missing = append(missing, "database.dsn")
	}
	if c.Search.Endpoint == "" {
		missing = append(missing, "search.endpoint")
	}
	if c.Search.APIKey == "" {
		missing = append(missing, "search.apiKey")
	}
	if c.LLM.Endpoint == "" {
		missing = append(missing, "llm.endpoint")
	}
	if c.LLM.APIKey == "" {
		missing = append(missing, "llm.apiKey")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv(searchAPIKeyEnv); v != "" {
		c.Search.APIKey = v
	}
	if v := os.Getenv(mlAPIKeyEnv); v != "" {
		c.ML.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	base.Scheduler.Enabled = base.Scheduler.Enabled || override.Scheduler.Enabled
	base.Scheduler.RunOnStartup = base.Scheduler.RunOnStartup || override.Scheduler.RunOnStartup
	if override.Scheduler.TickSeconds > 0 {
		base.Scheduler.TickSeconds = override.Scheduler.TickSeconds
	}
	if override.Scheduler.LookAheadMinutes > 0 {
		base.Scheduler.LookAheadMinutes = override.Scheduler.LookAheadMinutes
	}

	if override.Search.Endpoint != "" {
		base.Search.Endpoint = override.Search.Endpoint
	}
	if override.Search.APIKey != "" {
		base.Search.APIKey = override.Search.APIKey
	}
	if override.Search.MinIntervalMS > 0 {
		base.Search.MinIntervalMS = override.Search.MinIntervalMS
	}
	if override.Search.MaxAttempts > 0 {
		base.Search.MaxAttempts = override.Search.MaxAttempts
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}

	if override.ML.InferenceURL != "" {
		base.ML.InferenceURL = override.ML.InferenceURL
	}
	if override.ML.APIKey != "" {
		base.ML.APIKey = override.ML.APIKey
	}

	if override.Research.MaxIterations > 0 {
		base.Research.MaxIterations = override.Research.MaxIterations
	}
	if override.Research.CandidateCap > 0 {
		base.Research.CandidateCap = override.Research.CandidateCap
	}
	if override.Research.SimilarityThreshold > 0 {
		base.Research.SimilarityThreshold = override.Research.SimilarityThreshold
	}

	if override.Extractor.TimeoutSeconds > 0 {
		base.Extractor.TimeoutSeconds = override.Extractor.TimeoutSeconds
	}
	if override.Extractor.Concurrency > 0 {
		base.Extractor.Concurrency = override.Extractor.Concurrency
	}
	if override.Extractor.SnippetWords > 0 {
		base.Extractor.SnippetWords = override.Extractor.SnippetWords
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{DSN: ""},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			TickSeconds:      60,
			LookAheadMinutes: 15,
			RunOnStartup:     false,
		},
		Search: SearchConfig{
			Endpoint:      "https://api.search.brave.com/res/v1/web/search",
			APIKey:        "",
			MinIntervalMS: 1500,
			MaxAttempts:   3,
		},
		LLM: LLMConfig{
			Endpoint: "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
			APIKey:   "",
		},
		ML: MLConfig{InferenceURL: "", APIKey: ""},
		Research: ResearchConfig{
			MaxIterations:       3,
			CandidateCap:        25,
			SimilarityThreshold: 0.85,
		},
		Extractor: ExtractorConfig{
			TimeoutSeconds: 10,
			Concurrency:    3,
			SnippetWords:   300,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
