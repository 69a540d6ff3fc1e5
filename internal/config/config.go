// Package config loads pipeline settings from .env, an optional YAML file and
// the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no explicit config path is given. Its absence is not an error.
const DefaultFile = "distill.yaml"

// Model holds per-stage completion settings.
type Model struct {
	Name           string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	InputPerMTok   float64 `yaml:"input_price_per_mtok"`
	OutputPerMTok  float64 `yaml:"output_price_per_mtok"`
	BudgetWarn     float64 `yaml:"budget_warn_usd"`
	BudgetStop     float64 `yaml:"budget_stop_usd"`

	// overload (HTTP 529) handling
	RetryAttempts       int `yaml:"retry_attempts"`
	RetryBackoffSeconds int `yaml:"retry_backoff_seconds"`
}

// Timeout returns the per-call timeout.
func (m Model) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// RetryBackoff is the base delay of the linear overload backoff.
func (m Model) RetryBackoff() time.Duration {
	return time.Duration(m.RetryBackoffSeconds) * time.Second
}

type Extract struct {
	Model       `yaml:",inline"`
	ChunkSize   int `yaml:"chunk_messages"`
	ChunkChars  int `yaml:"chunk_chars"`
	MessageMax  int `yaml:"message_max_chars"`
	MessageKeep int `yaml:"message_keep_chars"`
}

type Merge struct {
	Model        `yaml:",inline"`
	BatchSizes   map[string]int `yaml:"batch_sizes"`
	DefaultBatch int            `yaml:"default_batch"`
}

type Graph struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Database string `yaml:"database"`
}

type Notify struct {
	TelegramToken    string `yaml:"-"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
	DiscordToken     string `yaml:"-"`
	DiscordChannelID string `yaml:"discord_channel_id"`
}

// Vocabulary overrides the built-in prompt vocabulary when non-empty.
type Vocabulary struct {
	Themes   []string `yaml:"themes"`
	Projects []string `yaml:"projects"`
	Glossary string   `yaml:"glossary"`
}

type Config struct {
	DataDir     string `yaml:"data_dir"`
	SessionDB   string `yaml:"session_db"`
	AliasesPath string `yaml:"aliases"`
	LogFormat   string `yaml:"log_format"`
	Debug       bool   `yaml:"debug"`

	AnthropicAPIKey  string `yaml:"-"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`

	Extract    Extract    `yaml:"extract"`
	Merge      Merge      `yaml:"merge"`
	Graph      Graph      `yaml:"graph"`
	Notify     Notify     `yaml:"notify"`
	Vocabulary Vocabulary `yaml:"vocabulary"`
}

// Default returns the settings the pipeline was tuned with.
func Default() *Config {
	return &Config{
		DataDir:          ".",
		SessionDB:        "archive.db",
		AliasesPath:      "aliases.json",
		LogFormat:        "console",
		AnthropicBaseURL: "https://api.anthropic.com",
		Extract: Extract{
			Model: Model{
				Name:           "claude-haiku-4-5-20251001",
				MaxTokens:      8000,
				TimeoutSeconds: 180,
				InputPerMTok:   0.80,
				OutputPerMTok:  4.00,
				BudgetWarn:     5,
				BudgetStop:     15,

				RetryAttempts:       3,
				RetryBackoffSeconds: 30,
			},
			ChunkSize:   500,
			ChunkChars:  160_000,
			MessageMax:  2000,
			MessageKeep: 1800,
		},
		Merge: Merge{
			Model: Model{
				Name:           "claude-sonnet-4-6",
				MaxTokens:      16000,
				TimeoutSeconds: 300,
				InputPerMTok:   3.00,
				OutputPerMTok:  15.00,
				BudgetWarn:     3,
				BudgetStop:     8,

				RetryAttempts:       3,
				RetryBackoffSeconds: 30,
			},
			BatchSizes: map[string]int{
				"personen":          50,
				"organisationen":    50,
				"projekte":          50,
				"erkenntnisse":      25,
				"entscheidungen":    30,
				"meilensteine":      30,
				"herausforderungen": 30,
				"spannungen":        30,
				"fragen":            30,
			},
			DefaultBatch: 50,
		},
		Graph: Graph{
			URI:  "bolt://localhost:7687",
			User: "neo4j",
		},
	}
}

// Load builds a Config. An empty path means DefaultFile, which may be absent.
func Load(path string) (*Config, error) {
	// .env is optional, like in every other entry point
	_ = godotenv.Load()

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.DataDir, "DATA_DIR")
	setString(&c.SessionDB, "SESSION_DB")
	setString(&c.AliasesPath, "ALIASES_PATH")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.AnthropicBaseURL, "ANTHROPIC_BASE_URL")
	setString(&c.Graph.URI, "NEO4J_URI")
	setString(&c.Graph.User, "NEO4J_USER")
	setString(&c.Graph.Password, "NEO4J_PASSWORD")
	setString(&c.Graph.Database, "NEO4J_DATABASE")
	setString(&c.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")
	setString(&c.Notify.DiscordToken, "DISCORD_TOKEN")
	setString(&c.Notify.DiscordChannelID, "DISCORD_CHANNEL_ID")
	if v := os.Getenv("DEBUG"); v != "" {
		c.Debug, _ = strconv.ParseBool(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// RequireCompletion checks what the extract and merge stages need.
func (c *Config) RequireCompletion() error {
	if c.AnthropicAPIKey == "" {
		return errors.New("ANTHROPIC_API_KEY not set")
	}
	return nil
}

// RequireGraph checks what the import stage needs.
func (c *Config) RequireGraph() error {
	if c.Graph.URI == "" {
		return errors.New("graph URI not set (NEO4J_URI)")
	}
	if isNeo4jURI(c.Graph.URI) && c.Graph.Password == "" {
		return errors.New("NEO4J_PASSWORD not set")
	}
	return nil
}

func isNeo4jURI(uri string) bool {
	for _, p := range []string{"bolt://", "bolt+s://", "neo4j://", "neo4j+s://", "neo4j+ssc://", "bolt+ssc://"} {
		if len(uri) >= len(p) && uri[:len(p)] == p {
			return true
		}
	}
	return false
}

// BatchSize returns the merge batch size for an entity wire key.
func (m Merge) BatchSize(kind string) int {
	if n, ok := m.BatchSizes[kind]; ok && n > 0 {
		return n
	}
	if m.DefaultBatch > 0 {
		return m.DefaultBatch
	}
	return 50
}


func (c *Config) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

func (c *Config) ExtractionsDir() string { return c.path("extractions_v2") }
func (c *Config) RawDir() string { return c.path("merged_raw") }
func (c *Config) MergedDir() string { return c.path("merged") }
func (c *Config) BackupDir() string { return c.path("backups") }
func (c *Config) ManifestPath() string { return c.path("extraction_manifest.json") }
func (c *Config) ChatPath() string { return c.path("telegram_parsed.json") }
func (c *Config) ReflectionsPath() string { return c.path("stimme_parsed.json") }
func (c *Config) LockPath() string { return c.path(".distill.lock") }
func (c *Config) SessionDBPath() string { return c.path(c.SessionDB) }
func (c *Config) AliasesFile() string { return c.path(c.AliasesPath) }
