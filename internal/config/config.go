// Package config provides configuration for the scout binary.
// Loads from: CLI flags > env vars > .scout/config.toml > built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultUserAgent identifies outbound page fetches.
const DefaultUserAgent = "scout/1.0 (+https://github.com/sgx-labs/scout)"

// Fetch pipeline defaults.
const (
	DefaultFetchTimeoutMS = 30000
	DefaultMaxPageSize    = 50000           // characters returned to the caller
	DefaultMaxBodyBytes   = 5 * 1024 * 1024 // bytes read from the wire
)

// FileOverride is set by the global --config flag and wins over every other
// config file location.
var FileOverride string

// Config holds all scout configuration, loaded from TOML + env + flags.
// It is read-only after startup.
type Config struct {
	Fetch     FetchConfig     `toml:"fetch"`
	Search    SearchConfig    `toml:"search"`
	Notes     NotesConfig     `toml:"notes"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
}

// FetchConfig holds page-fetch settings.
type FetchConfig struct {
	UserAgent    string `toml:"user_agent"`
	TimeoutMS    int    `toml:"timeout_ms"`
	MaxPageSize  int    `toml:"max_page_size"`  // characters
	MaxBodyBytes int64  `toml:"max_body_bytes"` // bytes on the wire
}

// Timeout returns the global fetch timeout covering all redirect hops.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutMS) * time.Millisecond
}

// SearchConfig holds web search provider settings.
type SearchConfig struct {
	Provider          string  `toml:"provider"` // "brave", "searxng", "none"
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	MaxResults        int     `toml:"max_results"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// NotesConfig holds note storage settings.
type NotesConfig struct {
	DBPath  string `toml:"db_path"`
	SyncDir string `toml:"sync_dir"`
}

// RateLimitConfig sets per-category call budgets over a sliding window.
// A limit of zero disables limiting for that category.
type RateLimitConfig struct {
	WindowSeconds int `toml:"window_seconds"`
	Search        int `toml:"search"`
	Fetch         int `toml:"fetch"`
	Notes         int `toml:"notes"`
}

// Window returns the sliding window length.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// LogConfig controls logging output. Logs always go to stderr because stdout
// carries the stdio transport.
type LogConfig struct {
	Level      string `toml:"level"`  // debug, info, warn, error
	Format     string `toml:"format"` // console, json
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// ServerConfig holds transport settings.
type ServerConfig struct {
	HTTPAddr string `toml:"http_addr"`
}

// DefaultConfig returns a Config with all built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Fetch: FetchConfig{
			UserAgent:    DefaultUserAgent,
			TimeoutMS:    DefaultFetchTimeoutMS,
			MaxPageSize:  DefaultMaxPageSize,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Search: SearchConfig{
			Provider:          "none",
			MaxResults:        5,
			RequestsPerSecond: 1,
		},
		RateLimit: RateLimitConfig{
			WindowSeconds: 60,
			Search:        30,
			Fetch:         20,
			Notes:         60,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load merges all configuration sources: defaults < TOML file < env vars.
func Load() (*Config, error) {
	return LoadFrom(FindConfigFile())
}

// LoadFrom loads configuration from a specific file path, merging with
// defaults and env vars. An empty or missing path means defaults + env only.
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			meta, err := toml.DecodeFile(configPath, cfg)
			if err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
			warnUnknownKeys(meta, configPath)
		} else if configPath == FileOverride {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SCOUT_USER_AGENT"); v != "" {
		cfg.Fetch.UserAgent = v
	}
	if err := envInt("SCOUT_FETCH_TIMEOUT_MS", &cfg.Fetch.TimeoutMS); err != nil {
		return err
	}
	if err := envInt("SCOUT_MAX_PAGE_SIZE", &cfg.Fetch.MaxPageSize); err != nil {
		return err
	}
	if v := os.Getenv("SCOUT_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SCOUT_MAX_BODY_BYTES: %w", err)
		}
		cfg.Fetch.MaxBodyBytes = n
	}

	if v := os.Getenv("SCOUT_SEARCH_PROVIDER"); v != "" {
		cfg.Search.Provider = v
	}
	if v := os.Getenv("SCOUT_SEARCH_API_KEY"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := os.Getenv("SCOUT_SEARCH_BASE_URL"); v != "" {
		cfg.Search.BaseURL = v
	}
	// Convenience fallback for the Brave adapter.
	if cfg.Search.APIKey == "" && strings.EqualFold(cfg.Search.Provider, "brave") {
		if v := os.Getenv("BRAVE_API_KEY"); v != "" {
			cfg.Search.APIKey = v
		}
	}

	if v := os.Getenv("SCOUT_DB_PATH"); v != "" {
		cfg.Notes.DBPath = v
	}
	if v := os.Getenv("SCOUT_SYNC_DIR"); v != "" {
		cfg.Notes.SyncDir = v
	}

	if v := os.Getenv("SCOUT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SCOUT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SCOUT_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("SCOUT_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Fetch.TimeoutMS <= 0 {
		return fmt.Errorf("fetch.timeout_ms must be positive, got %d", c.Fetch.TimeoutMS)
	}
	if c.Fetch.MaxPageSize <= 0 {
		return fmt.Errorf("fetch.max_page_size must be positive, got %d", c.Fetch.MaxPageSize)
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be positive, got %d", c.Fetch.MaxBodyBytes)
	}

	c.Search.Provider = strings.ToLower(strings.TrimSpace(c.Search.Provider))
	switch c.Search.Provider {
	case "", "none":
		c.Search.Provider = "none"
	case "brave":
		if c.Search.APIKey == "" {
			return fmt.Errorf("search provider brave requires an API key (set SCOUT_SEARCH_API_KEY or search.api_key)")
		}
	case "searxng":
		if c.Search.BaseURL == "" {
			return fmt.Errorf("search provider searxng requires search.base_url")
		}
	default:
		return fmt.Errorf("unknown search provider %q (want brave, searxng or none)", c.Search.Provider)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must not be negative, got %d", c.Search.MaxResults)
	}
	if c.Search.RequestsPerSecond < 0 {
		return fmt.Errorf("search.requests_per_second must not be negative, got %v", c.Search.RequestsPerSecond)
	}

	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.window_seconds must be positive, got %d", c.RateLimit.WindowSeconds)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q (want console or json)", c.Log.Format)
	}
	return nil
}

// FindConfigFile returns the path to the active config file, or empty string
// if none is found. Order: --config, $SCOUT_CONFIG, ./.scout/config.toml,
// ~/.config/scout/config.toml.
func FindConfigFile() string {
	if FileOverride != "" {
		return FileOverride
	}
	if v := os.Getenv("SCOUT_CONFIG"); v != "" {
		return v
	}
	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, ".scout", "config.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "scout", "config.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// DefaultConfigPath is where `scout config init` writes when no path is given.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".scout", "config.toml")
	}
	return filepath.Join(home, ".config", "scout", "config.toml")
}

// DataDir returns the directory holding the notes database.
// SECURITY: SCOUT_DATA_DIR must be an existing or creatable writable directory.
func DataDir() string {
	if v := os.Getenv("SCOUT_DATA_DIR"); v != "" {
		return validateDataDir(v)
	}
	return defaultDataDir()
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".scout", "data")
	}
	return filepath.Join(home, ".scout", "data")
}

func validateDataDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scout: WARNING: SCOUT_DATA_DIR=%q is not a valid path, using default.\n", dir)
		return defaultDataDir()
	}

	info, err := os.Stat(abs)
	if err == nil {
		if !info.IsDir() {
			fmt.Fprintf(os.Stderr, "scout: WARNING: SCOUT_DATA_DIR=%q is not a directory, using default.\n", abs)
			return defaultDataDir()
		}
		testFile := filepath.Join(abs, ".scout_write_test")
		f, err := os.Create(testFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scout: WARNING: SCOUT_DATA_DIR=%q is not writable, using default.\n", abs)
			return defaultDataDir()
		}
		f.Close()
		os.Remove(testFile)
		return abs
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "scout: WARNING: SCOUT_DATA_DIR=%q cannot be created (%v), using default.\n", abs, err)
		return defaultDataDir()
	}
	return abs
}

// DBPath returns the notes database path for cfg.
func (c *Config) DBPath() string {
	if c.Notes.DBPath != "" {
		return c.Notes.DBPath
	}
	return filepath.Join(DataDir(), "notes.db")
}

// Generate writes a default config.toml with comments to path.
func Generate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(generateTOMLContent()), 0o600)
}

func generateTOMLContent() string {
	var b strings.Builder
	b.WriteString("# scout configuration\n")
	b.WriteString("#\n")
	b.WriteString("# Priority: CLI flags > environment variables > this file > built-in defaults\n")
	b.WriteString("# Environment variables: SCOUT_USER_AGENT, SCOUT_FETCH_TIMEOUT_MS,\n")
	b.WriteString("#   SCOUT_MAX_PAGE_SIZE, SCOUT_MAX_BODY_BYTES, SCOUT_SEARCH_PROVIDER,\n")
	b.WriteString("#   SCOUT_SEARCH_API_KEY, SCOUT_SEARCH_BASE_URL, SCOUT_DB_PATH, SCOUT_SYNC_DIR,\n")
	b.WriteString("#   SCOUT_LOG_LEVEL, SCOUT_LOG_FORMAT, SCOUT_LOG_FILE, SCOUT_HTTP_ADDR, SCOUT_DATA_DIR\n\n")

	b.WriteString("[fetch]\n")
	b.WriteString(fmt.Sprintf("user_agent = %q\n", DefaultUserAgent))
	b.WriteString(fmt.Sprintf("timeout_ms = %d      # covers every redirect hop\n", DefaultFetchTimeoutMS))
	b.WriteString(fmt.Sprintf("max_page_size = %d   # characters returned to the agent\n", DefaultMaxPageSize))
	b.WriteString(fmt.Sprintf("max_body_bytes = %d # hard cap on bytes read from the wire\n\n", DefaultMaxBodyBytes))

	b.WriteString("[search]\n")
	b.WriteString("# Provider: \"brave\", \"searxng\" or \"none\"\n")
	b.WriteString("provider = \"none\"\n")
	b.WriteString("# api_key = \"\"                 # brave; or set SCOUT_SEARCH_API_KEY / BRAVE_API_KEY\n")
	b.WriteString("# base_url = \"https://searx.example.org\"  # searxng\n")
	b.WriteString("max_results = 5\n")
	b.WriteString("requests_per_second = 1.0\n\n")

	b.WriteString("[notes]\n")
	b.WriteString("# db_path = \"\"                 # default ~/.scout/data/notes.db\n")
	b.WriteString("# sync_dir = \"/path/to/markdown\"  # used by `scout notes import` and `scout notes watch`\n\n")

	b.WriteString("[rate_limit]\n")
	b.WriteString("window_seconds = 60\n")
	b.WriteString("search = 30\n")
	b.WriteString("fetch = 20\n")
	b.WriteString("notes = 60\n\n")

	b.WriteString("[log]\n")
	b.WriteString("level = \"info\"      # debug, info, warn, error\n")
	b.WriteString("format = \"console\"  # console, json\n")
	b.WriteString("# file = \"\"         # optional rotated log file\n")
	b.WriteString("max_size_mb = 10\n")
	b.WriteString("max_backups = 3\n\n")

	b.WriteString("[server]\n")
	b.WriteString("# http_addr = \"127.0.0.1:7411\"  # used by `scout mcp --http`\n")
	return b.String()
}

// Show returns the effective configuration as TOML with secrets masked.
func Show(cfg *Config) string {
	masked := *cfg
	if masked.Search.APIKey != "" {
		masked.Search.APIKey = "********"
	}
	var b strings.Builder
	b.WriteString("# Effective scout configuration (merged from all sources)\n\n")
	if err := toml.NewEncoder(&b).Encode(masked); err != nil {
		return fmt.Sprintf("# Error encoding config: %v\n", err)
	}
	return b.String()
}

// configSuggestions maps common wrong keys to the correct TOML key name.
var configSuggestions = map[string]string{
	"timeout":          "timeout_ms",
	"timeout_seconds":  "timeout_ms",
	"useragent":        "user_agent",
	"user-agent":       "user_agent",
	"max_chars":        "max_page_size",
	"max_size":         "max_page_size",
	"max_bytes":        "max_body_bytes",
	"apikey":           "api_key",
	"api-key":          "api_key",
	"baseurl":          "base_url",
	"base-url":         "base_url",
	"engine":           "provider",
	"count":            "max_results",
	"rps":              "requests_per_second",
	"window":           "window_seconds",
	"database":         "db_path",
	"db":               "db_path",
	"dir":              "sync_dir",
	"addr":             "http_addr",
	"listen":           "http_addr",
	"log_level":        "level",
	"verbosity":        "level",
	"max_backup_files": "max_backups",
}

// warnUnknownKeys prints warnings for unrecognized config keys.
func warnUnknownKeys(meta toml.MetaData, configPath string) {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return
	}

	fname := filepath.Base(configPath)
	for _, key := range undecoded {
		keyStr := key.String()
		lastPart := key[len(key)-1]

		if suggestion, ok := configSuggestions[lastPart]; ok {
			fmt.Fprintf(os.Stderr, "scout: WARNING: unknown key %q in %s, did you mean %q?\n",
				keyStr, fname, suggestion)
		} else {
			fmt.Fprintf(os.Stderr, "scout: WARNING: unknown key %q in %s (will be ignored)\n",
				keyStr, fname)
		}
	}
}
