package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// Config represents the riskai configuration.
type Config struct {
	Provider      string        `json:"provider"`
	Model         string        `json:"model"`
	AuthURL       string        `json:"authUrl"`
	BaseURL       string        `json:"baseUrl"`
	InsecureTLS   bool          `json:"insecureTls"`
	Port          int           `json:"port"`
	Format        string        `json:"format"`
	LogLevel      string        `json:"logLevel"`
	MaxInputBytes int           `json:"maxInputBytes"`
	ChunkSize     int           `json:"chunkSize"`
	ChunkOverlap  int           `json:"chunkOverlap"`
	Cache         CacheConfig   `json:"cache"`
	Privacy       PrivacyConfig `json:"privacy"`

	// AuthKey is the provider credential. Env-only, never written to the
	// config file.
	AuthKey string `json:"-"`
}

// CacheConfig controls the result store.
type CacheConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir,omitempty"`
	TTLDays int    `json:"ttlDays"`
}

// PrivacyConfig controls secret redaction of inputs before they are
// sent to the provider.
type PrivacyConfig struct {
	RedactSecrets bool `json:"redactSecrets"`
}

// Placeholders substituted for empty analysis fields.
const (
	DefaultStory        = "Implement the functionality described by the requirements."
	DefaultRequirements = "No explicit requirements were provided."
	DefaultCode         = "# no code provided"
	DefaultTestCases    = "# no test cases provided"
)

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:      "gigachat",
		Model:         "GigaChat-2-Pro",
		AuthURL:       "https://ngw.devices.sberbank.ru:9443/api/v2/oauth",
		BaseURL:       "https://gigachat.devices.sberbank.ru/api/v1",
		Port:          8080,
		Format:        "text",
		LogLevel:      "info",
		MaxInputBytes: 500000,
		ChunkSize:     4000,
		ChunkOverlap:  500,
		Cache: CacheConfig{
			Enabled: true,
			TTLDays: 30,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for riskai.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "riskai"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "riskai"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "riskai"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "riskai"), nil
	default:
		return filepath.Join(home, ".config", "riskai"), nil
	}
}

// DefaultCacheDir returns the platform-appropriate cache directory.
func DefaultCacheDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "riskai"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "riskai"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "riskai", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "riskai", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "riskai"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadFile loads config from the config file. Returns zero Config and
// nil error if the file doesn't exist.
func LoadFile() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Save writes the config to the config file. The auth key is never
// persisted.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Load builds the effective config by merging: defaults <- file <- env
// <- overrides. A .env file in the working directory is loaded first,
// matching the original deployment layout; a missing .env is fine.
// The overrides map comes from CLI flags (only non-zero values set).
func Load(overrides map[string]string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	fileCfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	mergeFile(&cfg, fileCfg)
	mergeEnv(&cfg)
	mergeOverrides(&cfg, overrides)

	return cfg, nil
}

func mergeFile(dst *Config, src Config) {
	if src.Provider != "" {
		dst.Provider = src.Provider
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.AuthURL != "" {
		dst.AuthURL = src.AuthURL
	}
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.Port > 0 {
		dst.Port = src.Port
	}
	if src.Format != "" {
		dst.Format = src.Format
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.MaxInputBytes > 0 {
		dst.MaxInputBytes = src.MaxInputBytes
	}
	if src.ChunkSize > 0 {
		dst.ChunkSize = src.ChunkSize
	}
	if src.ChunkOverlap > 0 {
		dst.ChunkOverlap = src.ChunkOverlap
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}
	if src.Cache.TTLDays > 0 {
		dst.Cache.TTLDays = src.Cache.TTLDays
	}
	// Bool fields from file: JSON zero value is indistinguishable from
	// unset in a simple merge, so trust the file value only to enable.
	dst.Cache.Enabled = src.Cache.Enabled || dst.Cache.Enabled
	dst.InsecureTLS = src.InsecureTLS || dst.InsecureTLS
}

func mergeEnv(cfg *Config) {
	// Names used by the original deployment.
	if v := os.Getenv("AUTH_KEY"); v != "" {
		cfg.AuthKey = v
	}
	if v := os.Getenv("AUTH_URL"); v != "" {
		cfg.AuthURL = v
	}
	if v := os.Getenv("GIGA_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// riskai-specific overrides.
	if v := os.Getenv("RISKAI_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("RISKAI_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("RISKAI_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("RISKAI_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("RISKAI_CACHE_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.TTLDays = n
		}
	}
	if v := os.Getenv("RISKAI_NO_CACHE"); v == "1" || v == "true" {
		cfg.Cache.Enabled = false
	}
	if v := os.Getenv("RISKAI_INSECURE_TLS"); v == "1" || v == "true" {
		cfg.InsecureTLS = true
	}
}

func mergeOverrides(cfg *Config, overrides map[string]string) {
	if overrides == nil {
		return
	}
	if v, ok := overrides["provider"]; ok && v != "" {
		cfg.Provider = v
	}
	if v, ok := overrides["model"]; ok && v != "" {
		cfg.Model = v
	}
	if v, ok := overrides["format"]; ok && v != "" {
		cfg.Format = v
	}
	if v, ok := overrides["port"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v, ok := overrides["cacheDir"]; ok && v != "" {
		cfg.Cache.Dir = v
	}
	if v, ok := overrides["noCache"]; ok && v == "true" {
		cfg.Cache.Enabled = false
	}
	if v, ok := overrides["logLevel"]; ok && v != "" {
		cfg.LogLevel = v
	}
}

// SetField sets a single config field by key name. Returns error if key
// is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "provider":
		cfg.Provider = value
	case "model":
		cfg.Model = value
	case "authUrl":
		cfg.AuthURL = value
	case "baseUrl":
		cfg.BaseURL = value
	case "format":
		cfg.Format = value
	case "logLevel":
		cfg.LogLevel = value
	case "port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("port must be an integer: %w", err)
		}
		cfg.Port = n
	case "maxInputBytes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("maxInputBytes must be an integer: %w", err)
		}
		cfg.MaxInputBytes = n
	case "chunkSize":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("chunkSize must be an integer: %w", err)
		}
		cfg.ChunkSize = n
	case "cache.ttlDays":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("cache.ttlDays must be an integer: %w", err)
		}
		cfg.Cache.TTLDays = n
	case "cache.dir":
		cfg.Cache.Dir = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// GetField returns a single config field by the same keys SetField accepts.
func GetField(cfg Config, key string) (string, error) {
	switch key {
	case "provider":
		return cfg.Provider, nil
	case "model":
		return cfg.Model, nil
	case "authUrl":
		return cfg.AuthURL, nil
	case "baseUrl":
		return cfg.BaseURL, nil
	case "format":
		return cfg.Format, nil
	case "logLevel":
		return cfg.LogLevel, nil
	case "port":
		return strconv.Itoa(cfg.Port), nil
	case "maxInputBytes":
		return strconv.Itoa(cfg.MaxInputBytes), nil
	case "chunkSize":
		return strconv.Itoa(cfg.ChunkSize), nil
	case "cache.ttlDays":
		return strconv.Itoa(cfg.Cache.TTLDays), nil
	case "cache.dir":
		return cfg.Cache.Dir, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}
