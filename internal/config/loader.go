package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Environment variables that override file values.
const (
	EnvDiscordToken   = "COURIER_DISCORD_TOKEN"
	EnvDiscordChannel = "COURIER_DISCORD_CHANNEL"
	EnvAMQPURL        = "COURIER_AMQP_URL"
	EnvAMQPExchange   = "COURIER_AMQP_EXCHANGE"
	EnvLogLevel       = "COURIER_LOG_LEVEL"
)

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(homeDir(), ".courier", "config.json")
}

// DataDir returns the courier data directory, creating it if needed.
func DataDir() string {
	dir := filepath.Join(homeDir(), ".courier")
	os.MkdirAll(dir, 0o755)
	return dir
}

// LogPath returns the file the TUI writes logs to.
func LogPath() string {
	return filepath.Join(DataDir(), "courier.log")
}

// Load reads .env from the working directory, then the default config file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Ignoring unreadable .env", "err", err)
	}
	return LoadFrom(ConfigPath())
}

// LoadFrom reads configuration from path, falling back to defaults when
// the file does not exist. Environment overrides are applied last.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return cfg, err
		}
	case os.IsNotExist(err):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	applyEnv(cfg, os.Getenv)
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// decode parses JSON with comments into cfg, warning about unknown keys.
func decode(data []byte, cfg *Config) error {
	data = jsonc.ToJSON(data)

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	for _, key := range CheckUnknownFields(raw) {
		slog.Warn("Unknown config field", "key", key)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("apply config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvDiscordToken); v != "" {
		cfg.Channels.Discord.Token = v
		cfg.Channels.Discord.Enabled = true
	}
	if v := getenv(EnvDiscordChannel); v != "" {
		cfg.Channels.ChatID = v
	}
	if v := getenv(EnvAMQPURL); v != "" {
		cfg.Channels.AMQP.URL = v
		cfg.Channels.AMQP.Enabled = true
	}
	if v := getenv(EnvAMQPExchange); v != "" {
		cfg.Channels.AMQP.Exchange = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

// Save writes configuration to the default path.
func Save(cfg *Config) error {
	return SaveTo(cfg, ConfigPath())
}

// SaveTo writes configuration to path as indented camelCase JSON.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	// The file may hold a bot token.
	return os.WriteFile(path, append(out, '\n'), 0o600)
}

// Upgrade reads the existing config file, deep-merges it on top of
// DefaultConfig (local values win), and saves the result.
// New fields from defaults are added; existing user values are preserved.
func Upgrade() (*Config, error) {
	return UpgradeAt(ConfigPath())
}

// UpgradeAt is Upgrade for an explicit path.
func UpgradeAt(path string) (*Config, error) {
	defaultData, _ := json.Marshal(DefaultConfig())
	var defaultMap map[string]any
	json.Unmarshal(defaultData, &defaultMap)

	localData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var localMap map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(localData), &localMap); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	merged := deepMerge(defaultMap, localMap)

	// Re-serialize through the struct to drop unknown keys.
	cfg := DefaultConfig()
	reData, _ := json.Marshal(merged)
	if err := json.Unmarshal(reData, cfg); err != nil {
		return nil, fmt.Errorf("apply merged config: %w", err)
	}
	cfg.applyDefaults()

	if err := SaveTo(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// deepMerge recursively merges src into dst. Values from src take priority.
// For nested maps, merge recursively. For all other types, src wins.
func deepMerge(dst, src map[string]any) map[string]any {
	result := make(map[string]any, len(dst))
	for k, v := range dst {
		result[k] = v
	}
	for k, srcVal := range src {
		dstVal, exists := result[k]
		if !exists {
			result[k] = srcVal
			continue
		}
		dstMap, dstOK := dstVal.(map[string]any)
		srcMap, srcOK := srcVal.(map[string]any)
		if dstOK && srcOK {
			result[k] = deepMerge(dstMap, srcMap)
		} else {
			result[k] = srcVal
		}
	}
	return result
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return home
}
