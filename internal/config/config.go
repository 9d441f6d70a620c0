// Package config loads the assistant's configuration file and applies
// per-key defaults so a partial or missing file still yields a usable
// configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"aida/common/environment"
)

// Config holds all tunable settings. Zero values are never used directly;
// Load fills every field from the file or from the documented default.
type Config struct {
	// Confidence threshold below which a top candidate is not executed.
	ConfidenceThreshold float64
	// Maximum number of suggestions offered on rejection.
	MaxSuggestions int
	// Size bound of the in-memory conversation window.
	MaxContextTurns int
	// Idle time after which a session is discarded wholesale.
	SessionTimeout time.Duration
	// Hard deadline for a single capability invocation.
	ExecutionTimeout time.Duration
	// Whether keyword-only classification is allowed when the embedding
	// backend is unavailable.
	EnableFallback bool
	// Whether conversation history is persisted between runs.
	SaveHistory bool
	// Path of the persisted history file.
	HistoryFile string
	// Path of the SQLite conversation log.
	DatabasePath string
	// Catalog file overriding the built-in capability catalog. Empty
	// means builtin.
	CatalogFile string

	// Gateway selects the invocation backend: "exec" or "docker".
	Gateway string
	// GatewayDriver is the plugin binary for the exec gateway, or the
	// runner image for the docker gateway.
	GatewayDriver string

	// Embedding backend settings. An empty API key leaves the embedder
	// disabled so classification starts in keyword mode.
	EmbeddingAPIKey  string
	EmbeddingBaseURL string
	EmbeddingModel   string

	LogLevel  string
	LogFormat string
}

// fileKeys mirrors the on-disk JSON document. Every field is a pointer so
// presence can be distinguished from the zero value; absent keys fall back
// to defaults and unrecognized keys are ignored.
type fileKeys struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	MaxSuggestions      *int     `json:"max_suggestions"`
	MaxContextTurns     *int     `json:"max_context_turns"`
	SessionTimeoutMin   *int     `json:"session_timeout_minutes"`
	ExecutionTimeoutSec *int     `json:"execution_timeout"`
	EnableFallback      *bool    `json:"enable_fallback"`
	SaveHistory         *bool    `json:"save_history"`
	HistoryFile         *string  `json:"history_file"`
	DatabasePath        *string  `json:"database_path"`
	CatalogFile         *string  `json:"catalog_file"`
	Gateway             *string  `json:"gateway"`
	GatewayDriver       *string  `json:"gateway_driver"`
	EmbeddingAPIKey     *string  `json:"embedding_api_key"`
	EmbeddingBaseURL    *string  `json:"embedding_base_url"`
	EmbeddingModel      *string  `json:"embedding_model"`
	LogLevel            *string  `json:"log_level"`
	LogFormat           *string  `json:"log_format"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		ConfidenceThreshold: 0.6,
		MaxSuggestions:      3,
		MaxContextTurns:     10,
		SessionTimeout:      30 * time.Minute,
		ExecutionTimeout:    30 * time.Second,
		EnableFallback:      true,
		SaveHistory:         true,
		HistoryFile:         defaultPath("history.json"),
		DatabasePath:        defaultPath("aida.db"),
		Gateway:             "exec",
		GatewayDriver:       "aida-plugin",
		EmbeddingBaseURL:    "https://api.openai.com/v1",
		EmbeddingModel:      "text-embedding-3-small",
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// defaultPath resolves a file name under ~/.aida, falling back to the
// current directory when the home directory cannot be determined.
func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".aida", name)
}

// Load reads the configuration file at path. A missing file yields the
// defaults without error; a present but malformed file is an error. Each
// recognized key overrides its default independently, and a small set of
// environment variables override the file in turn (the embedding API key in
// particular is usually supplied through the environment, not the file).
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err == nil {
		cfg, err = parse(cfg, data, path)
		if err != nil {
			return Config{}, err
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return applyEnv(cfg), nil
}

// applyEnv layers AIDA_* environment variables over the file values.
func applyEnv(cfg Config) Config {
	cfg.EmbeddingAPIKey = environment.StringOr("AIDA_EMBEDDING_API_KEY", cfg.EmbeddingAPIKey)
	cfg.EmbeddingBaseURL = environment.StringOr("AIDA_EMBEDDING_BASE_URL", cfg.EmbeddingBaseURL)
	cfg.EmbeddingModel = environment.StringOr("AIDA_EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.GatewayDriver = environment.StringOr("AIDA_GATEWAY_DRIVER", cfg.GatewayDriver)
	cfg.LogLevel = environment.StringOr("AIDA_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = environment.StringOr("AIDA_LOG_FORMAT", cfg.LogFormat)
	return cfg
}

// parse applies recognized keys from data onto cfg. Invalid values do not
// fail the load: the key keeps its default and a warning is logged, so one
// bad entry cannot take every other setting down with it.
func parse(cfg Config, data []byte, path string) (Config, error) {
	var keys fileKeys
	if err := json.Unmarshal(data, &keys); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if keys.ConfidenceThreshold != nil {
		if v := *keys.ConfidenceThreshold; v >= 0 && v <= 1 {
			cfg.ConfidenceThreshold = v
		} else {
			warnInvalid(path, "confidence_threshold", v)
		}
	}
	if keys.MaxSuggestions != nil {
		if v := *keys.MaxSuggestions; v >= 1 {
			cfg.MaxSuggestions = v
		} else {
			warnInvalid(path, "max_suggestions", v)
		}
	}
	if keys.MaxContextTurns != nil {
		if v := *keys.MaxContextTurns; v >= 1 {
			cfg.MaxContextTurns = v
		} else {
			warnInvalid(path, "max_context_turns", v)
		}
	}
	if keys.SessionTimeoutMin != nil {
		if v := *keys.SessionTimeoutMin; v >= 1 {
			cfg.SessionTimeout = time.Duration(v) * time.Minute
		} else {
			warnInvalid(path, "session_timeout_minutes", v)
		}
	}
	if keys.ExecutionTimeoutSec != nil {
		if v := *keys.ExecutionTimeoutSec; v >= 1 {
			cfg.ExecutionTimeout = time.Duration(v) * time.Second
		} else {
			warnInvalid(path, "execution_timeout", v)
		}
	}
	if keys.EnableFallback != nil {
		cfg.EnableFallback = *keys.EnableFallback
	}
	if keys.SaveHistory != nil {
		cfg.SaveHistory = *keys.SaveHistory
	}
	if keys.HistoryFile != nil {
		cfg.HistoryFile = *keys.HistoryFile
	}
	if keys.DatabasePath != nil {
		cfg.DatabasePath = *keys.DatabasePath
	}
	if keys.CatalogFile != nil {
		cfg.CatalogFile = *keys.CatalogFile
	}
	if keys.Gateway != nil {
		switch v := *keys.Gateway; v {
		case "exec", "docker":
			cfg.Gateway = v
		default:
			warnInvalid(path, "gateway", v)
		}
	}
	if keys.GatewayDriver != nil {
		cfg.GatewayDriver = *keys.GatewayDriver
	}
	if keys.EmbeddingAPIKey != nil {
		cfg.EmbeddingAPIKey = *keys.EmbeddingAPIKey
	}
	if keys.EmbeddingBaseURL != nil {
		cfg.EmbeddingBaseURL = *keys.EmbeddingBaseURL
	}
	if keys.EmbeddingModel != nil {
		cfg.EmbeddingModel = *keys.EmbeddingModel
	}
	if keys.LogLevel != nil {
		cfg.LogLevel = *keys.LogLevel
	}
	if keys.LogFormat != nil {
		cfg.LogFormat = *keys.LogFormat
	}
	return cfg, nil
}

func warnInvalid(path, key string, value any) {
	slog.Warn("config: invalid value, keeping default",
		"file", path,
		"key", key,
		"value", value,
	)
}
