/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"goslidewriter/internal/domain"
	applog "goslidewriter/internal/log"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	TelemetryURL   string `yaml:"telemetry_url"`
	// ThemesFile is an optional YAML catalog extending the built-in themes.
	ThemesFile string `yaml:"themes_file"`
}

type BackendConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	// The API key is not stored on disk; it lives in the OS keychain.
}

type ModelsConfig struct {
	ImageModel  string `yaml:"image_model"`
	AspectRatio string `yaml:"aspect_ratio"`
	ImageSize   string `yaml:"image_size"`
}

type SchedulerConfig struct {
	MaxConcurrent      int    `yaml:"max_concurrent"`
	SettleDelayMs      int    `yaml:"settle_delay_ms"`
	RequestsPerMinute  int    `yaml:"requests_per_minute"`
	BreakerMaxFailures uint32 `yaml:"breaker_max_failures"`
	BreakerTimeoutMs   int    `yaml:"breaker_timeout_ms"`
}

type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"` // "sqlite" | "postgres"
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	AutosaveDir string `yaml:"autosave_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	General       GeneralConfig   `yaml:"general"`
	Backend       BackendConfig   `yaml:"backend"`
	Models        ModelsConfig    `yaml:"models"`
	Scheduler     SchedulerConfig `yaml:"scheduler"`
	History       HistoryConfig   `yaml:"history"`
	Storage       StorageConfig   `yaml:"storage"`
	Logging       LoggingConfig   `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Backend:       BackendConfig{BaseURL: "http://localhost:8787", TimeoutMs: 120000},
		Models:        ModelsConfig{ImageModel: "gemini-2.5-flash-image", AspectRatio: "16:9"},
		Scheduler: SchedulerConfig{
			MaxConcurrent:      3,
			SettleDelayMs:      1500,
			BreakerMaxFailures: 5,
			BreakerTimeoutMs:   30000,
		},
		History: HistoryConfig{MaxEntries: 50},
		Storage: StorageConfig{Driver: "sqlite"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath        = "GSW_CONFIG"
	EnvBackendURL        = "GSW_BACKEND_URL"
	EnvBackendTimeoutMs  = "GSW_BACKEND_TIMEOUT_MS"
	EnvTelemetryOptIn    = "GSW_TELEMETRY_OPT_IN"
	EnvImageModel        = "GSW_IMAGE_MODEL"
	EnvAspectRatio       = "GSW_ASPECT_RATIO"
	EnvImageSize         = "GSW_IMAGE_SIZE"
	EnvMaxConcurrent     = "GSW_MAX_CONCURRENT"
	EnvRequestsPerMinute = "GSW_REQUESTS_PER_MINUTE"
	EnvStorageDriver     = "GSW_STORAGE_DRIVER"
	EnvSQLitePath        = "GSW_SQLITE_PATH"
	EnvPostgresDSN       = "GSW_PG_DSN"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "GSW_LOG_LEVEL"
	EnvLogFormat = "GSW_LOG_FORMAT"
	EnvLogSource = "GSW_LOG_SOURCE"
	EnvLogFile   = "GSW_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "GoSlideWriter"
	keyringAPIKey  = "backend_api_key"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigDir returns the per-user application directory.
func ConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "GoSlideWriter")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "GoSlideWriter")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "goslidewriter")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path. GSW_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the backend API key from keyring (not kept inside the struct; returned separately).
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		} else {
			applog.WithComponent("config").Warn("ignoring unreadable config file", "path", path, "err", err)
		}
	}
	applyEnvOverrides(&cfg)
	key, _ := tokenStore.Get(keyringService, keyringAPIKey)
	return cfg, key, nil
}

// Save writes the user config YAML and persists the API key into OS keyring (if non-empty).
func Save(cfg AppConfig, apiKey string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if apiKey != "" {
		if err := tokenStore.Set(keyringService, keyringAPIKey, apiKey); err != nil {
			return err
		}
	}
	return nil
}

// ForgetAPIKey removes the stored API key.
func ForgetAPIKey() error {
	err := tokenStore.Delete(keyringService, keyringAPIKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	setStr(&dst.General.TelemetryURL, src.General.TelemetryURL)
	setStr(&dst.General.ThemesFile, src.General.ThemesFile)

	setStr(&dst.Backend.BaseURL, src.Backend.BaseURL)
	setInt(&dst.Backend.TimeoutMs, src.Backend.TimeoutMs)

	setStr(&dst.Models.ImageModel, src.Models.ImageModel)
	setStr(&dst.Models.AspectRatio, src.Models.AspectRatio)
	setStr(&dst.Models.ImageSize, src.Models.ImageSize)

	setInt(&dst.Scheduler.MaxConcurrent, src.Scheduler.MaxConcurrent)
	setInt(&dst.Scheduler.SettleDelayMs, src.Scheduler.SettleDelayMs)
	setInt(&dst.Scheduler.RequestsPerMinute, src.Scheduler.RequestsPerMinute)
	if src.Scheduler.BreakerMaxFailures != 0 {
		dst.Scheduler.BreakerMaxFailures = src.Scheduler.BreakerMaxFailures
	}
	setInt(&dst.Scheduler.BreakerTimeoutMs, src.Scheduler.BreakerTimeoutMs)

	setInt(&dst.History.MaxEntries, src.History.MaxEntries)

	if v := strings.ToLower(strings.TrimSpace(src.Storage.Driver)); v != "" {
		dst.Storage.Driver = v
	}
	setStr(&dst.Storage.SQLitePath, src.Storage.SQLitePath)
	setStr(&dst.Storage.PostgresDSN, src.Storage.PostgresDSN)
	setStr(&dst.Storage.AutosaveDir, src.Storage.AutosaveDir)

	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	setStr(&dst.Logging.File, src.Logging.File)
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func envInt(name string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envStr(name string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	envStr(EnvBackendURL, &cfg.Backend.BaseURL)
	envInt(EnvBackendTimeoutMs, &cfg.Backend.TimeoutMs)
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = envBool(v)
	}
	envStr(EnvImageModel, &cfg.Models.ImageModel)
	envStr(EnvAspectRatio, &cfg.Models.AspectRatio)
	envStr(EnvImageSize, &cfg.Models.ImageSize)
	envInt(EnvMaxConcurrent, &cfg.Scheduler.MaxConcurrent)
	envInt(EnvRequestsPerMinute, &cfg.Scheduler.RequestsPerMinute)
	if v := strings.TrimSpace(os.Getenv(EnvStorageDriver)); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	envStr(EnvSQLitePath, &cfg.Storage.SQLitePath)
	envStr(EnvPostgresDSN, &cfg.Storage.PostgresDSN)
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = envBool(v)
	}
	envStr(EnvLogFile, &cfg.Logging.File)
}

var envKeys = map[string]string{
	"backend.base_url":              EnvBackendURL,
	"backend.timeout_ms":            EnvBackendTimeoutMs,
	"general.telemetry_opt_in":      EnvTelemetryOptIn,
	"models.image_model":            EnvImageModel,
	"models.aspect_ratio":           EnvAspectRatio,
	"models.image_size":             EnvImageSize,
	"scheduler.max_concurrent":      EnvMaxConcurrent,
	"scheduler.requests_per_minute": EnvRequestsPerMinute,
	"storage.driver":                EnvStorageDriver,
	"storage.sqlite_path":           EnvSQLitePath,
	"storage.postgres_dsn":          EnvPostgresDSN,
	"logging.level":                 EnvLogLevel,
	"logging.format":                EnvLogFormat,
	"logging.source":                EnvLogSource,
	"logging.file":                  EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// Timeout returns the backend request timeout.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// SettleDelay returns how long navigation must rest before the background
// sweep starts.
func (s SchedulerConfig) SettleDelay() time.Duration {
	if s.SettleDelayMs <= 0 {
		return time.Duration(Defaults().Scheduler.SettleDelayMs) * time.Millisecond
	}
	return time.Duration(s.SettleDelayMs) * time.Millisecond
}

// BreakerTimeout returns how long an open breaker waits before probing.
func (s SchedulerConfig) BreakerTimeout() time.Duration {
	return time.Duration(s.BreakerTimeoutMs) * time.Millisecond
}

// ModelConfig converts the models section into request parameters.
func (m ModelsConfig) ModelConfig() domain.ModelConfig {
	return domain.ModelConfig{Model: m.ImageModel, AspectRatio: m.AspectRatio, ImageSize: m.ImageSize}
}

// LogOptions converts the logging section for applog.Init.
func (l LoggingConfig) LogOptions() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}

// ResolveSQLitePath returns the configured database path, defaulting to a
// file in the config directory.
func (s StorageConfig) ResolveSQLitePath() (string, error) {
	if s.SQLitePath != "" {
		return s.SQLitePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "decks.sqlite"), nil
}

// ResolveAutosaveDir returns where crash autosaves are written.
func (s StorageConfig) ResolveAutosaveDir() (string, error) {
	if s.AutosaveDir != "" {
		return s.AutosaveDir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "autosave"), nil
}
