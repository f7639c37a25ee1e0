package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/camden-git/familytree/gedcom"
	"github.com/camden-git/familytree/layout"
)

const (
	DefaultExportsSubDir = "exports"
)

const (
	defaultTreeQueueSize        = 100
	defaultNumTreeWorkers       = 2
	defaultLayoutTickMs         = 16
	defaultLayoutBroadcastEvery = 4
	defaultLayoutMaxTicks       = 600
	defaultLayoutDebounceMs     = 250
)

type Config struct {
	// database path
	DatabasePath string `validate:"required"`

	// storage configuration
	StoragePath string `validate:"required"` // root for generated files
	ExportsPath string `validate:"required"` // full-calculated path for GEDCOM exports

	// upload limit for GEDCOM files
	MaxUploadBytes int64 `validate:"gt=0"`

	// worker settings
	TreeQueueSize  int `validate:"gt=0"`
	NumTreeWorkers int `validate:"gt=0"`

	// live layout settings
	LayoutTickInterval    time.Duration     `validate:"gt=0"`
	LayoutBroadcastEvery  int               `validate:"gt=0"`
	LayoutMaxTicks        int               `validate:"gte=0"`
	LayoutRestartDebounce time.Duration     `validate:"gte=0"`
	LayoutParams          map[string]string // force overrides, see layout.ApplyOverrides

	AllowedOrigins []string `validate:"required,min=1,dive,required"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=console json"`

	Port string `validate:"required,numeric"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		zap.S().Warnf("Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "family.db")

	storage := getEnvOrDefault("STORAGE_PATH", filepath.Join(".", "storage"))
	absStorage, err := filepath.Abs(storage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for storage '%s': %w", storage, err)
	}

	exportsSubDir := getEnvOrDefault("EXPORTS_SUBDIR", DefaultExportsSubDir)
	absExportsPath := filepath.Join(absStorage, exportsSubDir)

	maxUpload := gedcom.DefaultMaxUploadBytes
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			zap.S().Warnf("Invalid MAX_UPLOAD_BYTES '%s'. Using default %d. Error: %v", v, maxUpload, err)
		} else {
			maxUpload = parsed
		}
	}

	queueSize := getEnvIntOrDefault("TREE_QUEUE_SIZE", defaultTreeQueueSize)
	numWorkers := getEnvIntOrDefault("NUM_TREE_WORKERS", defaultNumTreeWorkers)

	tickMs := getEnvIntOrDefault("LAYOUT_TICK_MS", defaultLayoutTickMs)
	broadcastEvery := getEnvIntOrDefault("LAYOUT_BROADCAST_EVERY", defaultLayoutBroadcastEvery)
	maxTicks := getEnvIntOrDefault("LAYOUT_MAX_TICKS", defaultLayoutMaxTicks)
	debounceMs := getEnvIntOrDefault("LAYOUT_RESTART_DEBOUNCE_MS", defaultLayoutDebounceMs)

	layoutParams, err := layout.ParseOverrides(os.Getenv("LAYOUT_PARAMS"))
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse LAYOUT_PARAMS: %w", err)
	}
	if _, err := layout.ApplyOverrides(layout.DefaultParams(), layoutParams); err != nil {
		return Config{}, fmt.Errorf("failed to apply LAYOUT_PARAMS: %w", err)
	}

	var origins []string
	for _, o := range strings.Split(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:5173"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	cfg := Config{
		DatabasePath:          dbPath,
		StoragePath:           absStorage,
		ExportsPath:           absExportsPath,
		MaxUploadBytes:        maxUpload,
		TreeQueueSize:         queueSize,
		NumTreeWorkers:        numWorkers,
		LayoutTickInterval:    time.Duration(tickMs) * time.Millisecond,
		LayoutBroadcastEvery:  broadcastEvery,
		LayoutMaxTicks:        maxTicks,
		LayoutRestartDebounce: time.Duration(debounceMs) * time.Millisecond,
		LayoutParams:          layoutParams,
		AllowedOrigins:        origins,
		LogLevel:              strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:             strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
		Port:                  getEnvOrDefault("PORT", "8080"),
	}

	return cfg, nil
}

// Validate checks the loaded values against the struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
