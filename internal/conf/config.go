// Package conf handles loading and access of chronostore settings.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Settings holds the full configuration for a chronostore node.
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name   string    // name of this chronostore node, recorded in logs
		Schema string    // path to the collection schema file
		Log    LogConfig // logging configuration
	}

	Store struct {
		SQLite struct {
			Enabled bool   // true to store records in SQLite
			Path    string // path to the SQLite database file
		}

		MySQL struct {
			Enabled  bool   // true to store records in MySQL
			Username string // username for the MySQL database
			Password string // password for the MySQL database
			Database string // database name for the MySQL database
			Host     string // host for the MySQL database
			Port     string // port for the MySQL database
		}

		Badger struct {
			Enabled  bool   // true to store records in Badger (document store)
			Path     string // directory holding the Badger value log and LSM tree
			InMemory bool   // true to keep the whole store in memory (tests)
		}
	}
}

// LogConfig defines the configuration for a log file.
type LogConfig struct {
	Enabled     bool         // true to enable this log
	Path        string       // path to the log file
	Rotation    RotationType // type of log rotation
	MaxSize     int64        // max size in bytes for RotationSize
	RotationDay string       // day of the week for RotationWeekly ("Sunday", "Monday", ...)
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with defaults, config file discovery and env binding.
func initViper() error {
	viper.SetConfigName("chronostore")
	viper.SetConfigType("yaml")

	configPaths := configDirs()
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("CHRONOSTORE")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config file is fine, defaults and env vars apply.
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// configDirs returns the directories searched for a config file, most specific first.
func configDirs() []string {
	dirs := []string{"."}
	if configDir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(configDir, "chronostore"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(homeDir, ".config", "chronostore"))
	}
	return dirs
}

// ValidateSettings checks that the loaded settings are coherent.
func ValidateSettings(settings *Settings) error {
	enabled := 0
	if settings.Store.SQLite.Enabled {
		enabled++
		if settings.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path must be set when SQLite output is enabled")
		}
	}
	if settings.Store.MySQL.Enabled {
		enabled++
		if settings.Store.MySQL.Database == "" || settings.Store.MySQL.Host == "" {
			return fmt.Errorf("store.mysql.database and store.mysql.host must be set when MySQL output is enabled")
		}
	}
	if settings.Store.Badger.Enabled {
		enabled++
		if settings.Store.Badger.Path == "" && !settings.Store.Badger.InMemory {
			return fmt.Errorf("store.badger.path must be set when Badger output is enabled and not in memory")
		}
	}
	if enabled == 0 {
		return fmt.Errorf("no storage backend enabled, enable one of store.sqlite, store.mysql or store.badger")
	}
	if enabled > 1 {
		return fmt.Errorf("multiple storage backends enabled, enable exactly one")
	}
	return nil
}

// Setting returns the current settings instance, initializing it if necessary.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// GetSettings returns the current settings instance.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetSettings replaces the current settings instance. Intended for tests.
func SetSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}
