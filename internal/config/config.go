// =============================================================================
// Payment Command Converter - Configuration Module
// =============================================================================
//
// This module loads the application configuration. Settings come from three
// layers, later layers winning:
//   1. Built-in defaults (applyMainConfigDefaults)
//   2. The YAML file given with --config (default: config.yaml)
//   3. Environment variables, optionally loaded from a .env file
//
// ENVIRONMENT OVERRIDES:
//   CONVERTER_DATA_DIR      -> data_dir
//   CONVERTER_OUTPUT_DIR    -> output_dir
//   CONVERTER_LOG_LEVEL     -> log_level
//   CONVERTER_LOG_FORMAT    -> log_format
//   CONVERTER_SERVER_ADDR   -> server_addr
//   CONVERTER_CSV_ENCODING  -> csv.encoding
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppDirName is the directory created under the user configuration directory
// when data_dir is not set.
const AppDirName = "conversorexcelxml"

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// DataDir holds the responsible-party registry (config.json) and its
	// backups/ directory.
	// Default: <user config dir>/conversorexcelxml
	DataDir string `yaml:"data_dir"`

	// OutputDir is where generated XML files and diagnostics logs are written.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// InputArchiveDir receives input spreadsheets after a successful
	// conversion when ArchiveOnSuccess is true.
	// Default: "./input_archive"
	InputArchiveDir string `yaml:"input_archive_dir"`

	// ArchiveOnSuccess moves the input file to InputArchiveDir after the XML
	// has been written.
	// Default: false
	ArchiveOnSuccess bool `yaml:"archive_on_success"`

	// ArchiveTimestampSubdirs files archived inputs under YYYY/MM/DD
	// subdirectories of InputArchiveDir.
	// Default: false
	ArchiveTimestampSubdirs bool `yaml:"archive_timestamp_subdirs"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputFileFormat is the name pattern for generated XML files.
	// Placeholders: {folha}, {timestamp}, {date}, {time}, {uuid}, {original}
	// Default: "comandos_pagamento_{folha}_{original}_{timestamp}.xml"
	OutputFileFormat string `yaml:"output_file_format"`

	// =========================================================================
	// INPUT SETTINGS
	// =========================================================================

	// CSV configures the reader used for .csv input.
	CSV CSVSettings `yaml:"csv"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel is one of debug, info, warn, error.
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat is "console" or "json".
	// Default: "console"
	LogFormat string `yaml:"log_format"`

	// =========================================================================
	// SERVER SETTINGS
	// =========================================================================

	// ServerAddr is the listen address of the HTTP front end.
	// Default: ":8080"
	ServerAddr string `yaml:"server_addr"`

	// MaxUploadMB caps the size of uploaded spreadsheets.
	// Default: 16
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// CSVSettings controls how CSV input is read.
type CSVSettings struct {
	// Delimiter is ",", ";", "|", "tab", or "auto"/"" to detect from the header.
	Delimiter string `yaml:"delimiter"`

	// Encoding is "utf-8", "iso-8859-1" or "windows-1252".
	// Default: "utf-8"
	Encoding string `yaml:"encoding"`
}

// =============================================================================
// LOADING
// =============================================================================

// LoadMainConfig reads the YAML configuration, applies environment overrides
// and defaults, and validates the result.
//
// PARAMETERS:
//   - configPath: The path to the YAML file.
//   - required: When false a missing file is not an error and defaults are used.
//
// RETURNS:
//   - The configuration.
//   - An error if the file is unreadable or malformed, or validation fails.
func LoadMainConfig(configPath string, required bool) (*MainConfig, error) {
	var config MainConfig

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
		// Defaults only.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// A missing .env is the normal case.
	_ = godotenv.Load()
	applyEnvOverrides(&config)

	if err := applyMainConfigDefaults(&config); err != nil {
		return nil, err
	}

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied.
func Default() (*MainConfig, error) {
	var config MainConfig
	if err := applyMainConfigDefaults(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnvOverrides copies set environment variables over file values.
func applyEnvOverrides(config *MainConfig) {
	config.DataDir = getString("CONVERTER_DATA_DIR", config.DataDir)
	config.OutputDir = getString("CONVERTER_OUTPUT_DIR", config.OutputDir)
	config.LogLevel = getString("CONVERTER_LOG_LEVEL", config.LogLevel)
	config.LogFormat = getString("CONVERTER_LOG_FORMAT", config.LogFormat)
	config.ServerAddr = getString("CONVERTER_SERVER_ADDR", config.ServerAddr)
	config.CSV.Encoding = getString("CONVERTER_CSV_ENCODING", config.CSV.Encoding)
	config.MaxUploadMB = getInt("CONVERTER_MAX_UPLOAD_MB", config.MaxUploadMB)
}

// applyMainConfigDefaults sets default values for any unset option.
func applyMainConfigDefaults(config *MainConfig) error {
	if config.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve user config directory: %w", err)
		}
		config.DataDir = filepath.Join(base, AppDirName)
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.InputArchiveDir == "" {
		config.InputArchiveDir = "./input_archive"
	}
	if config.OutputFileFormat == "" {
		config.OutputFileFormat = "comandos_pagamento_{folha}_{original}_{timestamp}.xml"
	}
	if config.CSV.Encoding == "" {
		config.CSV.Encoding = "utf-8"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "console"
	}
	if config.ServerAddr == "" {
		config.ServerAddr = ":8080"
	}
	if config.MaxUploadMB == 0 {
		config.MaxUploadMB = 16
	}
	return nil
}

// validateMainConfig rejects values the rest of the application cannot use.
func validateMainConfig(config *MainConfig) error {
	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", config.LogLevel)
	}

	switch strings.ToLower(config.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", config.LogFormat)
	}

	switch strings.ToLower(config.CSV.Encoding) {
	case "utf-8", "utf8", "iso-8859-1", "iso8859-1", "latin1", "latin-1", "windows-1252", "cp1252":
	default:
		return fmt.Errorf("csv.encoding %q is not supported", config.CSV.Encoding)
	}

	if config.MaxUploadMB < 0 {
		return fmt.Errorf("max_upload_mb must be positive, got %d", config.MaxUploadMB)
	}

	return nil
}

// =============================================================================
// ENVIRONMENT HELPERS
// =============================================================================

func getString(key, fallback string) string {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}

	valInt, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return valInt
}
