package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const appDir = "ratupdater"

func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join("."+appDir, "config.toml")
	}
	return filepath.Join(dir, appDir, "config.toml")
}

func cacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "." + appDir
	}
	return filepath.Join(dir, appDir)
}

func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}

// ResolveLogFile returns the configured log destination, defaulting to the
// user cache directory. "-" is passed through untouched.
func ResolveLogFile(cfg Config) (string, error) {
	switch cfg.Logging.File {
	case "":
		return filepath.Join(cacheDir(), "updater.log"), nil
	case "-":
		return "-", nil
	}
	expanded, err := ExpandPath(cfg.Logging.File)
	if err != nil {
		return "", err
	}
	return filepath.Clean(expanded), nil
}

func ResolveAuditPath(cfg Config) (string, error) {
	if cfg.Audit.Path == "" {
		return filepath.Join(cacheDir(), "audit.log"), nil
	}
	expanded, err := ExpandPath(cfg.Audit.Path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(expanded), nil
}

// Timeouts parses the API connect and read timeouts.
func (a APIConfig) Timeouts() (connect, read time.Duration, err error) {
	connect, err = time.ParseDuration(a.ConnectTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("DOC_CONFIG_API: connect_timeout: %w", err)
	}
	read, err = time.ParseDuration(a.ReadTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("DOC_CONFIG_API: read_timeout: %w", err)
	}
	return connect, read, nil
}
