package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"ratupdater/internal/fsutil"
)

const header = `# ratupdater configuration.
# Entries under [layout] name the files and directories kept inside the
# install directory. Paths in layout.keep are never moved by an update.

`

// Ensure loads the config at path, writing the defaults first when the file
// does not exist yet.
func Ensure(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	cfg = DefaultConfig()
	if err := Save(path, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads, upgrades and validates the config at path. Unknown keys are
// rejected so a misspelt keep list cannot go unnoticed.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("DOC_CONFIG_READ: %s: %w", path, err)
	}
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("DOC_CONFIG_UNKNOWN_KEY: %s: %s", path, strict.String())
		}
		return Config{}, fmt.Errorf("DOC_CONFIG_PARSE: %s: %w", path, err)
	}
	if cfg.Version > SchemaVersion {
		return Config{}, fmt.Errorf("DOC_CONFIG_VERSION: %s: written by a newer ratupdater (version %d)", path, cfg.Version)
	}
	cfg = Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("%w (in %s)", err, path)
	}
	return cfg, nil
}

// Save validates cfg and writes it atomically with a leading comment block.
func Save(path string, cfg Config) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg = Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("DOC_CONFIG_WRITE: %w", err)
	}
	blob, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("DOC_CONFIG_ENCODE: %w", err)
	}
	if err := fsutil.AtomicWrite(path, append([]byte(header), blob...), 0o644); err != nil {
		return fmt.Errorf("DOC_CONFIG_WRITE: %s: %w", path, err)
	}
	return nil
}
