package config

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

func Validate(cfg Config) error {
	if cfg.Version != SchemaVersion {
		return fmt.Errorf("DOC_CONFIG_VERSION: unsupported version %d", cfg.Version)
	}
	l := cfg.Layout
	names := map[string]string{}
	for field, v := range map[string]string{
		"backup_dir":     l.BackupDir,
		"quarantine_dir": l.QuarantineDir,
		"manifest_file":  l.ManifestFile,
		"executable":     l.Executable,
	} {
		if err := validSegment(v); err != nil {
			return fmt.Errorf("DOC_CONFIG_LAYOUT: %s: %w", field, err)
		}
		if other, ok := names[v]; ok {
			return fmt.Errorf("DOC_CONFIG_LAYOUT: %s and %s both use %q", other, field, v)
		}
		names[v] = field
	}
	for _, k := range l.Keep {
		if k == "" || path.IsAbs(k) || k == "." || k == ".." || strings.HasPrefix(k, "../") {
			return fmt.Errorf("DOC_CONFIG_KEEP: invalid keep path %q", k)
		}
		top := k
		if i := strings.IndexByte(k, '/'); i >= 0 {
			top = k[:i]
		}
		if top == l.BackupDir || top == l.QuarantineDir {
			return fmt.Errorf("DOC_CONFIG_KEEP: keep path %q overlaps a layout directory", k)
		}
	}

	if len(cfg.API.Endpoints) == 0 {
		return fmt.Errorf("DOC_CONFIG_API: at least one endpoint is required")
	}
	for _, e := range cfg.API.Endpoints {
		u, err := url.Parse(e)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("DOC_CONFIG_API: invalid endpoint %q", e)
		}
	}
	if strings.TrimSpace(cfg.API.Resource) == "" {
		return fmt.Errorf("DOC_CONFIG_API: missing resource name")
	}
	for field, v := range map[string]string{"connect_timeout": cfg.API.ConnectTimeout, "read_timeout": cfg.API.ReadTimeout} {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("DOC_CONFIG_API: invalid %s %q", field, v)
		}
	}

	if cfg.Logging.Level == "" || cfg.Logging.Format == "" {
		return fmt.Errorf("DOC_CONFIG_LOGGING: missing logging level/format")
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxBackups < 0 {
		return fmt.Errorf("DOC_CONFIG_LOGGING: rotation limits must not be negative")
	}
	return nil
}

func validSegment(v string) error {
	if v == "" {
		return fmt.Errorf("empty name")
	}
	if v == "." || v == ".." || strings.ContainsAny(v, `/\`) {
		return fmt.Errorf("%q must be a single path segment", v)
	}
	return nil
}
