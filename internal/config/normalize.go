package config

import (
	"path"
	"strings"
)

func Normalize(cfg Config) Config {
	if cfg.Version == 0 {
		cfg.Version = SchemaVersion
	}
	l := &cfg.Layout
	if l.BackupDir == "" {
		l.BackupDir = DefaultBackupDir
	}
	if l.QuarantineDir == "" {
		l.QuarantineDir = DefaultQuarantineDir
	}
	if l.ManifestFile == "" {
		l.ManifestFile = DefaultManifestFile
	}
	if l.Executable == "" {
		l.Executable = DefaultExecutable
	}
	keep := make([]string, 0, len(l.Keep))
	seen := map[string]struct{}{}
	for _, k := range l.Keep {
		k = normalizeRel(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keep = append(keep, k)
	}
	l.Keep = keep

	a := &cfg.API
	if len(a.Endpoints) == 0 {
		a.Endpoints = DefaultEndpoints()
	}
	if a.Resource == "" {
		a.Resource = DefaultResource
	}
	if a.ConnectTimeout == "" {
		a.ConnectTimeout = DefaultConnectTimeout
	}
	if a.ReadTimeout == "" {
		a.ReadTimeout = DefaultReadTimeout
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	return cfg
}

func normalizeRel(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if p == "" {
		return ""
	}
	return path.Clean(p)
}
