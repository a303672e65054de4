package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ratupdater/internal/config"
	"ratupdater/internal/failure"
	"ratupdater/internal/install"
	"ratupdater/internal/manifest"
)

type Finding struct {
	Code    string `json:"code"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type Report struct {
	Healthy   bool      `json:"healthy"`
	Root      string    `json:"root"`
	Findings  []Finding `json:"findings"`
	Manifest  []string  `json:"manifest,omitempty"`
	Backup    []string  `json:"backup,omitempty"`
	Batches   []string  `json:"quarantineBatches,omitempty"`
	Untracked []string  `json:"untracked,omitempty"`
}

// Service inspects an install root without changing it.
type Service struct {
	ConfigPath string
	Layout     install.Layout
	Executable string
}

func (s *Service) Run() Report {
	r := Report{Root: s.Layout.Root, Findings: []Finding{}}
	add := func(code, level, format string, args ...any) {
		r.Findings = append(r.Findings, Finding{Code: code, Level: level, Message: fmt.Sprintf(format, args...)})
	}

	if s.ConfigPath != "" {
		if _, err := os.Stat(s.ConfigPath); err != nil {
			add("DOC_CONFIG_MISSING", "warn", "%v", err)
		} else if _, err := config.Load(s.ConfigPath); err != nil {
			add("DOC_CONFIG_INVALID", "error", "%v", err)
		}
	}

	info, err := os.Stat(s.Layout.Root)
	switch {
	case err != nil:
		add("DOC_ROOT_MISSING", "error", "%v", err)
		return finish(r)
	case !info.IsDir():
		add("DOC_ROOT_MISSING", "error", "%s is not a directory", s.Layout.Root)
		return finish(r)
	}

	m, err := manifest.Load(s.Layout.Root, s.Layout.ManifestName)
	switch {
	case err != nil && failure.Is(err, failure.ManifestCorrupt):
		add("DOC_MANIFEST_CORRUPT", "error", "%v", err)
	case err != nil:
		add("DOC_MANIFEST_UNREADABLE", "error", "%v", err)
	case !m.Exists():
		add("DOC_MANIFEST_MISSING", "warn", "no %s yet; the next update treats every file as unknown", s.Layout.ManifestName)
	default:
		r.Manifest = m.Paths.Sorted()
		for _, p := range r.Manifest {
			if _, err := os.Lstat(filepath.Join(s.Layout.Root, filepath.FromSlash(p))); err != nil {
				add("DOC_MANIFEST_STALE", "warn", "%s is listed in the manifest but missing", p)
			}
		}
	}

	if s.Executable != "" {
		if _, err := os.Stat(filepath.Join(s.Layout.Root, s.Executable)); err != nil {
			add("DOC_EXECUTABLE_MISSING", "error", "%s not found in %s", s.Executable, s.Layout.Root)
		}
	}

	if entries, err := os.ReadDir(s.Layout.BackupDir()); err == nil {
		for _, e := range entries {
			r.Backup = append(r.Backup, e.Name())
		}
		if len(r.Backup) > 0 {
			add("DOC_BACKUP_PRESENT", "info", "%d entries in %s can be restored with --recover", len(r.Backup), s.Layout.BackupName)
		}
	}

	if batches, err := s.Layout.Batches(); err != nil {
		add("DOC_QUARANTINE_UNREADABLE", "warn", "%v", err)
	} else {
		r.Batches = batches
		if len(batches) > 0 {
			add("DOC_QUARANTINE_PRESENT", "info", "%d quarantine batches in %s", len(batches), s.Layout.QuarantineName)
		}
	}

	if m.Exists() {
		entries, err := os.ReadDir(s.Layout.Root)
		if err == nil {
			for _, e := range entries {
				name := e.Name()
				if name == s.Layout.BackupName || name == s.Layout.QuarantineName || s.Layout.Kept(name) || s.Layout.Known(m, name) {
					continue
				}
				r.Untracked = append(r.Untracked, name)
			}
		}
		if len(r.Untracked) > 0 {
			add("DOC_UNTRACKED_FILES", "warn", "the next update quarantines: %s", strings.Join(r.Untracked, ", "))
		}
	}
	return finish(r)
}

func finish(r Report) Report {
	r.Healthy = true
	for _, f := range r.Findings {
		if f.Level == "error" {
			r.Healthy = false
			break
		}
	}
	return r
}
