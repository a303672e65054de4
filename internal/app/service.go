package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"ratupdater/internal/archive"
	"ratupdater/internal/audit"
	"ratupdater/internal/config"
	"ratupdater/internal/doctor"
	"ratupdater/internal/fetch"
	"ratupdater/internal/fsutil"
	"ratupdater/internal/install"
	"ratupdater/internal/launcher"
	"ratupdater/internal/logging"
	"ratupdater/internal/progress"
	"ratupdater/internal/resolver"
	"ratupdater/internal/updater"
)

type Options struct {
	ConfigPath string
	// RootPath is the install root; "" uses the directory of the running
	// executable.
	RootPath   string
	HTTPClient *http.Client
	// Out receives step and transfer progress; nil prints nothing.
	Out io.Writer
}

type Service struct {
	ConfigPath string
	Config     config.Config
	Root       string

	Resolver *resolver.Service
	Fetcher  *fetch.Fetcher
	Updater  *updater.Service
	Doctor   *doctor.Service
	Audit    *audit.Logger
	Logger   *slog.Logger
	Progress *progress.Reporter

	logCloser io.Closer
}

func New(opts Options) (*Service, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := config.Ensure(configPath)
	if err != nil {
		return nil, err
	}

	root := opts.RootPath
	if root == "" {
		if root, err = ExecutableDir(); err != nil {
			return nil, err
		}
	}
	if root, err = config.ExpandPath(root); err != nil {
		return nil, err
	}
	if root, err = filepath.Abs(root); err != nil {
		return nil, err
	}

	logFile, err := config.ResolveLogFile(cfg)
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       logFile,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, err
	}
	auditPath, err := config.ResolveAuditPath(cfg)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	connect, read, err := cfg.API.Timeouts()
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	client := opts.HTTPClient
	if client == nil {
		client = fetch.NewClient(connect, read)
	}

	reporter := progress.New(opts.Out)
	auditLog := audit.New(auditPath)
	layout := layoutFor(cfg, root)
	return &Service{
		ConfigPath: configPath,
		Config:     cfg,
		Root:       root,
		Resolver:   &resolver.Service{Client: client, Endpoints: cfg.API.Endpoints},
		Fetcher:    &fetch.Fetcher{Client: client, ReadTimeout: read, Progress: reporter},
		Updater: &updater.Service{
			Layout:    layout,
			Extractor: &archive.Extractor{Permissions: fsutil.HostPermissions, Logger: logger},
			Progress:  reporter,
			Logger:    logger,
			Audit:     auditLog,
		},
		Doctor:    &doctor.Service{ConfigPath: configPath, Layout: layout, Executable: cfg.Layout.Executable},
		Audit:     auditLog,
		Logger:    logger,
		Progress:  reporter,
		logCloser: closer,
	}, nil
}

func layoutFor(cfg config.Config, root string) install.Layout {
	return install.Layout{
		Root:           root,
		BackupName:     cfg.Layout.BackupDir,
		QuarantineName: cfg.Layout.QuarantineDir,
		ManifestName:   cfg.Layout.ManifestFile,
		Keep:           append([]string(nil), cfg.Layout.Keep...),
		Names:          fsutil.HostNames,
	}
}

// ExecutableDir returns the directory holding the running binary.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("DOC_ROOT_DETECT: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// Close flushes and releases the log file.
func (s *Service) Close() error {
	if s.logCloser == nil {
		return nil
	}
	return s.logCloser.Close()
}

func (s *Service) SaveConfig() error {
	return config.Save(s.ConfigPath, s.Config)
}

// Update resolves the current package, downloads it and installs it into
// the root. Nothing in the root is touched until the download completes.
func (s *Service) Update(ctx context.Context) (updater.Result, error) {
	ar := s.Audit.Begin("update")
	resource := s.Config.API.Resource
	var url string
	err := s.Progress.Step("Resolved download location", func() error {
		var err error
		url, err = s.Resolver.Resolve(ctx, resource)
		return err
	})
	_ = ar.Record("resolve", err, map[string]string{"resource": resource, "url": url})
	if err != nil {
		s.Logger.Error("resolve failed", "resource", resource, "err", err)
		return updater.Result{}, err
	}
	s.Logger.Info("resolved download", "resource", resource, "url", url)

	dl, err := s.Fetcher.Fetch(ctx, url)
	fields := map[string]string{"url": url}
	if dl != nil {
		fields["bytes"] = fmt.Sprint(dl.Size())
	}
	_ = ar.Record("fetch", err, fields)
	if err != nil {
		s.Logger.Error("download failed", "url", url, "err", err)
		return updater.Result{}, err
	}
	defer func() {
		if cerr := dl.Close(); cerr != nil {
			s.Logger.Warn("remove download", "err", cerr)
		}
	}()
	return s.Updater.RunRecorded(ar, dl)
}

// Install runs the update stages against an already obtained package.
func (s *Service) Install(src archive.Source) (updater.Result, error) {
	return s.Updater.Run(src)
}

func (s *Service) Recover() ([]string, error) {
	return s.Updater.Recover()
}

// Start launches the installed application from the root.
func (s *Service) Start() error {
	exe := s.Config.Layout.Executable
	ar := s.Audit.Begin("start")
	err := s.Progress.Step("Started "+exe, func() error {
		return launcher.Start(s.Root, exe)
	})
	_ = ar.Record("launch", err, map[string]string{"executable": exe})
	if err != nil {
		s.Logger.Error("launch failed", "executable", exe, "err", err)
		return err
	}
	s.Logger.Info("launched", "executable", exe, "root", s.Root)
	return nil
}

func (s *Service) DoctorRun() doctor.Report {
	return s.Doctor.Run()
}

func (s *Service) KeepList() []string {
	return append([]string(nil), s.Config.Layout.Keep...)
}

func (s *Service) KeepAdd(rel string) error {
	if rel == "" {
		return errors.New("DOC_CONFIG_KEEP: path is required")
	}
	if err := config.AddKeep(&s.Config, rel); err != nil {
		return err
	}
	return s.persistKeep()
}

func (s *Service) KeepRemove(rel string) error {
	if err := config.RemoveKeep(&s.Config, rel); err != nil {
		return err
	}
	return s.persistKeep()
}

func (s *Service) persistKeep() error {
	if err := s.SaveConfig(); err != nil {
		return err
	}
	layout := layoutFor(s.Config, s.Root)
	s.Updater.Layout = layout
	s.Doctor.Layout = layout
	return nil
}
