package updater

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"ratupdater/internal/archive"
	"ratupdater/internal/audit"
	"ratupdater/internal/failure"
	"ratupdater/internal/install"
	"ratupdater/internal/manifest"
	"ratupdater/internal/progress"
)

// Result describes what one update run did to the install root.
type Result struct {
	State       State    `json:"state"`
	BackedUp    []string `json:"backedUp"`
	Batch       string   `json:"quarantineBatch,omitempty"`
	Quarantined []string `json:"quarantined"`
	Created     []string `json:"created"`
	Manifest    []string `json:"manifest"`
	Restored    []string `json:"restored,omitempty"`
	Recovered   bool     `json:"recovered"`
}

// Service replaces the contents of an install root with a package while
// keeping the previous managed files recoverable.
type Service struct {
	Layout    install.Layout
	Extractor *archive.Extractor
	Progress  *progress.Reporter
	Logger    *slog.Logger
	Audit     *audit.Logger
	Now       func() time.Time
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// run carries the bookkeeping of one Run call.
type run struct {
	svc   *Service
	audit *audit.Run
	res   Result
}

func (r *run) step(msg, phase string, next State, fn func() error) error {
	err := r.svc.Progress.Step(msg, fn)
	_ = r.audit.Record(phase, err, nil)
	if err != nil {
		r.svc.logger().Error("update step failed", "phase", phase, "state", r.res.State, "err", err)
		return err
	}
	r.res.State = next
	r.svc.logger().Debug("update step done", "phase", phase, "state", next)
	return nil
}

// Run installs src into the layout root. Failures once the backup stage has
// started moving entries trigger an automatic recovery.
func (s *Service) Run(src archive.Source) (Result, error) {
	return s.RunRecorded(s.Audit.Begin("update"), src)
}

// RunRecorded is Run with events added to an audit run the caller began.
func (s *Service) RunRecorded(ar *audit.Run, src archive.Source) (Result, error) {
	r := &run{svc: s, audit: ar, res: Result{State: StateStart}}
	l := s.Layout

	if err := r.step("Prepared install directory", "root", StateRootEnsured, l.EnsureRoot); err != nil {
		return r.res, err
	}
	var current manifest.Manifest
	if err := r.step("Loaded file manifest", "manifest_load", StateManifestLoaded, func() error {
		m, err := manifest.Load(l.Root, l.ManifestName)
		current = m
		return err
	}); err != nil {
		return r.res, err
	}

	if err := r.step("Checked update package", "verify", StateManifestLoaded, func() error {
		_, err := archive.Check(src)
		return err
	}); err != nil {
		return r.res, err
	}

	if err := r.step("Backed up previous installation", "backup", StateBackedUp, func() error {
		moved, err := l.MoveToBackup(current)
		r.res.BackedUp = moved
		return err
	}); err != nil {
		if errors.Is(err, install.ErrBackupReset) {
			return r.res, err
		}
		return r.rollback(err)
	}

	if err := r.step("Moved unknown files aside", "quarantine", StateQuarantined, func() error {
		batch, moved, err := l.MoveToQuarantine(s.now())
		r.res.Batch, r.res.Quarantined = batch, moved
		return err
	}); err != nil {
		return r.rollback(err)
	}

	var created manifest.Set
	if err := r.step("Extracted update", "extract", StateExtracted, func() error {
		set, err := s.Extractor.Extract(src, l.Root)
		created = set
		return err
	}); err != nil {
		return r.rollback(err)
	}
	r.res.Created = created.Sorted()

	if err := r.step("Saved file manifest", "manifest_save", StateManifestSaved, func() error {
		m, err := manifest.Save(l.Root, l.ManifestName, created)
		r.res.Manifest = m.Paths.Sorted()
		return err
	}); err != nil {
		return r.rollback(err)
	}

	r.res.State = StateDone
	_ = r.audit.Record("done", nil, map[string]string{
		"backed_up":   strconv.Itoa(len(r.res.BackedUp)),
		"quarantined": strconv.Itoa(len(r.res.Quarantined)),
		"created":     strconv.Itoa(len(r.res.Created)),
		"batch":       r.res.Batch,
	})
	s.logger().Info("update complete", "root", l.Root, "created", len(r.res.Created), "batch", r.res.Batch)
	return r.res, nil
}

func (r *run) rollback(cause error) (Result, error) {
	if !failure.Recoverable(failure.CodeOf(cause)) {
		return r.res, cause
	}
	r.res.State = StateRollingBack
	r.svc.logger().Warn("rolling back update", "root", r.svc.Layout.Root, "cause", cause)
	var restored []string
	err := r.svc.Progress.Step("Restored previous installation", func() error {
		var err error
		restored, err = r.svc.Layout.Recover()
		return err
	})
	r.res.Restored = restored
	fields := map[string]string{"restored": strings.Join(restored, ",")}
	_ = r.audit.Record("rollback", err, fields)
	if err != nil {
		r.res.State = StateRecoveryFailed
		return r.res, &failure.RollbackError{Original: cause, Recovery: err}
	}
	r.res.State = StateRecovered
	r.res.Recovered = true
	return r.res, cause
}

// Recover moves the contents of the backup directory back into the root.
func (s *Service) Recover() ([]string, error) {
	ar := s.Audit.Begin("recover")
	var restored []string
	err := s.Progress.Step("Restored previous installation", func() error {
		if err := s.Layout.EnsureRoot(); err != nil {
			return err
		}
		var err error
		restored, err = s.Layout.Recover()
		return err
	})
	_ = ar.Record("recover", err, map[string]string{"restored": strings.Join(restored, ",")})
	if err != nil {
		s.logger().Error("recovery failed", "root", s.Layout.Root, "err", err)
		return restored, err
	}
	s.logger().Info("recovery complete", "root", s.Layout.Root, "restored", len(restored))
	return restored, nil
}

// Describe renders a one-line summary of res.
func Describe(res Result) string {
	if res.State == StateDone {
		return fmt.Sprintf("installed %d entries, backed up %d, quarantined %d", len(res.Created), len(res.BackedUp), len(res.Quarantined))
	}
	return fmt.Sprintf("update stopped in state %s", res.State)
}
