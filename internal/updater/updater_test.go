package updater

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"ratupdater/internal/archive"
	"ratupdater/internal/audit"
	"ratupdater/internal/failure"
	"ratupdater/internal/install"
)

type memSource struct{ *bytes.Reader }

func (m memSource) Size() int64 { return m.Reader.Size() }

func zipSource(t *testing.T, files map[string]string) archive.Source {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return memSource{bytes.NewReader(buf.Bytes())}
}

func newService(t *testing.T) *Service {
	t.Helper()
	clock := time.UnixMilli(1_700_000_000_000)
	return &Service{
		Layout: install.Layout{
			Root:           t.TempDir(),
			BackupName:     "RatScanner.old",
			QuarantineName: "RatScanner.unknown",
			ManifestName:   "RatScanner.files.ref",
			Keep:           []string{"config.cfg"},
		},
		Extractor: &archive.Extractor{},
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(blob)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestFirstRunQuarantinesStrayFiles(t *testing.T) {
	svc := newService(t)
	root := svc.Layout.Root
	writeFile(t, filepath.Join(root, "my-file.txt"), "mine")

	res, err := svc.Run(zipSource(t, map[string]string{"RatScanner.exe": "v1"}))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.State != StateDone {
		t.Fatalf("expected done, got %s", res.State)
	}
	if got := listDir(t, svc.Layout.BackupDir()); len(got) != 0 {
		t.Fatalf("backup dir should be empty, got %v", got)
	}
	batch := filepath.Join(svc.Layout.QuarantineDir(), filepath.Base(res.Batch))
	if readFile(t, filepath.Join(batch, "my-file.txt")) != "mine" {
		t.Fatalf("stray file not quarantined")
	}
	want := []string{"RatScanner.exe", "RatScanner.files.ref"}
	if !reflect.DeepEqual(res.Manifest, want) {
		t.Fatalf("manifest = %v, want %v", res.Manifest, want)
	}
	if readFile(t, filepath.Join(root, "RatScanner.exe")) != "v1" {
		t.Fatalf("package not extracted")
	}
}

func TestSecondRunBacksUpKnownFiles(t *testing.T) {
	svc := newService(t)
	root := svc.Layout.Root
	writeFile(t, filepath.Join(root, "my-file.txt"), "mine")
	pkg := map[string]string{"RatScanner.exe": "v1"}
	if _, err := svc.Run(zipSource(t, pkg)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	batches, _ := svc.Layout.Batches()

	res, err := svc.Run(zipSource(t, pkg))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if readFile(t, filepath.Join(svc.Layout.BackupDir(), "RatScanner.exe")) != "v1" {
		t.Fatalf("previous executable not backed up")
	}
	if res.Batch != "" || len(res.Quarantined) != 0 {
		t.Fatalf("nothing should be quarantined, got %q %v", res.Batch, res.Quarantined)
	}
	after, _ := svc.Layout.Batches()
	if !reflect.DeepEqual(batches, after) {
		t.Fatalf("quarantine batches changed: %v -> %v", batches, after)
	}
	wantRoot := []string{"RatScanner.exe", "RatScanner.files.ref", "RatScanner.old", "RatScanner.unknown"}
	if got := listDir(t, root); !reflect.DeepEqual(got, wantRoot) {
		t.Fatalf("root = %v, want %v", got, wantRoot)
	}
}

func TestRunKeepsKeepListEntries(t *testing.T) {
	svc := newService(t)
	root := svc.Layout.Root
	writeFile(t, filepath.Join(root, "config.cfg"), "user settings")
	pkg := map[string]string{"RatScanner.exe": "v1", "config.cfg": "shipped"}
	if _, err := svc.Run(zipSource(t, pkg)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	writeFile(t, filepath.Join(root, "config.cfg"), "user settings")
	if _, err := svc.Run(zipSource(t, map[string]string{"RatScanner.exe": "v2"})); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if readFile(t, filepath.Join(root, "config.cfg")) != "user settings" {
		t.Fatalf("kept file was touched")
	}
	if _, err := os.Stat(filepath.Join(svc.Layout.BackupDir(), "config.cfg")); !os.IsNotExist(err) {
		t.Fatalf("kept file should not be backed up: %v", err)
	}
}

func TestUnsafeEntryRollsBack(t *testing.T) {
	svc := newService(t)
	root := svc.Layout.Root
	if _, err := svc.Run(zipSource(t, map[string]string{"RatScanner.exe": "v1"})); err != nil {
		t.Fatalf("first run: %v", err)
	}

	res, err := svc.Run(zipSource(t, map[string]string{"../escape.txt": "x"}))
	if !failure.Is(err, failure.UnsafeArchiveEntry) {
		t.Fatalf("expected unsafe entry error, got %v", err)
	}
	if res.State != StateRecovered || !res.Recovered {
		t.Fatalf("expected recovered state, got %s", res.State)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt")); !os.IsNotExist(err) {
		t.Fatalf("entry escaped the root: %v", err)
	}
	if readFile(t, filepath.Join(root, "RatScanner.exe")) != "v1" {
		t.Fatalf("previous executable not restored")
	}
	if got := listDir(t, svc.Layout.BackupDir()); len(got) != 0 {
		t.Fatalf("backup dir should be drained, got %v", got)
	}
}

func TestManifestSaveFailureRollsBack(t *testing.T) {
	svc := newService(t)
	root := svc.Layout.Root
	if _, err := svc.Run(zipSource(t, map[string]string{"RatScanner.exe": "v1"})); err != nil {
		t.Fatalf("first run: %v", err)
	}
	pkg := map[string]string{"RatScanner.exe": "v2", "RatScanner.files.ref/blocker": "x"}
	res, err := svc.Run(zipSource(t, pkg))
	if !failure.Is(err, failure.ManifestSaveFailed) {
		t.Fatalf("expected manifest save failure, got %v", err)
	}
	if res.State != StateRecovered {
		t.Fatalf("expected recovered, got %s", res.State)
	}
	if readFile(t, filepath.Join(root, "RatScanner.exe")) != "v1" {
		t.Fatalf("previous executable not restored")
	}
	if !strings.Contains(readFile(t, filepath.Join(root, "RatScanner.files.ref")), "RatScanner.exe") {
		t.Fatalf("previous manifest not restored")
	}
}

func TestCorruptManifestIsFatal(t *testing.T) {
	svc := newService(t)
	root := svc.Layout.Root
	writeFile(t, filepath.Join(root, "RatScanner.files.ref"), "version = [")
	writeFile(t, filepath.Join(root, "RatScanner.exe"), "v0")

	res, err := svc.Run(zipSource(t, map[string]string{"RatScanner.exe": "v1"}))
	if !failure.Is(err, failure.ManifestCorrupt) {
		t.Fatalf("expected corrupt manifest error, got %v", err)
	}
	if res.State != StateRootEnsured || res.Recovered {
		t.Fatalf("unexpected state %s", res.State)
	}
	if readFile(t, filepath.Join(root, "RatScanner.exe")) != "v0" {
		t.Fatalf("root should be untouched")
	}
}

func TestRollbackFailureReportsBothErrors(t *testing.T) {
	svc := newService(t)
	if _, err := svc.Run(zipSource(t, map[string]string{"RatScanner.exe": "v1"})); err != nil {
		t.Fatalf("first run: %v", err)
	}
	r := &run{svc: svc, audit: svc.Audit.Begin("update")}
	if err := os.RemoveAll(svc.Layout.BackupDir()); err != nil {
		t.Fatalf("remove backup: %v", err)
	}
	writeFile(t, svc.Layout.BackupDir(), "not a dir")
	cause := failure.Errorf(failure.ExtractFailed, "read zip", "boom")
	res, err := r.rollback(cause)
	var rb *failure.RollbackError
	if !errors.As(err, &rb) {
		t.Fatalf("expected rollback error, got %v", err)
	}
	if !failure.Is(err, failure.ExtractFailed) || !failure.Is(err, failure.RecoveryFailed) {
		t.Fatalf("rollback error should carry both codes: %v", err)
	}
	if res.State != StateRecoveryFailed {
		t.Fatalf("expected recovery_failed, got %s", res.State)
	}
}

func TestRecoverRestoresBackup(t *testing.T) {
	svc := newService(t)
	writeFile(t, filepath.Join(svc.Layout.BackupDir(), "a.txt"), "a")
	writeFile(t, filepath.Join(svc.Layout.BackupDir(), "sub", "b.txt"), "b")

	restored, err := svc.Recover()
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if !reflect.DeepEqual(restored, []string{"a.txt", "sub"}) {
		t.Fatalf("unexpected restored list %v", restored)
	}
	if readFile(t, filepath.Join(svc.Layout.Root, "sub", "b.txt")) != "b" {
		t.Fatalf("nested file not restored")
	}
	if got := listDir(t, svc.Layout.BackupDir()); len(got) != 0 {
		t.Fatalf("backup dir should be empty, got %v", got)
	}
}

func TestRunRecordsAuditEvents(t *testing.T) {
	svc := newService(t)
	path := filepath.Join(t.TempDir(), "audit.log")
	svc.Audit = audit.New(path)
	if _, err := svc.Run(zipSource(t, map[string]string{"RatScanner.exe": "v1"})); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(readFile(t, path)), "\n")
	phases := []string{}
	runs := map[string]struct{}{}
	for _, line := range lines {
		var ev audit.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad audit line %q: %v", line, err)
		}
		phases = append(phases, ev.Phase)
		runs[ev.Run] = struct{}{}
	}
	want := []string{"root", "manifest_load", "verify", "backup", "quarantine", "extract", "manifest_save", "done"}
	if !reflect.DeepEqual(phases, want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one run id, got %v", runs)
	}
}

func TestStateString(t *testing.T) {
	if StateManifestSaved.String() != "manifest_saved" || State(99).String() != "unknown" {
		t.Fatalf("unexpected state names")
	}
}

func tarGzSource(t *testing.T, hdrs ...*tar.Header) archive.Source {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, h := range hdrs {
		if err := tw.WriteHeader(h); err != nil {
			t.Fatalf("tar header %s: %v", h.Name, err)
		}
		if h.Size > 0 {
			if _, err := tw.Write(bytes.Repeat([]byte("x"), int(h.Size))); err != nil {
				t.Fatalf("tar body %s: %v", h.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return memSource{bytes.NewReader(buf.Bytes())}
}

func TestBadPackageLeavesRootUntouched(t *testing.T) {
	good := zipSource(t, map[string]string{"RatScanner.exe": "v1"})
	blob := make([]byte, good.Size())
	if _, err := good.ReadAt(blob, 0); err != nil {
		t.Fatalf("read package: %v", err)
	}
	tests := map[string][]byte{
		"html page": []byte("<html>502 Bad Gateway</html>"),
		"truncated": blob[:len(blob)/2],
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			svc := newService(t)
			root := svc.Layout.Root
			if _, err := svc.Run(zipSource(t, map[string]string{"RatScanner.exe": "v1"})); err != nil {
				t.Fatalf("first run: %v", err)
			}
			writeFile(t, filepath.Join(root, "my-notes.txt"), "notes")
			before, _ := svc.Layout.Batches()

			res, err := svc.Run(memSource{bytes.NewReader(body)})
			if !failure.Is(err, failure.ExtractFailed) {
				t.Fatalf("expected extract failure, got %v", err)
			}
			if res.State != StateManifestLoaded || res.Recovered || len(res.Quarantined) != 0 {
				t.Fatalf("unexpected result %+v", res)
			}
			if readFile(t, filepath.Join(root, "my-notes.txt")) != "notes" || readFile(t, filepath.Join(root, "RatScanner.exe")) != "v1" {
				t.Fatalf("root was modified")
			}
			if after, _ := svc.Layout.Batches(); !reflect.DeepEqual(before, after) {
				t.Fatalf("quarantine changed: %v -> %v", before, after)
			}
		})
	}
}

func TestReadOnlyDirectoryDoesNotBlockLaterUpdates(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix directory permissions")
	}
	svc := newService(t)
	for i := 0; i < 3; i++ {
		src := tarGzSource(t,
			&tar.Header{Name: "bin/", Typeflag: tar.TypeDir, Mode: 0o555},
			&tar.Header{Name: "bin/tool", Typeflag: tar.TypeReg, Mode: 0o755, Size: 3},
		)
		res, err := svc.Run(src)
		if err != nil || res.State != StateDone {
			t.Fatalf("run %d: state %s err %v", i+1, res.State, err)
		}
	}
}
