package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"ratupdater/internal/failure"
	"ratupdater/internal/progress"
)

func TestFetchDownloadsIntoTempFile(t *testing.T) {
	payload := []byte(strings.Repeat("zipdata", 1000))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	var out bytes.Buffer
	tmpDir := t.TempDir()
	f := &Fetcher{Client: server.Client(), Progress: progress.New(&out), TempDir: tmpDir}
	dl, err := f.Fetch(context.Background(), server.URL+"/RatScanner.zip")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if dl.Size() != int64(len(payload)) {
		t.Fatalf("size = %d, want %d", dl.Size(), len(payload))
	}
	got, err := io.ReadAll(io.NewSectionReader(dl, 0, dl.Size()))
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("downloaded content mismatch")
	}
	if err := dl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	entries, _ := os.ReadDir(tmpDir)
	if len(entries) != 0 {
		t.Fatalf("expected temp file removed on close, found %d entries", len(entries))
	}
	if !strings.Contains(out.String(), "Done - Downloading new version") {
		t.Fatalf("expected progress output, got:\n%s", out.String())
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f := &Fetcher{Client: server.Client(), TempDir: t.TempDir()}
	_, err := f.Fetch(context.Background(), server.URL)
	if !failure.Is(err, failure.FetchFailed) || !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("expected status failure, got %v", err)
	}
}

func TestFetchRequiresContentLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("part"))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("rest"))
	}))
	defer server.Close()

	f := &Fetcher{Client: server.Client(), TempDir: t.TempDir()}
	_, err := f.Fetch(context.Background(), server.URL)
	if !failure.Is(err, failure.FetchFailed) || !strings.Contains(err.Error(), "Content-Length") {
		t.Fatalf("expected missing Content-Length failure, got %v", err)
	}
}

func TestFetchFailsOnShortBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("short"))
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	f := &Fetcher{Client: server.Client(), TempDir: tmpDir}
	if _, err := f.Fetch(context.Background(), server.URL); !failure.Is(err, failure.FetchFailed) {
		t.Fatalf("expected short body failure, got %v", err)
	}
	entries, _ := os.ReadDir(tmpDir)
	if len(entries) != 0 {
		t.Fatalf("expected partial download removed")
	}
}

func TestFetchIdleTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		_, _ = w.Write([]byte("12345"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	f := &Fetcher{Client: server.Client(), ReadTimeout: 50 * time.Millisecond, TempDir: t.TempDir()}
	start := time.Now()
	_, err := f.Fetch(context.Background(), server.URL)
	if !failure.Is(err, failure.FetchFailed) || !strings.Contains(err.Error(), "read timed out") {
		t.Fatalf("expected idle timeout, got %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Fatalf("idle timeout did not cut the transfer short")
	}
}

func TestFetchUnreachableHost(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	f := &Fetcher{Client: NewClient(time.Second, time.Second), TempDir: t.TempDir()}
	if _, err := f.Fetch(context.Background(), url); !failure.Is(err, failure.FetchFailed) {
		t.Fatalf("expected connect failure, got %v", err)
	}
}
