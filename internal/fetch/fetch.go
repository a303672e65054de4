package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"ratupdater/internal/failure"
	"ratupdater/internal/progress"
)

const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultReadTimeout    = 15 * time.Second
)

// NewClient builds an HTTP client with a connect timeout and a header
// timeout. Body reads are bounded separately by the fetcher's idle timeout.
func NewClient(connect, read time.Duration) *http.Client {
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	if read <= 0 {
		read = DefaultReadTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = read
	return &http.Client{Transport: transport}
}

// Download is a fully received package kept in a temporary file.
type Download struct {
	file *os.File
	size int64
}

func (d *Download) ReadAt(p []byte, off int64) (int, error) { return d.file.ReadAt(p, off) }
func (d *Download) Size() int64                            { return d.size }

// Close removes the temporary file.
func (d *Download) Close() error {
	name := d.file.Name()
	cerr := d.file.Close()
	rerr := os.Remove(name)
	return errors.Join(cerr, rerr)
}

type Fetcher struct {
	Client      *http.Client
	ReadTimeout time.Duration
	Progress    *progress.Reporter
	// TempDir holds the partial download; "" uses the OS default.
	TempDir string
}

func (f *Fetcher) client() *http.Client {
	if f.Client == nil {
		return NewClient(0, f.ReadTimeout)
	}
	return f.Client
}

// Fetch downloads url into a temporary file, reporting transfer progress.
// The server must announce Content-Length and deliver exactly that many bytes.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Download, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, failure.New(failure.FetchFailed, "build request", err)
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, failure.New(failure.FetchFailed, "GET "+url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, failure.Errorf(failure.FetchFailed, "GET "+url, "status %d", resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return nil, failure.Errorf(failure.FetchFailed, "GET "+url, "missing Content-Length")
	}

	tmp, err := os.CreateTemp(f.TempDir, "ratupdater-*.pkg")
	if err != nil {
		return nil, failure.New(failure.FetchFailed, "create temp file", err)
	}
	dl := &Download{file: tmp, size: resp.ContentLength}

	readTimeout := f.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	idle := newIdleReader(resp.Body, readTimeout, cancel)
	defer idle.stop()

	bar := f.Progress.Transfer("Downloading new version", resp.ContentLength)
	n, err := io.Copy(tmp, bar.Reader(io.LimitReader(idle, resp.ContentLength+1)))
	if err == nil && n != resp.ContentLength {
		err = fmt.Errorf("received %d of %d bytes", n, resp.ContentLength)
	}
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, errIdleTimeout) {
			err = cause
		}
		bar.Finish(err)
		_ = dl.Close()
		return nil, failure.New(failure.FetchFailed, "read body", err)
	}
	bar.Finish(nil)
	return dl, nil
}

var errIdleTimeout = errors.New("read timed out")

// idleReader cancels the request when no bytes arrive for the timeout.
type idleReader struct {
	rd      io.Reader
	timeout time.Duration
	timer   *time.Timer
	once    sync.Once
}

func newIdleReader(rd io.Reader, timeout time.Duration, cancel context.CancelCauseFunc) *idleReader {
	r := &idleReader{rd: rd, timeout: timeout}
	r.timer = time.AfterFunc(timeout, func() { cancel(errIdleTimeout) })
	return r
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.rd.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func (r *idleReader) stop() {
	r.once.Do(func() { r.timer.Stop() })
}
