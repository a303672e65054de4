package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"ratupdater/internal/failure"
)

// Logger appends JSON lines to an audit file. A nil Logger or one with an
// empty path drops every event.
type Logger struct {
	path string
	mu   sync.Mutex
}

type Event struct {
	Timestamp string            `json:"timestamp"`
	Run       string            `json:"run,omitempty"`
	Operation string            `json:"operation"`
	Phase     string            `json:"phase"`
	Status    string            `json:"status"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func New(path string) *Logger {
	return &Logger{path: path}
}

func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *Logger) Log(ev Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	blob, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(blob, '\n')); err != nil {
		return err
	}
	return nil
}

// Run tags every event of one operation with a shared run id.
type Run struct {
	ID        string
	Operation string
	logger    *Logger
}

func (l *Logger) Begin(operation string) *Run {
	return &Run{ID: uuid.NewString(), Operation: operation, logger: l}
}

// Record logs the outcome of phase. A non-nil err marks the event failed
// and carries the error's taxonomy code.
func (r *Run) Record(phase string, err error, fields map[string]string) error {
	ev := Event{Run: r.ID, Operation: r.Operation, Phase: phase, Status: "ok", Fields: fields}
	if err != nil {
		ev.Status = "error"
		ev.Code = string(failure.CodeOf(err))
		ev.Message = err.Error()
	}
	return r.logger.Log(ev)
}
