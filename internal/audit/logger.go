package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chenchongli/kinetic-go/internal/auth"
)

// Outcomes that are not a device status code.
const (
	OutcomeSuccess      = "SUCCESS"
	OutcomePrecondition = "PRECONDITION_NOT_MET"
	OutcomeForbidden    = "FORBIDDEN"
	OutcomeError        = "ERROR"
)

const (
	unknownUser       = "unknown"
	defaultFileName   = "audit.jsonl"
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 10
	defaultMaxAgeDays = 90
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	Timestamp time.Time `json:"ts"`
	User      string    `json:"user"`
	Device    string    `json:"device"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Code      string    `json:"code,omitempty"`
	LatencyMs int64     `json:"latencyMs"`
}

// Options controls file placement and rotation.
type Options struct {
	Dir        string
	FileName   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger writes audit entries as JSON lines.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      io.WriteCloser
}

// NewLogger creates a rotating audit logger in opts.Dir.
func NewLogger(opts Options) (*Logger, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("audit log directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if opts.FileName == "" {
		opts.FileName = defaultFileName
	}
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = defaultMaxSizeMB
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = defaultMaxBackups
	}
	if opts.MaxAgeDays == 0 {
		opts.MaxAgeDays = defaultMaxAgeDays
	}

	filePath := filepath.Join(opts.Dir, opts.FileName)
	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
	}, nil
}

// NewWriterLogger writes entries to w. It is meant for stdout sinks and tests.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{out: nopCloser{w}}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// LogAction logs an audit record for a device command. code is the device
// status name when the device answered, empty otherwise.
func (l *Logger) LogAction(ctx context.Context, action, device, outcome, code string, latency time.Duration) {
	l.writeEntry(AuditEntry{
		Timestamp: time.Now().UTC(),
		User:      userFromContext(ctx),
		Device:    device,
		Action:    action,
		Outcome:   outcome,
		Code:      code,
		LatencyMs: latency.Milliseconds(),
	})
}

// writeEntry writes an audit entry to the log file.
func (l *Logger) writeEntry(entry AuditEntry) {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return
	}
	if _, err := l.out.Write(append(jsonData, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

// userFromContext returns the operator subject, or "unknown".
func userFromContext(ctx context.Context) string {
	if claims := auth.ClaimsFromContext(ctx); claims != nil && claims.Subject != "" {
		return claims.Subject
	}
	return unknownUser
}

// Close closes the audit logger and its file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out != nil {
		err := l.out.Close()
		l.out = nil
		return err
	}
	return nil
}

// GetFilePath returns the path to the audit log file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}

// Rotate starts a new audit file, keeping the old one as a backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lj, ok := l.out.(*lumberjack.Logger)
	if !ok {
		return nil
	}
	if err := lj.Rotate(); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	return nil
}
