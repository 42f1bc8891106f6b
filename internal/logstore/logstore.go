// Package logstore persists the combined output of each step to a file and
// records a BLAKE3 digest of the content, so a result can later be checked
// against the log it points to.
package logstore

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

const digestPrefix = "blake3:"

// Store manages step log files below BaseDir.
type Store struct {
	BaseDir string
}

// New creates a log store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{BaseDir: baseDir}
}

// NewRunID returns a fresh identifier for one pipeline run.
func NewRunID() string {
	return uuid.New().String()
}

// Path returns the file a step log is written to:
// <BaseDir>/<runID>/<stage>/<job>/<nn>_<step>.log, nn being the 1-based step
// position.
func (s *Store) Path(runID, stage, job string, index int, step string) string {
	return filepath.Join(
		s.BaseDir,
		sanitize(runID),
		sanitize(stage),
		sanitize(job),
		fmt.Sprintf("%02d_%s.log", index+1, sanitize(step)),
	)
}

// Create opens a new step log for writing.
func (s *Store) Create(runID, stage, job string, index int, step string) (*StepLog, error) {
	path := s.Path(runID, stage, job, index, step)
	if err := os.MkdirAll(filepath.Dir(path), 0o775); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create step log: %w", err)
	}
	h := blake3.New()
	return &StepLog{path: path, file: f, hasher: h, w: io.MultiWriter(f, h)}, nil
}

// StepLog is an open step log. Writes are safe for concurrent use, since a
// process writes stdout and stderr from separate goroutines.
type StepLog struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	hasher *blake3.Hasher
	w      io.Writer
	closed bool
}

// Write appends p to the log.
func (l *StepLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, os.ErrClosed
	}
	return l.w.Write(p)
}

// Path returns the log file path.
func (l *StepLog) Path() string { return l.path }

// Close flushes the file and returns the digest of everything written.
func (l *StepLog) Close() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return formatDigest(l.hasher.Sum(nil)), nil
	}
	l.closed = true
	if err := l.file.Close(); err != nil {
		return "", fmt.Errorf("failed to close step log: %w", err)
	}
	return formatDigest(l.hasher.Sum(nil)), nil
}

// Digest returns the digest string of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return formatDigest(sum[:])
}

func formatDigest(sum []byte) string {
	return digestPrefix + hex.EncodeToString(sum)
}

// Verify reads the file at path and checks it against digest.
func Verify(path, digest string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if got := formatDigest(h.Sum(nil)); got != digest {
		return fmt.Errorf("digest mismatch for %s: got %s, want %s", path, got, digest)
	}
	return nil
}

// sanitize removes special characters from names used in paths.
func sanitize(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	clean := strings.Trim(sb.String(), ".")
	if clean == "" {
		return "step"
	}
	return clean
}
