package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBytes is the size rollover threshold when the caller passes 0.
const DefaultMaxBytes = 64 << 20

// RotatingWriter appends to date-stamped log files, starting a fresh file at
// each UTC day boundary and whenever the current file would grow past the
// size limit. Given a base path logs/agentmart.log, output lands in
// logs/agentmart-2026-08-28.log, logs/agentmart-2026-08-28.2.log and so on,
// with the base path kept as a symlink to the active file.
type RotatingWriter struct {
	base     string
	maxBytes int64

	mu   sync.Mutex
	day  string
	seq  int
	file *os.File
	size int64
}

// NewRotatingWriter opens a rotating writer rooted at basePath. A basePath of
// "-" disables file output entirely.
func NewRotatingWriter(basePath string, maxBytes int64) (io.WriteCloser, error) {
	if strings.TrimSpace(basePath) == "-" {
		return discardCloser{}, nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	w := &RotatingWriter{base: basePath, maxBytes: maxBytes}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(0); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// roll opens the next file when the UTC day changed or the pending write
// would exceed the size limit. Callers must hold the mutex.
func (w *RotatingWriter) roll(pending int64) error {
	today := time.Now().UTC().Format("2006-01-02")
	switch {
	case w.file == nil || w.day != today:
		w.day = today
		w.seq = 1
	case w.size+pending > w.maxBytes:
		w.seq++
	default:
		return nil
	}
	return w.open()
}

func (w *RotatingWriter) open() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	dir := filepath.Dir(w.base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	ext := filepath.Ext(w.base)
	if ext == "" {
		ext = ".log"
	}
	stem := strings.TrimSuffix(filepath.Base(w.base), filepath.Ext(w.base))
	name := fmt.Sprintf("%s-%s%s", stem, w.day, ext)
	if w.seq > 1 {
		name = fmt.Sprintf("%s-%s.%d%s", stem, w.day, w.seq, ext)
	}
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.file = f
	w.size = 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	w.relink(path)
	return nil
}

// relink points the base path at the active file so tail -F keeps working
// across rotations. Best effort only.
func (w *RotatingWriter) relink(target string) {
	if info, err := os.Lstat(w.base); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if dest, err := os.Readlink(w.base); err == nil && dest == target {
				return
			}
		}
		_ = os.Remove(w.base)
	}
	_ = os.Symlink(target, w.base)
}

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }
