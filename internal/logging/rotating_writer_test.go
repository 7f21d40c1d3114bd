package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriterCreatesDatedFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "agentmart.log")
	w, err := NewRotatingWriter(base, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	dated := filepath.Join(dir, fmt.Sprintf("agentmart-%s.log", today))
	raw, err := os.ReadFile(dated)
	if err != nil {
		t.Fatalf("read dated file: %v", err)
	}
	if string(raw) != "hello\n" {
		t.Fatalf("content = %q", raw)
	}

	// Base path tracks the active file.
	if dest, err := os.Readlink(base); err == nil && dest != dated {
		t.Fatalf("symlink = %q, want %q", dest, dated)
	}
}

func TestWriterRollsOverOnSize(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "agentmart.log")
	w, err := NewRotatingWriter(base, 10)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("0123456789")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := w.Write([]byte("overflow")); err != nil {
		t.Fatalf("second write: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	second := filepath.Join(dir, fmt.Sprintf("agentmart-%s.2.log", today))
	raw, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("read rollover file: %v", err)
	}
	if !strings.Contains(string(raw), "overflow") {
		t.Fatalf("rollover content = %q", raw)
	}
}

func TestWriterDisabledWithDash(t *testing.T) {
	w, err := NewRotatingWriter("-", 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()
	if n, err := w.Write([]byte("dropped")); err != nil || n != len("dropped") {
		t.Fatalf("discard write: n=%d err=%v", n, err)
	}
}
