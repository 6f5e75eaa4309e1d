package logtail

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLastLines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "job.out")

	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("line\n")
	}
	b.WriteString("last\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	lines, ok, err := LastLines(path, 3)
	if err != nil {
		t.Fatalf("LastLines error: %v", err)
	}
	if !ok {
		t.Fatal("expected file to exist")
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[2] != "last" {
		t.Fatalf("last line = %q, want %q", lines[2], "last")
	}
}

func TestLastLinesMissingFile(t *testing.T) {
	t.Parallel()
	lines, ok, err := LastLines(filepath.Join(t.TempDir(), "nope.out"), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || lines != nil {
		t.Fatalf("missing file should report ok=false, got ok=%v lines=%v", ok, lines)
	}
}

func TestLastLinesShortFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "short.out")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lines, ok, err := LastLines(path, 50)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}
