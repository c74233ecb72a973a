package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if got, err := ExpandHome("~"); err != nil || got != home {
		t.Fatalf("got %q err=%v want %q", got, err, home)
	}
	got, err := ExpandHome("~/models")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if filepath.Base(got) != "models" || filepath.Dir(got) != home {
		t.Fatalf("unexpected expanded path: %q", got)
	}
}

func TestAbsDir(t *testing.T) {
	dir := t.TempDir()
	got, err := AbsDir(dir)
	if err != nil || got != dir {
		t.Fatalf("got %q err=%v", got, err)
	}
	f := filepath.Join(dir, "file")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := AbsDir(f); err == nil {
		t.Fatalf("expected error for regular file")
	}
	if _, err := AbsDir(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestFilesWithExt(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.GGUF", "a.gguf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "dir.gguf"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got, err := FilesWithExt(dir, ".gguf")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(got) != 2 || filepath.Base(got[0]) != "a.gguf" || filepath.Base(got[1]) != "b.GGUF" {
		t.Fatalf("got %v", got)
	}
}
