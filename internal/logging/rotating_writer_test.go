package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRotatingWriterRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	w, err := NewRotatingWriter(path, 100, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	chunk := bytes.Repeat([]byte("x"), 60)
	for i := 0; i < 3; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	// 3 x 60 bytes at a 100 byte cap forces two rotations.
	for _, name := range []string{"app.log", "app.1.log", "app.2.log"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("%s missing: %v", name, err)
			continue
		}
		if info.Size() != 60 {
			t.Errorf("%s size = %d, want 60", name, info.Size())
		}
	}
}

func TestRotatingWriterDropsOldest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	w, err := NewRotatingWriter(path, 10, 1)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 4; i++ {
		if _, err := w.Write([]byte("0123456789")); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "app.2.log")); !os.IsNotExist(err) {
		t.Error("backup beyond maxBackups was kept")
	}
	if _, err := os.Stat(filepath.Join(dir, "app.1.log")); err != nil {
		t.Errorf("newest backup missing: %v", err)
	}
}

func TestRotatingWriterAppendsOnReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	w, err := NewRotatingWriter(path, 1000, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if _, err := w.Write([]byte("first\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	w, err = NewRotatingWriter(path, 1000, 2)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	_ = w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("content = %q, want both lines", data)
	}
}

func TestRotatingWriterUnlimited(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	w, err := NewRotatingWriter(path, 0, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	big := bytes.Repeat([]byte("y"), 4096)
	for i := 0; i < 5; i++ {
		if _, err := w.Write(big); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() != 5*4096 {
		t.Errorf("size = %d, zero maxBytes must never rotate", info.Size())
	}
}
