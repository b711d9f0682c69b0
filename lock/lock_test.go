package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	l, err := Acquire(dbPath)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	data, err := os.ReadFile(dbPath + ".lock")
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if len(data) == 0 {
		t.Error("lock file is empty")
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(dbPath + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file survived Release()")
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	l1, err := Acquire(dbPath)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(dbPath)
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var held *HeldError
	if !errors.As(err, &held) {
		t.Errorf("expected HeldError, got %T: %v", err, err)
	}
	if held.PID != os.Getpid() {
		t.Errorf("HeldError.PID = %d, want %d", held.PID, os.Getpid())
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	l1, err := Acquire(dbPath)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l1.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	l2, err := Acquire(dbPath)
	if err != nil {
		t.Fatalf("re-Acquire() error = %v", err)
	}
	_ = l2.Release()
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	l, err := Acquire(dbPath)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
