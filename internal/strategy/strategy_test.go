package strategy

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

func TestRegistry(t *testing.T) {
	Register("dummy", func(name string, deps Deps) Strategy { return nil })

	if _, ok := Lookup("dummy"); !ok {
		t.Error("expected the registered key to resolve")
	}
	if _, ok := Lookup("DUMMY"); !ok {
		t.Error("expected lookup to be case insensitive")
	}
	if _, ok := Lookup("nope"); ok {
		t.Error("expected an unregistered key to miss")
	}

	names := Names()
	if !sort.StringsAreSorted(names) {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestBaseInit(t *testing.T) {
	b := NewBase("test", Deps{})
	b.now = func() time.Time { return time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC) }

	workDir := filepath.Join(t.TempDir(), "work")
	if err := b.Init(context.Background(), workDir); err != nil {
		t.Fatal(err)
	}

	logBytes, err := os.ReadFile(filepath.Join(workDir, LogFileName))
	if err != nil {
		t.Fatal(err)
	}
	if got := string(logBytes); got != "[test 2024-05-10 14:30:00] initialized\n" {
		t.Errorf("unexpected log contents: %q", got)
	}
	if b.Orders == nil {
		t.Error("expected an order log")
	}
}

func TestBaseInitTruncatesOldLog(t *testing.T) {
	b := NewBase("test", Deps{})
	workDir := t.TempDir()
	stale := filepath.Join(workDir, LogFileName)
	if err := os.WriteFile(stale, []byte("old run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := b.Init(context.Background(), workDir); err != nil {
		t.Fatal(err)
	}
	logBytes, err := os.ReadFile(stale)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(logBytes), "old run") {
		t.Errorf("expected a fresh log file, got %q", logBytes)
	}
}

func TestBaseLogFormats(t *testing.T) {
	b := NewBase("test", Deps{})
	if err := b.Init(context.Background(), t.TempDir()); err != nil {
		t.Fatal(err)
	}

	b.Log(context.Background(), "value is $%.2f", 12.5)

	logBytes, err := os.ReadFile(filepath.Join(b.WorkDir, LogFileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(logBytes), "value is $12.50") {
		t.Errorf("expected the formatted message, got %q", logBytes)
	}
}
