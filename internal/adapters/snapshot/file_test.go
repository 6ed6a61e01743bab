package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "baselines.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("expected empty load before first save, ok=%v err=%v", ok, err)
	}

	want := []byte(`{"entries":[]}`)
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok || string(got) != string(want) {
		t.Fatalf("round trip mismatch: ok=%v got=%q", ok, got)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file must not linger after save")
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baselines.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := store.Save([]byte("one")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save([]byte("two")); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != "two" {
		t.Fatalf("expected latest snapshot, got %q", got)
	}
}

func TestFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
