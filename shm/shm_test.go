package shm_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"tandem/shm"
)

func TestSegmentCreateOpenUnlink(t *testing.T) {
	dir := t.TempDir()
	name := shm.NewName("tandem", "a")

	seg, err := shm.Create(dir, name, 4096)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if seg.Size() != 4096 {
		t.Errorf("Size = %d; want 4096", seg.Size())
	}
	copy(seg.Bytes(), []byte("hello"))

	other, err := shm.Open(dir, name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := string(other.Bytes()[:5]); got != "hello" {
		t.Errorf("mapped content = %q; want hello", got)
	}
	if err := other.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := seg.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := shm.Unlink(dir, name); err != nil {
		t.Errorf("Unlink: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
		t.Error("segment file survived Unlink")
	}
}

func TestSegmentCreateExclusive(t *testing.T) {
	dir := t.TempDir()
	name := shm.NewName("tandem", "b")
	seg, err := shm.Create(dir, name, 1024)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer seg.Close()
	if _, err := shm.Create(dir, name, 1024); err == nil {
		t.Error("duplicate Create should fail")
	}
}

func TestRegistryReap(t *testing.T) {
	dir := t.TempDir()
	reg, err := shm.OpenRegistry(filepath.Join(dir, "registry.json"))
	if err != nil {
		t.Fatalf("OpenRegistry: %v", err)
	}

	liveName := shm.NewName("tandem", "a")
	deadName := shm.NewName("tandem", "b")
	for _, name := range []string{liveName, deadName} {
		seg, err := shm.Create(dir, name, 1024)
		if err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
		seg.Close()
	}
	if err := reg.Add(liveName, 1024, 100); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Add(deadName, 1024, 200); err != nil {
		t.Fatalf("Add: %v", err)
	}

	alive := func(pid int) bool { return pid == 100 }
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reclaimed, err := reg.Reap(dir, alive, log)
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if reclaimed != 1 {
		t.Errorf("reclaimed = %d; want 1", reclaimed)
	}
	if _, err := os.Stat(filepath.Join(dir, deadName)); !os.IsNotExist(err) {
		t.Error("dead owner's segment not unlinked")
	}
	if _, err := os.Stat(filepath.Join(dir, liveName)); err != nil {
		t.Error("live owner's segment was reclaimed")
	}

	entries, err := reg.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != liveName {
		t.Errorf("registry after reap = %+v; want only %s", entries, liveName)
	}
}

func TestRegistryAtomicRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")
	reg, err := shm.OpenRegistry(path)
	if err != nil {
		t.Fatalf("OpenRegistry: %v", err)
	}
	if err := reg.Add("seg1", 1024, os.Getpid()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp registry file left behind after publish")
	}
	if err := reg.Remove("seg1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	entries, err := reg.List()
	if err != nil || len(entries) != 0 {
		t.Errorf("List after remove = %v, %v; want empty", entries, err)
	}
}
