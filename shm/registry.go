package shm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

type (
	// Registry is the persisted index of live segments. It is a single JSON
	// file updated via write-temp-then-rename, so a crash mid-update leaves
	// either the old or the new registry, never a torn one. Concurrent
	// processes serialize through a flock sidecar.
	Registry struct {
		path string
		lock *flock.Flock
	}

	// Entry records one segment and its owning process.
	Entry struct {
		Name    string    `json:"name"`
		Size    int       `json:"size"`
		Owner   int       `json:"owner_pid"`
		Created time.Time `json:"created_ts"`
	}
)

// OpenRegistry binds a registry to the given file path, creating parent
// directories as needed.
func OpenRegistry(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("registry dir: %w", err)
	}
	return &Registry{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the registry file location.
func (r *Registry) Path() string { return r.path }

func (r *Registry) withLock(fn func() error) error {
	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("lock registry: %w", err)
	}
	defer r.lock.Unlock()
	return fn()
}

func (r *Registry) load() (map[string]Entry, error) {
	entries := make(map[string]Entry)
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return entries, nil
}

func (r *Registry) store(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry temp: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("publish registry: %w", err)
	}
	return nil
}

// Add records a segment owned by pid.
func (r *Registry) Add(name string, size, pid int) error {
	return r.withLock(func() error {
		entries, err := r.load()
		if err != nil {
			return err
		}
		entries[name] = Entry{Name: name, Size: size, Owner: pid, Created: time.Now().UTC()}
		return r.store(entries)
	})
}

// Remove drops a segment's entry.
func (r *Registry) Remove(name string) error {
	return r.withLock(func() error {
		entries, err := r.load()
		if err != nil {
			return err
		}
		delete(entries, name)
		return r.store(entries)
	})
}

// List returns all entries.
func (r *Registry) List() ([]Entry, error) {
	var out []Entry
	err := r.withLock(func() error {
		entries, err := r.load()
		if err != nil {
			return err
		}
		for _, e := range entries {
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Reap unlinks every segment whose owner is no longer alive and removes its
// entry, returning how many were reclaimed. alive is injectable for tests;
// production passes PidAlive.
func (r *Registry) Reap(dir string, alive func(pid int) bool, log *slog.Logger) (int, error) {
	reclaimed := 0
	err := r.withLock(func() error {
		entries, err := r.load()
		if err != nil {
			return err
		}
		for name, e := range entries {
			if alive(e.Owner) {
				continue
			}
			if err := Unlink(dir, name); err != nil {
				log.Warn("reap: unlink failed", "segment", name, "error", err)
				continue
			}
			delete(entries, name)
			reclaimed++
			log.Info("reclaimed leaked segment", "segment", name, "owner", e.Owner)
		}
		if reclaimed > 0 {
			return r.store(entries)
		}
		return nil
	})
	return reclaimed, err
}
