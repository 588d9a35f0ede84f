// Package shm manages the shared-memory segments that carry the audio and
// command rings between the supervisor, the workers and the audio callback.
// Segments are plain files under a tmpfs directory (/dev/shm by default),
// mapped with MAP_SHARED; every segment is recorded in an on-disk registry
// so segments whose owner died without cleanup can be found and reclaimed.
package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// DefaultDir is where segments live unless the configuration says otherwise.
const DefaultDir = "/dev/shm"

// Segment is one mapped shared-memory region. The mapping stays valid until
// Close; the backing file stays on disk until Unlink, which is how a segment
// outlives the worker process attached to it.
type Segment struct {
	Name string
	Dir  string
	mem  []byte
	file *os.File
}

// NewName builds a collision-free segment name for the given slot.
func NewName(prefix, slot string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, slot, uuid.NewString()[:8])
}

// Create makes and maps a fresh segment of the given size. Creation is
// exclusive: colliding with an existing file is an error, not a reuse.
func Create(dir, name string, size int) (*Segment, error) {
	if dir == "" {
		dir = DefaultDir
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create segment %s: %w", name, err)
	}
	if err := unix.Ftruncate(int(f.Fd()), int64(size)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("size segment %s: %w", name, err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("map segment %s: %w", name, err)
	}
	return &Segment{Name: name, Dir: dir, mem: mem, file: f}, nil
}

// Open maps an existing segment, typically from a respawned worker attaching
// to the rings its predecessor used.
func Open(dir, name string) (*Segment, error) {
	if dir == "" {
		dir = DefaultDir
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat segment %s: %w", name, err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("map segment %s: %w", name, err)
	}
	return &Segment{Name: name, Dir: dir, mem: mem, file: f}, nil
}

// Bytes returns the mapped region.
func (s *Segment) Bytes() []byte { return s.mem }

// Size returns the mapped length.
func (s *Segment) Size() int { return len(s.mem) }

// Close unmaps the region and closes the file, leaving the segment on disk
// for other processes.
func (s *Segment) Close() error {
	var first error
	if s.mem != nil {
		if err := unix.Munmap(s.mem); err != nil && first == nil {
			first = fmt.Errorf("unmap segment %s: %w", s.Name, err)
		}
		s.mem = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && first == nil {
			first = fmt.Errorf("close segment %s: %w", s.Name, err)
		}
		s.file = nil
	}
	return first
}

// Unlink removes the backing file. Existing mappings stay usable until their
// owners unmap.
func Unlink(dir, name string) error {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlink segment %s: %w", name, err)
	}
	return nil
}

// PidAlive reports whether a process exists. EPERM still means alive; only
// ESRCH marks the owner as gone.
func PidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
