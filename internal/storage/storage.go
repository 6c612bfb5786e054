// ABOUTME: Storage abstraction for the gateway's audio file store
// ABOUTME: Capability interface with an afero-backed local implementation
package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// File is an open destination for chunked writes.
type File interface {
	io.Writer
	Sync() error
	Close() error
}

// Entry describes one stored audio file.
type Entry struct {
	Name string
	Size int64
}

// Store is the capability set the gateway needs from its storage backend.
// Backends are selected by composition at wiring time, not by build tags.
type Store interface {
	Exists(name string) bool
	Open(name string) (io.ReadSeekCloser, error)
	OpenForWrite(name string) (File, error)
	Remove(name string) error
	List() ([]Entry, error)
	FileSize(name string) int64
	FreeSpace() int64
}

// Local stores audio files in a single directory of an afero filesystem.
// Free space is quota-based: configured capacity minus bytes used, which
// mirrors the fixed-size flash partition the gateway design assumes.
type Local struct {
	fs       afero.Fs
	capacity int64
	log      *logrus.Entry
}

// NewLocal creates a store rooted at dir on the given filesystem.
func NewLocal(fs afero.Fs, dir string, capacity int64) (*Local, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Local{
		fs:       afero.NewBasePathFs(fs, dir),
		capacity: capacity,
		log:      logrus.WithField("component", "storage"),
	}, nil
}

// clean maps wire-format names like "/sound.mp3" onto store-relative paths.
func clean(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

func (l *Local) Exists(name string) bool {
	ok, err := afero.Exists(l.fs, clean(name))
	return err == nil && ok
}

func (l *Local) Open(name string) (io.ReadSeekCloser, error) {
	return l.fs.Open(clean(name))
}

// OpenForWrite opens a fresh destination, discarding any existing file of
// the same name.
func (l *Local) OpenForWrite(name string) (File, error) {
	p := clean(name)
	if ok, _ := afero.Exists(l.fs, p); ok {
		if err := l.fs.Remove(p); err != nil {
			return nil, fmt.Errorf("failed to remove stale file %s: %w", name, err)
		}
		l.log.WithField("file", name).Debug("removed stale file before write")
	}

	f, err := l.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s for writing: %w", name, err)
	}
	return f, nil
}

func (l *Local) Remove(name string) error {
	p := clean(name)
	if ok, _ := afero.Exists(l.fs, p); !ok {
		return nil
	}
	return l.fs.Remove(p)
}

// List returns the stored audio files (.mp3/.wav), sorted by name.
func (l *Local) List() ([]Entry, error) {
	infos, err := afero.ReadDir(l.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list storage: %w", err)
	}

	var entries []Entry
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		lower := strings.ToLower(info.Name())
		if strings.HasSuffix(lower, ".mp3") || strings.HasSuffix(lower, ".wav") {
			entries = append(entries, Entry{Name: "/" + info.Name(), Size: info.Size()})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (l *Local) FileSize(name string) int64 {
	info, err := l.fs.Stat(clean(name))
	if err != nil {
		return 0
	}
	return info.Size()
}

// FreeSpace returns capacity minus total bytes used, floored at zero.
func (l *Local) FreeSpace() int64 {
	infos, err := afero.ReadDir(l.fs, ".")
	if err != nil {
		return 0
	}
	var used int64
	for _, info := range infos {
		if !info.IsDir() {
			used += info.Size()
		}
	}
	if used >= l.capacity {
		return 0
	}
	return l.capacity - used
}
