package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// tempSuffix marks files that are still being written. They never carry a
// tracked extension, so an interrupted write can not become a checkpoint.
const tempSuffix = ".tmp"

// Manager owns one member directory. Only one Manager may write to a given
// directory at a time.
type Manager struct {
	dir string
}

// NewManager creates the member directory if needed
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create member directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the member directory path
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns the absolute location of name inside the member directory
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, name)
}

// EnsureSentinel writes the zero-byte "0_0_<now>.txt" anchor when the
// directory holds no tracked file yet. It reports whether it wrote one.
func (m *Manager) EnsureSentinel(now time.Time) (bool, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return false, fmt.Errorf("failed to read member directory: %w", err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && IsTracked(entry.Name()) {
			return false, nil
		}
	}

	if err := m.WriteFile(SentinelName(now), strings.NewReader("")); err != nil {
		return false, fmt.Errorf("failed to write sentinel: %w", err)
	}
	return true, nil
}

// Staged is a fully written temp file waiting to be renamed into place
type Staged struct {
	tmp   string
	final string
	Size  int64
}

// Name returns the final file name
func (s *Staged) Name() string {
	return filepath.Base(s.final)
}

// Stage copies r into a temp file next to name and syncs it to disk
func (m *Manager) Stage(name string, r io.Reader) (*Staged, error) {
	return m.StageWith(name, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
}

// StageWith lets write fill a temp file next to name, then syncs it to disk.
// The temp file is removed when write fails.
func (m *Manager) StageWith(name string, write func(w io.Writer) error) (*Staged, error) {
	out, err := os.CreateTemp(m.dir, "."+name+".*"+tempSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmp := out.Name()

	err = write(out)
	if err == nil {
		err = out.Sync()
	}
	var size int64
	if err == nil {
		var info os.FileInfo
		if info, err = out.Stat(); err == nil {
			size = info.Size()
		}
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to close %s: %w", name, closeErr)
	}

	return &Staged{tmp: tmp, final: m.Path(name), Size: size}, nil
}

// Commit renames staged files into place in the given order, replacing any
// existing file of the same name. On failure the files not yet renamed are
// discarded.
func (m *Manager) Commit(staged ...*Staged) error {
	for i, s := range staged {
		if err := os.Rename(s.tmp, s.final); err != nil {
			m.Discard(staged[i:]...)
			return fmt.Errorf("failed to rename temporary file: %w", err)
		}
	}
	return nil
}

// Discard removes staged temp files
func (m *Manager) Discard(staged ...*Staged) {
	for _, s := range staged {
		if s != nil {
			os.Remove(s.tmp)
		}
	}
}

// WriteFile atomically writes name with the content of r
func (m *Manager) WriteFile(name string, r io.Reader) error {
	s, err := m.Stage(name, r)
	if err != nil {
		return err
	}
	return m.Commit(s)
}

// RemoveStaleTemp deletes temp files left behind by an interrupted run
func (m *Manager) RemoveStaleTemp() (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read member directory: %w", err)
	}

	var removed int
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, tempSuffix) {
			continue
		}
		if err := os.Remove(m.Path(name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// StoredFile is an artifact found on disk
type StoredFile struct {
	Artifact
	Name    string
	Size    int64
	ModTime time.Time
}

// ListArtifacts returns every parseable tracked file except the sentinel,
// ordered by numeric id, then type code, then extension
func ListArtifacts(dir string) ([]StoredFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []StoredFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsTracked(entry.Name()) {
			continue
		}
		a, err := ParseFileName(entry.Name())
		if err != nil || a.IsSentinel() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, StoredFile{
			Artifact: a,
			Name:     entry.Name(),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.ID != b.ID {
			return LessID(a.ID, b.ID)
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Ext < b.Ext
	})

	return files, nil
}

// LessID orders numeric ids numerically and places them before other ids
func LessID(a, b string) bool {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
