// Package lpktest builds container fixtures for tests.
package lpktest

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/hpungsan/lpkunpack/internal/errors"
)

// Entry is one file to place in a fixture container.
type Entry struct {
	Name string
	Data []byte
}

// WriteArchive writes entries as a zip container at path, in order.
func WriteArchive(t *testing.T, path string, entries []Entry) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("zip Create %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("zip Write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}
}

// MemContainer is an in-memory container keyed by physical name. It
// records how often each entry is read.
type MemContainer struct {
	ArchivePath string
	Entries     map[string][]byte
	Reads       map[string]int
}

// NewMemContainer returns a container holding entries.
func NewMemContainer(path string, entries map[string][]byte) *MemContainer {
	return &MemContainer{ArchivePath: path, Entries: entries, Reads: make(map[string]int)}
}

// Path implements lpk.Container.
func (m *MemContainer) Path() string { return m.ArchivePath }

// List implements lpk.Container.
func (m *MemContainer) List() []string {
	names := make([]string, 0, len(m.Entries))
	for name := range m.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve implements lpk.Container. Hashed names are not simulated.
func (m *MemContainer) Resolve(logical string) (string, bool) {
	_, ok := m.Entries[logical]
	return logical, ok
}

// Read implements lpk.Container.
func (m *MemContainer) Read(name string) ([]byte, error) {
	data, ok := m.Entries[name]
	if !ok {
		return nil, errors.NewNotFound(name)
	}
	m.Reads[name]++
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// ExtractVerbatim implements lpk.Container.
func (m *MemContainer) ExtractVerbatim(name, destDir string) (string, error) {
	data, ok := m.Entries[name]
	if !ok {
		return "", errors.NewNotFound(name)
	}
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	return dest, os.WriteFile(dest, data, 0o644)
}
