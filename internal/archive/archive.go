// Package archive provides read access to .lpk containers, which are
// zip files whose structured entries may be stored under md5-hex names.
package archive

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"

	"github.com/hpungsan/lpkunpack/internal/errors"
)

// Ext is the container file extension.
const Ext = ".lpk"

// Archive is an opened container.
type Archive struct {
	path  string
	rc    *zip.ReadCloser
	files map[string]*zip.File
	names []string
}

// Open opens the container at path.
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.NewFatalConfig(errors.StageOpen, fmt.Sprintf("cannot open %s", path), err)
	}

	a := &Archive{
		path:  path,
		rc:    rc,
		files: make(map[string]*zip.File, len(rc.File)),
		names: make([]string, 0, len(rc.File)),
	}
	for _, f := range rc.File {
		if _, dup := a.files[f.Name]; dup {
			continue
		}
		a.files[f.Name] = f
		a.names = append(a.names, f.Name)
	}
	return a, nil
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	return a.rc.Close()
}

// Path returns the archive's file system path.
func (a *Archive) Path() string {
	return a.path
}

// List returns the entry names in archive order.
func (a *Archive) List() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Has reports whether a physical entry exists.
func (a *Archive) Has(name string) bool {
	_, ok := a.files[name]
	return ok
}

// HashedName returns the md5-hex name a logical entry is stored under.
func HashedName(logical string) string {
	sum := md5.Sum([]byte(logical))
	return hex.EncodeToString(sum[:])
}

// Resolve maps a logical name to the stored name: the hashed name when
// present, otherwise the plain name.
func (a *Archive) Resolve(logical string) (string, bool) {
	if hashed := HashedName(logical); a.Has(hashed) {
		return hashed, true
	}
	if a.Has(logical) {
		return logical, true
	}
	return "", false
}

// Read returns the uncompressed bytes of an entry.
func (a *Archive) Read(name string) ([]byte, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, errors.NewNotFound(name)
	}
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// ExtractVerbatim copies an entry to destDir/name unchanged. Names that
// would land outside destDir are rejected.
func (a *Archive) ExtractVerbatim(name, destDir string) (string, error) {
	f, ok := a.files[name]
	if !ok {
		return "", errors.NewNotFound(name)
	}

	dest, err := entryPath(destDir, name)
	if err != nil {
		return "", err
	}
	if f.FileInfo().IsDir() {
		return dest, os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}

	r, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	defer r.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return "", fmt.Errorf("copy %s: %w", name, err)
	}
	return dest, out.Close()
}

// entryPath joins a slash-separated entry name under dir.
func entryPath(dir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimLeft(name, "/")))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", errors.NewInvalidRequest(fmt.Sprintf("entry %q escapes the output directory", name))
	}
	return filepath.Join(dir, clean), nil
}

// Fingerprint returns the hex BLAKE3-256 digest of the file at path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Discover returns the containers named by target: target itself when it
// is a .lpk file, or every .lpk below it when it is a directory. Results
// are sorted.
func Discover(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(target)
		}
		return nil, errors.NewInternal(err)
	}

	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(target), Ext) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("target %q is not a directory or a .lpk file", target))
		}
		return []string{target}, nil
	}

	var found []string
	err = filepath.WalkDir(target, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), Ext) {
			found = append(found, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	sort.Strings(found)
	return found, nil
}

// BaseName returns the archive file name without its extension.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
