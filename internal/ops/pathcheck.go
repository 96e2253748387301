package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/lpkunpack/internal/errors"
)

// PathCheckMode indicates what a user-supplied path is used for.
type PathCheckMode int

const (
	PathCheckSecrets PathCheckMode = iota // read: workshop secret document
	PathCheckOutput                       // write: extraction output directory
)

// ValidatePath checks a user-supplied path before any file is touched.
//
// Secret documents must be existing regular .json files and must not be
// symlinks. Output directories may be missing (they are created) but
// must not be symlinks or non-directories when present.
func ValidatePath(path string, mode PathCheckMode) error {
	if strings.TrimSpace(path) == "" {
		return errors.NewInvalidRequest("path is required")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	info, err := os.Lstat(absPath)
	switch mode {
	case PathCheckSecrets:
		if !strings.EqualFold(filepath.Ext(absPath), ".json") {
			return errors.NewInvalidRequest("secret document must have .json extension")
		}
		if os.IsNotExist(err) {
			return errors.NewNotFound(path)
		}
		if err != nil {
			return errors.NewInternal(err)
		}
		// O_NOFOLLOW would reject at open time anyway; rejecting early gives a clearer error.
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("secret document must not be a symlink")
		}
		if !info.Mode().IsRegular() {
			return errors.NewInvalidRequest("secret document must be a regular file")
		}
	case PathCheckOutput:
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return errors.NewInternal(err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("output directory must not be a symlink")
		}
		if !info.IsDir() {
			return errors.NewInvalidRequest(fmt.Sprintf("output path %q exists and is not a directory", path))
		}
	}
	return nil
}

// findSecrets returns the secret document for an archive: the explicit
// path when set, else config.json next to the archive when present.
// "" means none was found.
func findSecrets(explicit, archivePath string) (string, error) {
	if explicit != "" {
		if err := ValidatePath(explicit, PathCheckSecrets); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidate := filepath.Join(filepath.Dir(archivePath), SecretsFileName)
	if info, err := os.Lstat(candidate); err == nil && info.Mode().IsRegular() {
		return candidate, nil
	}
	return "", nil
}

// uniqueOutputDirs maps each archive to <outRoot>/<base name>, adding a
// counter when two archives share a base name.
func uniqueOutputDirs(outRoot string, archives []string) []string {
	used := make(map[string]bool, len(archives))
	dirs := make([]string, len(archives))
	for i, a := range archives {
		base := archiveDirName(a)
		name := base
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = true
		dirs[i] = filepath.Join(outRoot, name)
	}
	return dirs
}
