//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/lpkunpack/internal/errors"
)

// openFileNoFollow opens a report file for writing.
// On Windows, O_NOFOLLOW is not available. Symlink creation needs
// privileges there, and ValidatePath still rejects symlinked paths.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

// openFileNoFollowRead opens a secret document for reading.
func openFileNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(path)
		}
		return nil, err
	}
	return f, nil
}
