package lpk

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// reservedChars are stripped from character directory names.
var reservedChars = regexp.MustCompile(`[<>:"|?*]`)

// SanitizeDirName makes a character name safe as a directory name:
// control characters and reserved characters are removed, and a blank
// result becomes "unnamed".
func SanitizeDirName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 32 {
			b.WriteRune(r)
		}
	}
	s = reservedChars.ReplaceAllString(b.String(), "")
	// Separators would create nested directories.
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(s)
	if strings.TrimSpace(s) == "" || s == "." || s == ".." {
		s = "unnamed"
	}
	return s
}

// assetBaseName turns a field path into an output base name: the
// FileReferences_ prefix is dropped and backslashes become slashes.
func assetBaseName(field string, ordinal int) string {
	name := fmt.Sprintf("%s_%d", field, ordinal)
	name = strings.ReplaceAll(name, "FileReferences_", "")
	return strings.ReplaceAll(name, "\\", "/")
}

// containsTraversal checks if a slash-separated name contains ".." segments.
func containsTraversal(name string) bool {
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// safeJoin joins a slash-separated relative name under dir, refusing
// names that would escape it.
func safeJoin(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") || containsTraversal(name) {
		return "", fmt.Errorf("unsafe output name %q", name)
	}
	return filepath.Join(dir, filepath.FromSlash(name)), nil
}

// writeFileAtomic writes data to a temp file next to path and renames
// it into place, so a reader never observes a partial file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return fmt.Errorf("failed to generate temp file name: %w", err)
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return nil
}
