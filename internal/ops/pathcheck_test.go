package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/lpkunpack/internal/errors"
)

func TestValidatePath_Empty(t *testing.T) {
	for _, mode := range []PathCheckMode{PathCheckSecrets, PathCheckOutput} {
		err := ValidatePath("  ", mode)
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("mode %d: expected ErrInvalidRequest, got: %v", mode, err)
		}
	}
}

func TestValidatePath_Secrets(t *testing.T) {
	tmpDir := t.TempDir()
	good := filepath.Join(tmpDir, "config.json")
	if err := os.WriteFile(good, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	wrongExt := filepath.Join(tmpDir, "config.txt")
	if err := os.WriteFile(wrongExt, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	dirJSON := filepath.Join(tmpDir, "dir.json")
	if err := os.Mkdir(dirJSON, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want errors.ErrorCode // "" means no error
	}{
		{"regular json", good, ""},
		{"wrong extension", wrongExt, errors.ErrInvalidRequest},
		{"missing", filepath.Join(tmpDir, "missing.json"), errors.ErrNotFound},
		{"directory", dirJSON, errors.ErrInvalidRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, PathCheckSecrets)
			if tc.want == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidatePath_SecretsSymlinkRejected(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "real.json")
	if err := os.WriteFile(target, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(tmpDir, "link.json")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	err := ValidatePath(link, PathCheckSecrets)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for symlink, got: %v", err)
	}
}

func TestValidatePath_Output(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := ValidatePath(filepath.Join(tmpDir, "new", "dir"), PathCheckOutput); err != nil {
		t.Errorf("missing output dir should be accepted: %v", err)
	}
	if err := ValidatePath(tmpDir, PathCheckOutput); err != nil {
		t.Errorf("existing output dir should be accepted: %v", err)
	}
	if err := ValidatePath(file, PathCheckOutput); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for file, got: %v", err)
	}

	link := filepath.Join(tmpDir, "link")
	if err := os.Symlink(tmpDir, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	if err := ValidatePath(link, PathCheckOutput); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for symlink, got: %v", err)
	}
}

func TestFindSecrets(t *testing.T) {
	tmpDir := t.TempDir()
	archivePath := filepath.Join(tmpDir, "a.lpk")

	got, err := findSecrets("", archivePath)
	if err != nil || got != "" {
		t.Errorf("findSecrets without document = %q, %v; want empty", got, err)
	}

	sibling := filepath.Join(tmpDir, SecretsFileName)
	if err := os.WriteFile(sibling, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = findSecrets("", archivePath)
	if err != nil || got != sibling {
		t.Errorf("findSecrets = %q, %v; want %q", got, err, sibling)
	}

	explicit := filepath.Join(tmpDir, "other.json")
	if err := os.WriteFile(explicit, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = findSecrets(explicit, archivePath)
	if err != nil || got != explicit {
		t.Errorf("findSecrets explicit = %q, %v; want %q", got, err, explicit)
	}

	if _, err := findSecrets(filepath.Join(tmpDir, "missing.json"), archivePath); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing explicit document, got: %v", err)
	}
}

func TestUniqueOutputDirs(t *testing.T) {
	got := uniqueOutputDirs("out", []string{
		filepath.Join("a", "hero.lpk"),
		filepath.Join("b", "hero.lpk"),
		filepath.Join("b", "villain.lpk"),
		filepath.Join("c", "hero.lpk"),
	})
	want := []string{
		filepath.Join("out", "hero"),
		filepath.Join("out", "hero_2"),
		filepath.Join("out", "villain"),
		filepath.Join("out", "hero_3"),
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dirs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
