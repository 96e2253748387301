package ops

import (
	"context"

	"github.com/hpungsan/lpkunpack/internal/archive"
	"github.com/hpungsan/lpkunpack/internal/errors"
	"github.com/hpungsan/lpkunpack/internal/lpk"
)

// InspectInput contains parameters for the Inspect operation.
type InspectInput struct {
	Target string // a .lpk file or a directory searched recursively
}

// CharacterInfo describes one manifest character.
type CharacterInfo struct {
	Name     string `json:"name"`
	Costumes int    `json:"costumes"`
}

// ArchiveInfo is the manifest metadata of one archive.
type ArchiveInfo struct {
	Archive      string          `json:"archive"`
	Digest       string          `json:"digest,omitempty"`
	Variant      string          `json:"variant,omitempty"`
	Supported    bool            `json:"supported"`
	PackageID    string          `json:"package_id,omitempty"`
	Encrypt      string          `json:"encrypt,omitempty"`
	Entries      int             `json:"entries"`
	Characters   []CharacterInfo `json:"characters,omitempty"`
	NeedsSecrets bool            `json:"needs_secrets"`
	Secrets      string          `json:"secrets,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// InspectOutput contains the result of the Inspect operation.
type InspectOutput struct {
	Archives []ArchiveInfo `json:"archives"`
}

// Inspect reads the manifest of every archive named by the target
// without decrypting or writing anything.
func Inspect(ctx context.Context, input InspectInput) (*InspectOutput, error) {
	if input.Target == "" {
		return nil, errors.NewInvalidRequest("target is required")
	}
	archives, err := archive.Discover(input.Target)
	if err != nil {
		return nil, err
	}

	out := &InspectOutput{Archives: make([]ArchiveInfo, 0, len(archives))}
	for _, path := range archives {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("inspect")
		}
		out.Archives = append(out.Archives, inspectArchive(path))
	}
	return out, nil
}

func inspectArchive(path string) ArchiveInfo {
	info := ArchiveInfo{Archive: path}
	if digest, err := archive.Fingerprint(path); err == nil {
		info.Digest = digest
	}

	a, err := archive.Open(path)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	defer a.Close()
	info.Entries = len(a.List())

	m, err := lpk.ReadManifest(a)
	if err != nil {
		info.Error = err.Error()
		return info
	}

	variant := lpk.ParseVariant(m.Type)
	info.Variant = m.Type
	info.Supported = variant != lpk.VariantUnknown
	info.PackageID = m.ID
	info.Encrypt = m.EncryptFlag()
	info.NeedsSecrets = variant == lpk.VariantWorkshop
	for _, chara := range m.List {
		info.Characters = append(info.Characters, CharacterInfo{Name: chara.Character, Costumes: len(chara.Costume)})
	}

	if info.NeedsSecrets {
		if secrets, err := findSecrets("", path); err == nil {
			info.Secrets = secrets
		}
	}
	return info
}
