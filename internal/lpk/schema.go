package lpk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
	"golang.org/x/text/encoding/unicode"

	"github.com/hpungsan/lpkunpack/internal/errors"
)

// ManifestName is the logical name of the top-level container metadata.
const ManifestName = "config.mlve"

// Variant is the closed set of container schema variants.
type Variant int

const (
	VariantUnknown  Variant = iota // any type without its own dispatch branch
	VariantLegacy                  // STD_1_0, flat layout
	VariantStandard                // STD2_0, characters and costumes
	VariantWorkshop                // STM_1_0, needs external secrets
)

// ParseVariant maps a manifest type tag to its Variant.
func ParseVariant(tag string) Variant {
	switch tag {
	case "STD_1_0":
		return VariantLegacy
	case "STD2_0":
		return VariantStandard
	case "STM_1_0":
		return VariantWorkshop
	default:
		return VariantUnknown
	}
}

// String returns the manifest tag for v.
func (v Variant) String() string {
	switch v {
	case VariantLegacy:
		return "STD_1_0"
	case VariantStandard:
		return "STD2_0"
	case VariantWorkshop:
		return "STM_1_0"
	default:
		return "unknown"
	}
}

// Costume is one entry of a character's costume list.
type Costume struct {
	Path string `json:"path"`
}

// Character groups costumes under an output subdirectory.
type Character struct {
	Character string    `json:"character"`
	Costume   []Costume `json:"costume"`
}

// Manifest is the parsed config.mlve document.
type Manifest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	List    []Character     `json:"list"`
	Encrypt json.RawMessage `json:"encrypt,omitempty"`
}

// EncryptFlag returns the manifest's encrypt field as "true", "false",
// or "" when absent. Both string and boolean encodings are accepted.
func (m *Manifest) EncryptFlag() string {
	raw := bytes.TrimSpace(m.Encrypt)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "true"
		}
		return "false"
	}
	return string(raw)
}

// ParseManifest decodes a config.mlve document. A leading UTF-8 byte
// order mark is tolerated.
func ParseManifest(data []byte) (*Manifest, error) {
	clean, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		return nil, errors.NewFatalConfig(errors.StageManifest, "manifest is not valid text", err)
	}

	var m Manifest
	if err := json.Unmarshal(clean, &m); err != nil {
		return nil, errors.NewFatalConfig(errors.StageManifest, "invalid manifest", err)
	}
	if m.Type == "" && m.ID == "" {
		return nil, errors.NewFatalConfig(errors.StageManifest, "manifest has neither type nor id", nil)
	}
	return &m, nil
}

// Secrets is the externally supplied secret document of a workshop archive.
type Secrets struct {
	LpkFile  string `json:"lpkFile"`
	ID       string `json:"id"`
	FileID   string `json:"fileId"`
	MetaData string `json:"metaData"`
	Title    string `json:"title,omitempty"`
}

// ParseSecrets decodes a secret document. Comments and trailing commas
// are accepted.
func ParseSecrets(data []byte) (*Secrets, error) {
	clean, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		return nil, errors.NewFatalConfig(errors.StageSecrets, "secret document is not valid text", err)
	}

	var s Secrets
	if err := json.Unmarshal(jsonc.ToJSON(clean), &s); err != nil {
		return nil, errors.NewFatalConfig(errors.StageSecrets, "invalid secret document", err)
	}
	return &s, nil
}

// LoadSecrets reads and parses the secret document at path.
func LoadSecrets(path string) (*Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewFatalConfig(errors.StageSecrets, fmt.Sprintf("cannot read %s", path), err)
	}
	return ParseSecrets(data)
}

// SchemaContext is the per-archive key material. Only FileID changes
// after construction, and only through key recovery.
type SchemaContext struct {
	Variant   Variant
	Tag       string
	PackageID string
	Encrypted bool

	// Workshop only.
	FileID   string
	MetaData string
	LpkFile  string
	Title    string
}

// NewSchemaContext builds the context for a parsed manifest. secrets is
// required for the workshop variant and ignored otherwise.
func NewSchemaContext(m *Manifest, secrets *Secrets) (*SchemaContext, error) {
	sc := &SchemaContext{
		Variant:   ParseVariant(m.Type),
		Tag:       m.Type,
		PackageID: m.ID,
		Encrypted: m.EncryptFlag() != "false",
	}

	if sc.Variant == VariantWorkshop {
		if secrets == nil {
			return nil, errors.NewFatalConfig(errors.StageSecrets,
				"STM_1_0 archive requires a config.json secret document", nil)
		}
		sc.Encrypted = m.EncryptFlag() == "true" || m.EncryptFlag() == ""
		sc.FileID = secrets.FileID
		sc.MetaData = secrets.MetaData
		sc.LpkFile = secrets.LpkFile
		sc.Title = secrets.Title
	}
	return sc, nil
}

// SetFileID replaces the workshop file id. Used by key recovery.
func (sc *SchemaContext) SetFileID(fileID string) {
	sc.FileID = fileID
}

// Plaintext reports whether entries are stored without encryption.
func (sc *SchemaContext) Plaintext() bool {
	return sc.Variant == VariantWorkshop && !sc.Encrypted
}

// KeyFor derives the key for a logical entry name.
func (sc *SchemaContext) KeyFor(entry string) (int64, error) {
	switch sc.Variant {
	case VariantLegacy, VariantStandard:
		return DeriveKey(sc.PackageID + entry), nil
	case VariantWorkshop:
		if !sc.Encrypted {
			return 0, nil
		}
		return DeriveKey(sc.PackageID + sc.FileID + entry + sc.MetaData), nil
	default:
		return 0, errors.NewUnsupportedVariant(sc.Tag)
	}
}

// DecryptEntry returns the plaintext of an entry's raw bytes.
func (sc *SchemaContext) DecryptEntry(entry string, data []byte) ([]byte, error) {
	key, err := sc.KeyFor(entry)
	if err != nil {
		return nil, err
	}
	if sc.Plaintext() {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	return Decrypt(key, data), nil
}

// AsLegacy returns a copy of sc that derives keys the STD_1_0 way. The
// permissive fallback extraction uses it for unrecognized variants.
func (sc *SchemaContext) AsLegacy() *SchemaContext {
	c := *sc
	c.Variant = VariantLegacy
	return &c
}
