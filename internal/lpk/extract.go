package lpk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hpungsan/lpkunpack/internal/errors"
)

// DefaultVerbatimExts are copied as-is by the fallback extraction.
var DefaultVerbatimExts = []string{".json", ".mlve", ".txt"}

// Extraction modes reported in Result.Mode.
const (
	ModeGraph    = "graph"
	ModeFallback = "fallback"
	ModeVerbatim = "verbatim"
)

// Options configures an Extractor.
type Options struct {
	// Secrets is the workshop secret document. Required for STM_1_0.
	Secrets *Secrets

	// Prompter answers file id questions during key recovery. Nil means
	// no operator is available.
	Prompter Prompter

	Logger *slog.Logger

	// StrictVariants rejects unrecognized types instead of falling back.
	StrictVariants bool

	// ExtraVerbatimExts extends DefaultVerbatimExts for the fallback path.
	ExtraVerbatimExts []string
}

// CharacterResult summarizes one character pass.
type CharacterResult struct {
	Name      string   `json:"name"`
	Dir       string   `json:"dir"`
	Costumes  int      `json:"costumes"`
	Skipped   int      `json:"skipped"`
	Documents []string `json:"documents"`
	Assets    int      `json:"assets"`
}

// EntryFailure records a fallback entry that could not be extracted.
type EntryFailure struct {
	Entry string `json:"entry"`
	Error string `json:"error"`
}

// Result summarizes one archive extraction.
type Result struct {
	Variant      string            `json:"variant"`
	PackageID    string            `json:"package_id"`
	Mode         string            `json:"mode"`
	OutputDir    string            `json:"output_dir"`
	Characters   []CharacterResult `json:"characters,omitempty"`
	Documents    int               `json:"documents"`
	Assets       int               `json:"assets"`
	Verbatim     int               `json:"verbatim"`
	Failures     []EntryFailure    `json:"failures,omitempty"`
	Translations []Translation     `json:"translations,omitempty"`
}

// Extractor drives the extraction of one archive.
type Extractor struct {
	c        Container
	manifest *Manifest
	sc       *SchemaContext
	opts     Options
	logger   *slog.Logger
}

// ReadManifest locates and parses config.mlve in c.
func ReadManifest(c Container) (*Manifest, error) {
	name, ok := c.Resolve(ManifestName)
	if !ok {
		return nil, errors.NewFatalConfig(errors.StageManifest, "failed to retrieve lpk config", nil)
	}
	data, err := c.Read(name)
	if err != nil {
		return nil, errors.NewFatalConfig(errors.StageManifest, "failed to retrieve lpk config", err)
	}
	return ParseManifest(data)
}

// NewExtractor reads the manifest of c and prepares its schema context.
func NewExtractor(c Container, opts Options) (*Extractor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m, err := ReadManifest(c)
	if err != nil {
		return nil, err
	}
	logger.Debug("mlve config", "type", m.Type, "id", m.ID, "characters", len(m.List))

	sc, err := NewSchemaContext(m, opts.Secrets)
	if err != nil {
		return nil, err
	}
	if sc.Variant == VariantWorkshop && opts.Secrets.ID != "" && opts.Secrets.ID != m.ID {
		logger.Warn("secret document id differs from manifest id", "secrets_id", opts.Secrets.ID, "manifest_id", m.ID)
	}

	return &Extractor{c: c, manifest: m, sc: sc, opts: opts, logger: logger}, nil
}

// Manifest returns the parsed manifest.
func (e *Extractor) Manifest() *Manifest {
	return e.manifest
}

// Schema returns the active schema context.
func (e *Extractor) Schema() *SchemaContext {
	return e.sc
}

// Extract writes the archive contents under outDir.
func (e *Extractor) Extract(ctx context.Context, outDir string) (*Result, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create output directory: %w", err))
	}

	res := &Result{
		Variant:   e.manifest.Type,
		PackageID: e.manifest.ID,
		OutputDir: outDir,
	}

	switch e.sc.Variant {
	case VariantStandard, VariantWorkshop:
		res.Mode = ModeGraph
		return res, e.extractGraph(ctx, outDir, res)
	case VariantLegacy:
		return res, e.extractFallback(ctx, e.sc, outDir, res)
	default:
		if e.opts.StrictVariants {
			return nil, errors.NewUnsupportedVariant(e.manifest.Type)
		}
		e.logger.Warn("deprecated/unknown lpk format detected, attempting with STD_1_0 format", "type", e.manifest.Type)
		return res, e.extractFallback(ctx, e.sc.AsLegacy(), outDir, res)
	}
}

// characterName picks the output directory name for a character.
func (e *Extractor) characterName(chara Character) string {
	if e.sc.Variant == VariantWorkshop && e.sc.Title != "" {
		return e.sc.Title
	}
	if chara.Character != "" {
		return chara.Character
	}
	return "character"
}

func (e *Extractor) extractGraph(ctx context.Context, outDir string, res *Result) error {
	usedDirs := make(map[string]bool)

	for _, chara := range e.manifest.List {
		name := e.characterName(chara)
		dirName := SanitizeDirName(name)
		for i := 2; usedDirs[dirName]; i++ {
			dirName = fmt.Sprintf("%s_%d", SanitizeDirName(name), i)
		}
		usedDirs[dirName] = true

		dir := filepath.Join(outDir, dirName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WithStage(err, errors.StageWalk)
		}

		cr := CharacterResult{Name: name, Dir: dir}
		w := NewWalker(e.c, e.sc, dir, e.opts.Prompter, e.logger.With("character", name))

		for i, costume := range chara.Costume {
			if ctx.Err() != nil {
				return errors.NewCancelled("extract")
			}
			if costume.Path == "" {
				cr.Skipped++
				continue
			}
			e.logger.Info("extracting costume", "character", name, "costume", i)

			// Settle the key before walking so a recovered file id
			// applies to every entry of the costume.
			if _, err := Recover(ctx, e.c, e.sc, costume.Path, e.opts.Prompter, e.logger); err != nil {
				return errors.WithStage(err, errors.StageRecovery)
			}
			if err := w.Walk(ctx, costume.Path); err != nil {
				return err
			}
			cr.Costumes++
		}

		docs, err := w.Finalize()
		if err != nil {
			return err
		}
		cr.Documents = docs
		cr.Assets = w.Assets()

		res.Characters = append(res.Characters, cr)
		res.Documents += len(docs)
		res.Assets += w.Assets()
		res.Translations = append(res.Translations, w.Table().Entries()...)
	}
	return nil
}

func (e *Extractor) verbatimExts() map[string]bool {
	exts := make(map[string]bool)
	for _, ext := range slices.Concat(DefaultVerbatimExts, e.opts.ExtraVerbatimExts) {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}
	return exts
}

// extractFallback handles legacy and unrecognized archives. Failures are
// recorded per entry and never abort the run.
func (e *Extractor) extractFallback(ctx context.Context, sc *SchemaContext, outDir string, res *Result) error {
	if e.manifest.EncryptFlag() == "false" {
		res.Mode = ModeVerbatim
		e.logger.Info("lpk is not encrypted, extracting all files")
		for _, name := range e.c.List() {
			if ctx.Err() != nil {
				return errors.NewCancelled("extract")
			}
			if strings.HasSuffix(name, "/") {
				continue
			}
			if _, err := e.c.ExtractVerbatim(name, outDir); err != nil {
				e.recordFailure(res, name, err)
				continue
			}
			res.Verbatim++
			res.Translations = append(res.Translations, Translation{Entry: name, Output: name, Kind: TranslationVerbatim})
		}
		return nil
	}

	res.Mode = ModeFallback
	verbatim := e.verbatimExts()
	for _, name := range e.c.List() {
		if ctx.Err() != nil {
			return errors.NewCancelled("extract")
		}
		ext := strings.ToLower(path.Ext(name))
		if ext == "" {
			continue
		}

		if verbatim[ext] {
			e.logger.Info("extracting", "entry", name)
			if _, err := e.c.ExtractVerbatim(name, outDir); err != nil {
				e.recordFailure(res, name, err)
				continue
			}
			res.Verbatim++
			res.Translations = append(res.Translations, Translation{Entry: name, Output: name, Kind: TranslationVerbatim})
			continue
		}

		e.logger.Info("decrypting", "entry", name)
		if err := e.decryptTo(sc, name, outDir); err != nil {
			e.recordFailure(res, name, err)
			continue
		}
		res.Assets++
		res.Translations = append(res.Translations, Translation{Entry: name, Output: name, Kind: TranslationAsset})
	}
	return nil
}

func (e *Extractor) decryptTo(sc *SchemaContext, name, outDir string) error {
	raw, err := e.c.Read(name)
	if err != nil {
		return err
	}
	plain, err := sc.DecryptEntry(name, raw)
	if err != nil {
		return err
	}
	dest, err := safeJoin(outDir, name)
	if err != nil {
		return err
	}
	return writeFileAtomic(dest, plain)
}

func (e *Extractor) recordFailure(res *Result, name string, err error) {
	perr := errors.NewPerEntry(name, err)
	e.logger.Warn("entry failed", "entry", name, "error", perr.Message)
	res.Failures = append(res.Failures, EntryFailure{Entry: name, Error: perr.Message})
}
