package lpk

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hpungsan/lpkunpack/internal/errors"
	"github.com/hpungsan/lpkunpack/internal/sniff"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Walker discovers, decrypts and translates the reference graph of one
// character pass. It owns its TranslationTable and DocumentSet; neither
// is shared across passes.
type Walker struct {
	c        Container
	sc       *SchemaContext
	dir      string
	prompter Prompter
	logger   *slog.Logger

	table *TranslationTable
	docs  *DocumentSet
	used  map[string]bool

	assets int
}

// NewWalker creates a walker writing into dir.
func NewWalker(c Container, sc *SchemaContext, dir string, prompter Prompter, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Walker{
		c:        c,
		sc:       sc,
		dir:      dir,
		prompter: prompter,
		logger:   logger,
		table:    NewTranslationTable(),
		docs:     &DocumentSet{},
		used:     make(map[string]bool),
	}
}

// Table returns the walker's translation table.
func (w *Walker) Table() *TranslationTable {
	return w.table
}

// Documents returns the root documents discovered so far.
func (w *Walker) Documents() []*Document {
	return w.docs.All()
}

// Assets returns how many asset files were written.
func (w *Walker) Assets() int {
	return w.assets
}

type actionKind int

const (
	actionDocument actionKind = iota
	actionAsset
)

// action is deferred work produced by one field.
type action struct {
	kind  actionKind
	entry string
	field string
}

// frame is one document on the explicit traversal stack.
type frame struct {
	doc     *Document
	fields  []Field
	pos     int
	actions []action
}

// Walk visits the graph rooted at entry. Each sub-document is handled
// before the remaining fields of the document that referenced it, and
// every entry is decrypted at most once, so cycles terminate.
func (w *Walker) Walk(ctx context.Context, entry string) error {
	if w.table.Has(entry) {
		return nil
	}
	root, err := w.openDocument(ctx, entry)
	if err != nil {
		return err
	}
	stack := []*frame{root}

	for len(stack) > 0 {
		if ctx.Err() != nil {
			return errors.NewCancelled("walk")
		}
		top := stack[len(stack)-1]

		if len(top.actions) > 0 {
			a := top.actions[0]
			top.actions = top.actions[1:]

			switch a.kind {
			case actionDocument:
				if w.table.Has(a.entry) {
					w.logger.Debug("document already translated", "entry", a.entry)
					continue
				}
				child, err := w.openDocument(ctx, a.entry)
				if err != nil {
					return err
				}
				stack = append(stack, child)
			case actionAsset:
				if err := w.recoverAsset(a.entry, a.field, top.doc.Ordinal); err != nil {
					return err
				}
			}
			continue
		}

		if top.pos >= len(top.fields) {
			w.logger.Debug("end of model", "entry", top.doc.Entry, "name", top.doc.Name)
			stack = stack[:len(stack)-1]
			continue
		}

		field := top.fields[top.pos]
		top.pos++
		top.actions = w.plan(field)
	}
	return nil
}

// plan classifies one field into deferred document and asset work.
func (w *Walker) plan(field Field) []action {
	val, ok := field.Value.String()
	if !ok {
		return nil
	}
	name := field.Name()
	w.logger.Debug("field", "path", field.Dotted(), "value", val)

	var actions []action
	if isCommandField(name) && val != "" {
		for _, directive := range splitDirectives(val) {
			if hasKeyword(directive, keywordChangeModel) {
				if target := modelSwitchTarget(directive); target != "" {
					actions = append(actions, action{kind: actionDocument, entry: target})
					continue
				}
			}

			entry, found := FindEntry(directive)
			if !found {
				continue
			}
			if hasKeyword(directive, keywordChangeCostume) {
				actions = append(actions, action{kind: actionDocument, entry: entry})
			} else {
				actions = append(actions, action{kind: actionAsset, entry: entry, field: name})
			}
		}
	}

	if IsEntry(val) {
		actions = append(actions, action{kind: actionAsset, entry: val, field: name})
	}
	return actions
}

// openDocument decrypts and parses a root document, assigns it the next
// model name, and registers it.
func (w *Walker) openDocument(ctx context.Context, entry string) (*frame, error) {
	w.logger.Debug("extracting model", "entry", entry)

	plain, err := Recover(ctx, w.c, w.sc, entry, w.prompter, w.logger)
	if err != nil {
		return nil, errors.WithStage(err, errors.StageWalk)
	}

	root, err := ParseNode(bytes.TrimPrefix(plain, utf8BOM))
	if err != nil {
		return nil, errors.NewFatalConfig(errors.StageWalk, fmt.Sprintf("model document %s is not JSON", entry), err)
	}
	text, err := root.MarshalIndent()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	ordinal := w.docs.Len()
	doc := &Document{
		Name:    fmt.Sprintf("model%d.json", ordinal),
		Entry:   entry,
		Ordinal: ordinal,
		root:    root,
		text:    string(text),
	}
	w.docs.Add(doc)
	w.table.Register(entry, doc.Name, TranslationDocument)
	w.used[doc.Name] = true

	return &frame{doc: doc, fields: slices.Collect(Walk(root))}, nil
}

// recoverAsset decrypts a plain asset reference, sniffs its type and
// writes it under a name derived from the field path.
func (w *Walker) recoverAsset(entry, field string, ordinal int) error {
	if w.table.Has(entry) {
		return nil
	}

	raw, err := readLogical(w.c, entry)
	if err != nil {
		return errors.WithStage(err, errors.StageWalk)
	}
	plain, err := w.sc.DecryptEntry(entry, raw)
	if err != nil {
		return err
	}

	suffix := sniff.GuessExtension(plain)
	base := assetBaseName(field, ordinal)
	if containsTraversal(base) || filepath.IsAbs(base) || strings.HasPrefix(base, "/") {
		base = strings.NewReplacer("/", "_", "..", "_").Replace(base)
	}
	name := w.uniqueName(base, suffix)

	path, err := safeJoin(w.dir, name)
	if err != nil {
		return errors.WithStage(err, errors.StageWalk)
	}
	w.logger.Info("recovering", "entry", entry, "output", path)
	if err := writeFileAtomic(path, plain); err != nil {
		return errors.WithStage(err, errors.StageWalk)
	}

	w.table.Register(entry, name, TranslationAsset)
	w.assets++
	return nil
}

// uniqueName returns base+suffix, adding a counter when another entry
// already claimed that name.
func (w *Walker) uniqueName(base, suffix string) string {
	name := base + suffix
	for i := 2; w.used[name]; i++ {
		name = fmt.Sprintf("%s_%d%s", base, i, suffix)
	}
	w.used[name] = true
	return name
}

// Finalize rewrites every translated entry inside the documents and
// writes them to the pass directory. It returns the written paths.
func (w *Walker) Finalize() ([]string, error) {
	translations := w.table.Entries()
	written := make([]string, 0, w.docs.Len())

	for _, doc := range w.docs.All() {
		out := doc.text
		for _, tr := range translations {
			out = strings.ReplaceAll(out, tr.Entry, tr.Output)
		}

		path := filepath.Join(w.dir, doc.Name)
		if err := writeFileAtomic(path, []byte(out)); err != nil {
			return written, errors.WithStage(err, errors.StageFinalize)
		}
		written = append(written, path)
	}
	return written, nil
}
