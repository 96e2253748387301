package lpk

// TranslationKind says how an entry's output was produced.
type TranslationKind string

const (
	TranslationDocument TranslationKind = "document"
	TranslationAsset    TranslationKind = "asset"
	TranslationVerbatim TranslationKind = "verbatim"
)

// Translation maps one logical entry to its output name.
type Translation struct {
	Entry  string          `json:"entry"`
	Output string          `json:"output"`
	Kind   TranslationKind `json:"kind"`
}

// TranslationTable is the per-pass memo of decrypted entries. An entry
// is registered at most once and never renamed.
type TranslationTable struct {
	order []Translation
	index map[string]int
}

// NewTranslationTable returns an empty table.
func NewTranslationTable() *TranslationTable {
	return &TranslationTable{index: make(map[string]int)}
}

// Lookup returns the output name assigned to entry.
func (t *TranslationTable) Lookup(entry string) (string, bool) {
	i, ok := t.index[entry]
	if !ok {
		return "", false
	}
	return t.order[i].Output, true
}

// Has reports whether entry has been registered.
func (t *TranslationTable) Has(entry string) bool {
	_, ok := t.index[entry]
	return ok
}

// Register records entry → output. It returns false, leaving the table
// unchanged, when entry is already present.
func (t *TranslationTable) Register(entry, output string, kind TranslationKind) bool {
	if t.Has(entry) {
		return false
	}
	t.index[entry] = len(t.order)
	t.order = append(t.order, Translation{Entry: entry, Output: output, Kind: kind})
	return true
}

// Len returns the number of registered entries.
func (t *TranslationTable) Len() int {
	return len(t.order)
}

// Entries returns the translations in registration order.
func (t *TranslationTable) Entries() []Translation {
	out := make([]Translation, len(t.order))
	copy(out, t.order)
	return out
}

// Document is one root configuration document queued for output.
type Document struct {
	Name    string `json:"name"`
	Entry   string `json:"entry"`
	Ordinal int    `json:"ordinal"`

	root *Node
	text string
}

// Text returns the normalized document text before name rewriting.
func (d *Document) Text() string {
	return d.text
}

// DocumentSet is the ordered output document set of one pass.
type DocumentSet struct {
	docs []*Document
}

// Len returns the number of documents; it is also the next ordinal.
func (s *DocumentSet) Len() int {
	return len(s.docs)
}

// Add appends a document.
func (s *DocumentSet) Add(d *Document) {
	s.docs = append(s.docs, d)
}

// All returns the documents in ordinal order.
func (s *DocumentSet) All() []*Document {
	return s.docs
}
