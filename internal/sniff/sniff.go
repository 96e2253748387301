// Package sniff guesses the file extension of decrypted entry bytes.
package sniff

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// Live2D model data. Checked before the generic table so "moc" never
// loses to a broader signature.
var (
	Moc3 = filetype.NewType("moc3", "application/moc3")
	Moc  = filetype.NewType("moc", "application/moc")
)

type signature struct {
	kind  types.Type
	match func([]byte) bool
}

var modelSignatures = []signature{
	{Moc3, func(buf []byte) bool { return len(buf) > 3 && bytes.HasPrefix(buf, []byte("MOC3")) }},
	{Moc, func(buf []byte) bool { return len(buf) > 3 && bytes.HasPrefix(buf, []byte("moc")) }},
}

func init() {
	for _, sig := range modelSignatures {
		filetype.AddMatcher(sig.kind, sig.match)
	}
}

// JSONExtension is returned for payloads that parse as structured text.
const JSONExtension = ".json"

// GuessExtension returns a dotted extension for data, or "" when the
// content is not recognized.
func GuessExtension(data []byte) string {
	for _, sig := range modelSignatures {
		if sig.match(data) {
			return "." + sig.kind.Extension
		}
	}

	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		return "." + kind.Extension
	}

	if IsStructuredText(data) {
		return JSONExtension
	}
	return ""
}

// IsStructuredText reports whether data is UTF-8 text holding a JSON
// document.
func IsStructuredText(data []byte) bool {
	return utf8.Valid(data) && json.Valid(data)
}
