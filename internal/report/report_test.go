package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/lpkunpack/internal/lpk"
)

func sampleData() Data {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Data{
		RunID:      "01RUN",
		Archive:    "/archives/hero|1.lpk",
		Digest:     "abc",
		Status:     "ok",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Result: &lpk.Result{
			Variant:   "STD2_0",
			PackageID: "pkg001",
			Mode:      lpk.ModeGraph,
			OutputDir: "/out/hero",
			Characters: []lpk.CharacterResult{
				{Name: "Alice", Dir: "/out/hero/Alice", Costumes: 2, Skipped: 1, Documents: []string{"a", "b"}, Assets: 3},
			},
			Documents: 2,
			Assets:    3,
			Failures:  []lpk.EntryFailure{{Entry: "x.png", Error: "boom"}},
			Translations: []lpk.Translation{
				{Entry: "e.bin3", Output: "model0.json", Kind: lpk.TranslationDocument},
			},
		},
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleData())

	assert.True(t, strings.HasPrefix(md, `# hero\|1.lpk`))
	assert.Contains(t, md, "| Status | ok |")
	assert.Contains(t, md, "| Duration | 1.5s |")
	assert.Contains(t, md, "| Alice | Alice | 2 | 1 | 2 | 3 |")
	assert.Contains(t, md, "- `x.png`: boom")
	assert.Contains(t, md, "| `e.bin3` | model0.json | document |")
}

func TestMarkdown_FailedRunWithoutResult(t *testing.T) {
	md := Markdown(Data{Archive: "/a.lpk", Status: "failed", Stage: "manifest", Error: "no config"})

	assert.Contains(t, md, "| Failed stage | manifest |")
	assert.NotContains(t, md, "## Translations")
}

func TestRender(t *testing.T) {
	out, err := Render(FormatMarkdown, sampleData())
	require.NoError(t, err)
	assert.Contains(t, string(out), "## Characters")

	out, err = Render(FormatHTML, sampleData())
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<h2>Characters</h2>")
	assert.Contains(t, html, "<title>hero|1.lpk</title>")

	_, err = Render("pdf", sampleData())
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "REPORT.md", FileName(FormatMarkdown))
	assert.Equal(t, "REPORT.html", FileName(FormatHTML))
	assert.Equal(t, "", FileName(FormatNone))
}
