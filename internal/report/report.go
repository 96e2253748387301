// Package report renders per-archive extraction reports as Markdown or
// HTML.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hpungsan/lpkunpack/internal/lpk"
)

// Formats.
const (
	FormatMarkdown = "md"
	FormatHTML     = "html"
	FormatNone     = "none"
)

// Data is everything a report shows about one archive run.
type Data struct {
	RunID      string
	Archive    string
	Digest     string
	Status     string
	Stage      string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Result     *lpk.Result
}

// FileName returns the report file name for format, or "" for none.
func FileName(format string) string {
	switch format {
	case FormatMarkdown:
		return "REPORT.md"
	case FormatHTML:
		return "REPORT.html"
	default:
		return ""
	}
}

// Render produces the report body in the given format.
func Render(format string, d Data) ([]byte, error) {
	md := Markdown(d)
	switch format {
	case FormatMarkdown:
		return []byte(md), nil
	case FormatHTML:
		return HTML(filepath.Base(d.Archive), md)
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// Markdown renders d as a Markdown document.
func Markdown(d Data) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", escape(filepath.Base(d.Archive)))
	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "| %s | %s |\n", k, escape(v))
		}
	}
	row("Run", d.RunID)
	row("Archive", d.Archive)
	row("BLAKE3", d.Digest)
	row("Status", d.Status)
	row("Failed stage", d.Stage)
	row("Error", d.Error)
	if !d.StartedAt.IsZero() {
		row("Started", formatTime(d.StartedAt))
		row("Duration", d.FinishedAt.Sub(d.StartedAt).Round(time.Millisecond).String())
	}

	r := d.Result
	if r == nil {
		return b.String()
	}
	row("Variant", r.Variant)
	row("Package", r.PackageID)
	row("Mode", r.Mode)
	row("Output", r.OutputDir)
	fmt.Fprintf(&b, "| Documents | %d |\n| Assets | %d |\n| Verbatim | %d |\n", r.Documents, r.Assets, r.Verbatim)

	if len(r.Characters) > 0 {
		b.WriteString("\n## Characters\n\n| Name | Directory | Costumes | Skipped | Documents | Assets |\n|---|---|---|---|---|---|\n")
		for _, c := range r.Characters {
			fmt.Fprintf(&b, "| %s | %s | %d | %d | %d | %d |\n",
				escape(c.Name), escape(filepath.Base(c.Dir)), c.Costumes, c.Skipped, len(c.Documents), c.Assets)
		}
	}

	if len(r.Failures) > 0 {
		b.WriteString("\n## Failed entries\n\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "- `%s`: %s\n", f.Entry, f.Error)
		}
	}

	if len(r.Translations) > 0 {
		b.WriteString("\n## Translations\n\n| Entry | Output | Kind |\n|---|---|---|\n")
		for _, tr := range r.Translations {
			fmt.Fprintf(&b, "| `%s` | %s | %s |\n", tr.Entry, escape(tr.Output), tr.Kind)
		}
	}
	return b.String()
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 60rem; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 0.25rem 0.5rem; text-align: left; }
code { font-size: 0.9em; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML converts Markdown to a standalone HTML page using goldmark.
func HTML(title, md string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{title, template.HTML(body.String())})
	if err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}
	return out.Bytes(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// escape keeps a value inside one Markdown table cell.
func escape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
