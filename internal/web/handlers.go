package web

import (
	"database/sql"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hpungsan/lpkunpack/internal/db"
	"github.com/hpungsan/lpkunpack/internal/errors"
	"github.com/hpungsan/lpkunpack/internal/ops"
	"github.com/hpungsan/lpkunpack/internal/report"
)

// Handlers contains HTTP route handlers for the ledger browser.
type Handlers struct {
	db       *sql.DB
	renderer *Renderer
}

// HandleRuns handles GET /runs, the newest-first run list.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	archive := r.URL.Query().Get("archive")

	result, err := ops.History(h.db, ops.HistoryInput{
		Status:  status,
		Archive: archive,
		Limit:   parseIntParam(r, "limit", ops.DefaultHistoryLimit),
		Offset:  parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "runs", RunsPageData{
		PageData:   PageData{Title: "Runs", Version: h.renderer.version},
		Runs:       result.Runs,
		Pagination: result.Pagination,
		Status:     status,
		Archive:    archive,
	})
}

// HandleRun handles GET /runs/{id}, one run with its translation table.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("run ID is required"))
		return
	}

	run, err := ops.ShowRun(h.db, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, run)
		return
	}

	h.renderer.renderPage(w, "run", RunPageData{
		PageData:     PageData{Title: displayName(run.Run), Version: h.renderer.version},
		Run:          run,
		RenderedHTML: loadReport(run.OutputDir),
	})
}

// HandlePurge handles POST /runs/purge.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	input := ops.PurgeInput{
		Status: ptrString(r.FormValue("status")),
	}
	if days := r.FormValue("older_than_days"); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("older_than_days must be an integer"))
			return
		}
		input.OlderThanDays = &d
	}

	result, err := ops.Purge(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/runs", http.StatusFound)
}

// maxReportSize bounds the Markdown report read from an output directory.
const maxReportSize = 1 << 20

// loadReport renders the Markdown report written next to a run's output,
// or returns "" when there is none.
func loadReport(outputDir string) template.HTML {
	if outputDir == "" {
		return ""
	}
	path := filepath.Join(outputDir, report.FileName(report.FormatMarkdown))
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() > maxReportSize {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return renderMarkdown(data)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// ptrString returns a pointer to s if non-empty, nil otherwise.
func ptrString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// displayName returns the archive file name of a run, or its ID.
func displayName(run db.Run) string {
	if run.ArchivePath == "" {
		return run.ID
	}
	if i := strings.LastIndexAny(run.ArchivePath, `/\`); i >= 0 {
		return run.ArchivePath[i+1:]
	}
	return run.ArchivePath
}
