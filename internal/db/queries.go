package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/lpkunpack/internal/errors"
)

// Run statuses.
const (
	StatusOK      = "ok"      // every entry extracted
	StatusPartial = "partial" // fallback run with per-entry failures
	StatusFailed  = "failed"  // archive aborted
)

// Run is one ledger row: the outcome of extracting one archive.
type Run struct {
	ID            string `json:"id"`
	ArchivePath   string `json:"archive_path"`
	ArchiveDigest string `json:"archive_digest,omitempty"`
	Variant       string `json:"variant,omitempty"`
	PackageID     string `json:"package_id,omitempty"`
	Mode          string `json:"mode,omitempty"`
	Status        string `json:"status"`
	FailedStage   string `json:"failed_stage,omitempty"`
	Error         string `json:"error,omitempty"`
	Documents     int    `json:"documents"`
	Assets        int    `json:"assets"`
	Verbatim      int    `json:"verbatim"`
	EntryFailures int    `json:"entry_failures"`
	OutputDir     string `json:"output_dir,omitempty"`
	StartedAt     int64  `json:"started_at"`
	FinishedAt    int64  `json:"finished_at"`
}

// Translation is one recorded entry → output mapping of a run.
type Translation struct {
	Entry  string `json:"entry"`
	Output string `json:"output"`
	Kind   string `json:"kind"`
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Status  string
	Archive string // substring of archive_path
}

const runColumns = `id, archive_path, archive_digest, variant, package_id, mode,
	status, failed_stage, error, documents, assets, verbatim, entry_failures,
	output_dir, started_at, finished_at`

// InsertRun stores a run and its translations in one transaction.
func InsertRun(db *sql.DB, r *Run, translations []Translation) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ArchivePath, toNullString(r.ArchiveDigest), toNullString(r.Variant),
		toNullString(r.PackageID), toNullString(r.Mode), r.Status,
		toNullString(r.FailedStage), toNullString(r.Error),
		r.Documents, r.Assets, r.Verbatim, r.EntryFailures,
		toNullString(r.OutputDir), r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewInvalidRequest("run already recorded: " + r.ID)
		}
		return errors.NewInternal(err)
	}

	if len(translations) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO translations (run_id, seq, entry, output_name, kind) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return errors.NewInternal(err)
		}
		defer stmt.Close()

		for i, tr := range translations {
			if _, err := stmt.Exec(r.ID, i, tr.Entry, tr.Output, tr.Kind); err != nil {
				return errors.NewInternal(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetRun retrieves a run by its ULID.
func GetRun(db *sql.DB, id string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// GetTranslations returns a run's translations in recorded order.
func GetTranslations(db *sql.DB, runID string) ([]Translation, error) {
	rows, err := db.Query(`SELECT entry, output_name, kind FROM translations WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []Translation
	for rows.Next() {
		var tr Translation
		if err := rows.Scan(&tr.Entry, &tr.Output, &tr.Kind); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// ListRuns returns runs newest first, with the total matching count.
func ListRuns(db *sql.DB, filter RunFilter, limit, offset int) ([]Run, int, error) {
	where, args := filter.clause()

	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `SELECT ` + runColumns + ` FROM runs` + where + ` ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return runs, total, nil
}

func (f RunFilter) clause() (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Archive != "" {
		conds = append(conds, "instr(archive_path, ?) > 0")
		args = append(args, f.Archive)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// PurgeRuns deletes runs (and their translations) that finished more than
// olderThanDays ago. A nil olderThanDays purges every run. status, when
// set, restricts the purge to runs with that status.
func PurgeRuns(db *sql.DB, olderThanDays *int, status *string) (int, error) {
	var conds []string
	var args []any
	if olderThanDays != nil {
		cutoff := time.Now().Add(-time.Duration(*olderThanDays) * 24 * time.Hour).Unix()
		conds = append(conds, "finished_at < ?")
		args = append(args, cutoff)
	}
	if status != nil {
		conds = append(conds, "status = ?")
		args = append(args, *status)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM translations WHERE run_id IN (SELECT id FROM runs`+where+`)`, args...); err != nil {
		return 0, errors.NewInternal(err)
	}
	res, err := tx.Exec(`DELETE FROM runs`+where, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a row into a Run.
func scanRun(row scanner) (*Run, error) {
	var r Run
	var digest, variant, pkg, mode, stage, errText, outDir sql.NullString

	err := row.Scan(
		&r.ID, &r.ArchivePath, &digest, &variant, &pkg, &mode,
		&r.Status, &stage, &errText, &r.Documents, &r.Assets, &r.Verbatim, &r.EntryFailures,
		&outDir, &r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	r.ArchiveDigest = digest.String
	r.Variant = variant.String
	r.PackageID = pkg.String
	r.Mode = mode.String
	r.FailedStage = stage.String
	r.Error = errText.String
	r.OutputDir = outDir.String
	return &r, nil
}

// toNullString converts an empty string to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
