package ops

import (
	"database/sql"
	"fmt"

	"github.com/hpungsan/lpkunpack/internal/db"
	"github.com/hpungsan/lpkunpack/internal/errors"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	Status  string // optional: ok, partial, failed
	Archive string // optional substring of the archive path
	Limit   int    // default: 20, max: 100
	Offset  int    // default: 0
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	Runs       []db.Run   `json:"runs"`
	Pagination Pagination `json:"pagination"`
	Sort       string     `json:"sort"`
}

// History lists recorded runs, newest first.
func History(database *sql.DB, input HistoryInput) (*HistoryOutput, error) {
	if input.Status != "" {
		if err := checkStatus(input.Status); err != nil {
			return nil, err
		}
	}
	limit, offset := clampPage(input.Limit, input.Offset)

	runs, total, err := db.ListRuns(database, db.RunFilter{Status: input.Status, Archive: input.Archive}, limit, offset)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if runs == nil {
		runs = []db.Run{}
	}

	return &HistoryOutput{
		Runs: runs,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(runs) < total,
			Total:   total,
		},
		Sort: "started_at_desc",
	}, nil
}

// RunDetail is one run with its recorded translations.
type RunDetail struct {
	db.Run
	Translations []db.Translation `json:"translations"`
}

// ShowRun retrieves one run and its translation table.
func ShowRun(database *sql.DB, id string) (*RunDetail, error) {
	run, err := db.GetRun(database, id)
	if err != nil {
		return nil, err
	}
	trs, err := db.GetTranslations(database, id)
	if err != nil {
		return nil, err
	}
	if trs == nil {
		trs = []db.Translation{}
	}
	return &RunDetail{Run: *run, Translations: trs}, nil
}

func checkStatus(status string) error {
	switch status {
	case db.StatusOK, db.StatusPartial, db.StatusFailed:
		return nil
	}
	return errors.NewInvalidRequest(fmt.Sprintf("unknown status %q", status))
}
