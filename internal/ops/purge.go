package ops

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hpungsan/lpkunpack/internal/db"
	"github.com/hpungsan/lpkunpack/internal/errors"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThanDays *int    // optional, only purge runs finished more than N days ago
	Status        *string // optional filter by run status
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge permanently deletes ledger runs and their translations.
func Purge(ctx context.Context, database *sql.DB, input PurgeInput) (*PurgeOutput, error) {
	if ctx.Err() != nil {
		return nil, errors.NewCancelled("purge")
	}
	if input.OlderThanDays != nil && *input.OlderThanDays < 0 {
		return nil, errors.NewInvalidRequest("older_than_days must be non-negative")
	}
	if input.Status != nil {
		if err := checkStatus(*input.Status); err != nil {
			return nil, err
		}
	}

	count, err := db.PurgeRuns(database, input.OlderThanDays, input.Status)
	if err != nil {
		return nil, err
	}

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input.Status, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int, status *string, olderThanDays *int) string {
	if count == 0 {
		return "No runs to purge"
	}

	runWord := "run"
	if count > 1 {
		runWord = "runs"
	}

	msg := fmt.Sprintf("Permanently deleted %d %s", count, runWord)

	if status != nil {
		msg += fmt.Sprintf(" with status %q", *status)
	}

	if olderThanDays != nil {
		msg += fmt.Sprintf(" (finished more than %d days ago)", *olderThanDays)
	}

	return msg
}
