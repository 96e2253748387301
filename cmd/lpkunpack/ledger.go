package main

import (
	"database/sql"

	"github.com/hpungsan/lpkunpack/internal/config"
	"github.com/hpungsan/lpkunpack/internal/db"
)

// openLedger opens the run ledger under baseDir. It returns a nil
// database when the ledger is disabled.
func openLedger(baseDir string, cfg *config.Config) (*sql.DB, error) {
	if cfg.LedgerDisabled {
		return nil, nil
	}
	database, err := db.Init(baseDir)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(database, cfg)
	return database, nil
}
