// Package registry persists the canonical table of all artifacts,
// originals and derived, one row per output path.
package registry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/cardforge/internal/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	full_path TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	filepath TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	augmentation_type TEXT NOT NULL,
	set_name TEXT NOT NULL,
	card_number TEXT NOT NULL,
	variant TEXT NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_artifacts_original ON artifacts(original_filename);
CREATE INDEX IF NOT EXISTS idx_artifacts_set ON artifacts(set_name);
`

// NewDB opens (or creates) the registry database at dbPath and applies
// the schema. A corrupt existing file is moved aside and replaced with a
// fresh database: the registry can always be rebuilt from a full run, so
// corruption is a warning, not a fatal error.
func NewDB(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}

	db, err := open(dbPath)
	if err == nil {
		return db, nil
	}

	if _, statErr := os.Stat(dbPath); statErr != nil {
		return nil, err
	}

	// Existing file that won't open or take the schema: treat as corrupt.
	log.Warn(log.CatDB, "registry unreadable, starting fresh", "path", dbPath, "error", err)
	backup := dbPath + ".corrupt"
	if renameErr := os.Rename(dbPath, backup); renameErr != nil {
		return nil, fmt.Errorf("moving corrupt registry aside: %w", renameErr)
	}
	log.Warn(log.CatDB, "corrupt registry moved", "backup", backup)

	return open(dbPath)
}

func open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging registry: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying registry schema: %w", err)
	}
	log.Debug(log.CatDB, "registry opened", "path", dbPath)
	return db, nil
}
