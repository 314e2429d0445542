package registry

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/zjrosen/cardforge/internal/log"
	"github.com/zjrosen/cardforge/internal/transform"
)

// artifactColumns is the list of columns to select for artifact queries.
const artifactColumns = `full_path, filename, filepath, original_filename,
	augmentation_type, set_name, card_number, variant, run_id, created_at`

// Repository provides access to the artifact registry.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open registry database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func scanArtifact(scanner interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	err := scanner.Scan(
		&rec.FullPath, &rec.Filename, &rec.Filepath, &rec.OriginalFilename,
		&rec.AugmentationType, &rec.SetName, &rec.CardNumber, &rec.Variant,
		&rec.RunID, &rec.CreatedAt,
	)
	return rec, err
}

// Merge upserts records keyed by full_path. A colliding path keeps the
// incoming row (last write wins), so merging a run's output into the
// canonical registry is idempotent. Returns the number of rows written.
func (r *Repository) Merge(records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting merge transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.Prepare(`
		INSERT INTO artifacts (
			full_path, filename, filepath, original_filename,
			augmentation_type, set_name, card_number, variant, run_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(full_path) DO UPDATE SET
			filename = excluded.filename,
			filepath = excluded.filepath,
			original_filename = excluded.original_filename,
			augmentation_type = excluded.augmentation_type,
			set_name = excluded.set_name,
			card_number = excluded.card_number,
			variant = excluded.variant,
			run_id = excluded.run_id,
			created_at = excluded.created_at`)
	if err != nil {
		return 0, fmt.Errorf("preparing merge statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.Exec(
			rec.FullPath, rec.Filename, rec.Filepath, rec.OriginalFilename,
			rec.AugmentationType, rec.SetName, rec.CardNumber, rec.Variant,
			rec.RunID, createdAt,
		); err != nil {
			return 0, fmt.Errorf("merging row %s: %w", rec.FullPath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing merge: %w", err)
	}

	log.Info(log.CatDB, "registry merged", "rows", len(records))
	return len(records), nil
}

// All returns every registry row ordered by full_path.
func (r *Repository) All() ([]Record, error) {
	rows, err := r.db.Query(`SELECT ` + artifactColumns + ` FROM artifacts ORDER BY full_path`)
	if err != nil {
		return nil, fmt.Errorf("querying artifacts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SourceFor returns the original filename recorded for an output path.
// The second return is false when the path has no registry row.
func (r *Repository) SourceFor(fullPath string) (string, bool, error) {
	row := r.db.QueryRow(`SELECT original_filename FROM artifacts WHERE full_path = ?`, fullPath)

	var original string
	err := row.Scan(&original)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up %s: %w", fullPath, err)
	}
	return original, true, nil
}

// Delete removes the rows for the given output paths. Used by the
// reconciler after deleting orphaned files.
func (r *Repository) Delete(fullPaths []string) error {
	if len(fullPaths) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("starting delete transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`DELETE FROM artifacts WHERE full_path = ?`)
	if err != nil {
		return fmt.Errorf("preparing delete statement: %w", err)
	}
	defer stmt.Close()

	for _, path := range fullPaths {
		if _, err := stmt.Exec(path); err != nil {
			return fmt.Errorf("deleting row %s: %w", path, err)
		}
	}
	return tx.Commit()
}

// Stats aggregates registry counts for reporting. Read-only.
func (r *Repository) Stats() (Stats, error) {
	stats := Stats{
		PerSet:  make(map[string]int),
		PerKind: make(map[string]int),
	}

	rows, err := r.db.Query(`SELECT set_name, augmentation_type, COUNT(*) FROM artifacts GROUP BY set_name, augmentation_type`)
	if err != nil {
		return stats, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var set, kind string
		var n int
		if err := rows.Scan(&set, &kind, &n); err != nil {
			return stats, fmt.Errorf("scanning stats: %w", err)
		}
		stats.Total += n
		stats.PerSet[set] += n
		stats.PerKind[kind] += n
		if kind == transform.KindOriginal {
			stats.Originals += n
		} else {
			stats.Derived += n
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	row := r.db.QueryRow(`SELECT COUNT(DISTINCT set_name || '_' || card_number || '_' || variant) FROM artifacts`)
	if err := row.Scan(&stats.Cards); err != nil {
		return stats, fmt.Errorf("counting cards: %w", err)
	}
	return stats, nil
}

// ExportCSV writes the registry in the historical training-dataset CSV
// layout, ordered by full_path.
func (r *Repository) ExportCSV(w io.Writer) error {
	records, err := r.All()
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{
		"filename", "filepath", "original_filename", "augmentation_type",
		"set_name", "card_number", "variant", "full_path",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Filename, rec.Filepath, rec.OriginalFilename, rec.AugmentationType,
			rec.SetName, rec.CardNumber, rec.Variant, rec.FullPath,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
