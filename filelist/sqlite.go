package filelist

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const exportBatchSize = 10000

// ExportSQLite writes the catalogue to a SQLite database at path, replacing any existing files table. Inserts are
// batched into transactions to keep large catalogues fast.
func (l *List) ExportSQLite(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("unable to open database %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS files`); err != nil {
		return fmt.Errorf("unable to drop files table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE files (
			fid INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			record_number INTEGER,
			fragment_offset INTEGER,
			filename TEXT
		)
	`); err != nil {
		return fmt.Errorf("unable to create files table: %w", err)
	}

	for start := 0; start < len(l.entries); start += exportBatchSize {
		end := start + exportBatchSize
		if end > len(l.entries) {
			end = len(l.entries)
		}
		if err := exportBatch(ctx, db, l.entries[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func exportBatch(ctx context.Context, db *sql.DB, entries []Entry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO files (record_number, fragment_offset, filename) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("unable to prepare insert: %w", err)
	}
	for _, e := range entries {
		var name interface{}
		if e.Name != "" {
			name = e.Name
		}
		if _, err := stmt.ExecContext(ctx, int64(e.RecordNumber), int64(e.FragmentOffset), name); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("unable to insert record %d: %w", e.RecordNumber, err)
		}
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return fmt.Errorf("unable to close insert statement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit batch: %w", err)
	}
	return nil
}
