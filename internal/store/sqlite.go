package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/esg-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn, table string) (*SQLiteStore, error) {
	if table == "" {
		table = DefaultTable
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, table: quoteIdent(table)}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS %[1]s (
	entity_id           TEXT NOT NULL,
	observed_at         TEXT NOT NULL,
	last_processed_at   TEXT NOT NULL DEFAULT '',
	total_score         INTEGER NOT NULL DEFAULT 0,
	environmental_score INTEGER NOT NULL DEFAULT 0,
	social_score        INTEGER NOT NULL DEFAULT 0,
	governance_score    INTEGER NOT NULL DEFAULT 0,
	rating              TEXT NOT NULL DEFAULT '',
	entity_name         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (entity_id, observed_at)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(sqliteMigration, s.table))
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) BatchUpsert(ctx context.Context, records []model.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (entity_id, observed_at) DO UPDATE SET
	last_processed_at = excluded.last_processed_at,
	total_score = excluded.total_score,
	environmental_score = excluded.environmental_score,
	social_score = excluded.social_score,
	governance_score = excluded.governance_score,
	rating = excluded.rating,
	entity_name = excluded.entity_name`, s.table, selectColumns))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.EntityID, r.ObservedAt, r.LastProcessedAt,
			r.TotalScore, r.EnvironmentalScore, r.SocialScore, r.GovernanceScore,
			string(r.Rating), r.EntityName,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert %s", r.Key())
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return len(records), nil
}

func (s *SQLiteStore) ScanPage(ctx context.Context, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		return Page{}, eris.Errorf("sqlite: scan: invalid limit %d", limit)
	}

	var (
		query string
		args  []any
	)
	if cursor == "" {
		query = fmt.Sprintf(`SELECT %s FROM %s ORDER BY entity_id, observed_at LIMIT ?`, selectColumns, s.table)
		args = []any{limit}
	} else {
		after, err := DecodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE (entity_id, observed_at) > (?, ?) ORDER BY entity_id, observed_at LIMIT ?`, selectColumns, s.table)
		args = []any{after.EntityID, after.ObservedAt, limit}
	}

	recs, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return Page{}, eris.Wrap(err, "sqlite: scan page")
	}
	return Page{Records: recs, Cursor: nextCursor(recs, limit)}, nil
}

func (s *SQLiteStore) BatchDelete(ctx context.Context, keys []model.Key) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE entity_id = ? AND observed_at = ?`, s.table))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare delete")
	}
	defer stmt.Close() //nolint:errcheck

	var deleted int64
	for _, k := range keys {
		res, err := stmt.ExecContext(ctx, k.EntityID, k.ObservedAt)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: delete %s", k)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit delete")
	}
	return int(deleted), nil
}

func (s *SQLiteStore) History(ctx context.Context, entityID string) ([]model.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE entity_id = ? ORDER BY observed_at DESC`, selectColumns, s.table)
	recs, err := s.queryRecords(ctx, query, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: history %s", entityID)
	}
	return recs, nil
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var recs []model.Record
	for rows.Next() {
		var (
			r      model.Record
			rating string
		)
		if err := rows.Scan(
			&r.EntityID, &r.ObservedAt, &r.LastProcessedAt,
			&r.TotalScore, &r.EnvironmentalScore, &r.SocialScore, &r.GovernanceScore,
			&rating, &r.EntityName,
		); err != nil {
			return nil, eris.Wrap(err, "scan record")
		}
		r.Rating = model.Rating(rating)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
