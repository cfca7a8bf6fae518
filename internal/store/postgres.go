package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-pipeline/internal/db"
	"github.com/sells-group/esg-pipeline/internal/model"
	"github.com/sells-group/esg-pipeline/internal/resilience"
)

var recordColumns = []string{
	"entity_id", "observed_at", "last_processed_at",
	"total_score", "environmental_score", "social_score", "governance_score",
	"rating", "entity_name",
}

var recordKeyColumns = [2]string{"entity_id", "observed_at"}

const selectColumns = "entity_id, observed_at, last_processed_at, total_score, environmental_score, social_score, governance_score, rating, entity_name"

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	table   string
	retry   resilience.RetryConfig
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString, table string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	s := newPostgresStore(pool, table)
	s.closeFn = pool.Close
	return s, nil
}

func newPostgresStore(pool db.Pool, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("store", "postgres")
	return &PostgresStore{pool: pool, table: table, retry: retry}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
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

CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (observed_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	sql := fmt.Sprintf(postgresMigration, db.SanitizeTable(s.table), pgx.Identifier{"idx_" + s.table + "_observed_at"}.Sanitize())
	_, err := s.pool.Exec(ctx, sql)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) BatchUpsert(ctx context.Context, records []model.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{
			r.EntityID, r.ObservedAt, r.LastProcessedAt,
			r.TotalScore, r.EnvironmentalScore, r.SocialScore, r.GovernanceScore,
			string(r.Rating), r.EntityName,
		}
	}
	cfg := db.UpsertConfig{
		Table:        s.table,
		Columns:      recordColumns,
		ConflictKeys: recordKeyColumns[:],
	}
	n, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return db.BulkUpsert(ctx, s.pool, cfg, rows)
	})
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert %d records", len(records))
	}
	zap.L().Debug("postgres: upserted records",
		zap.String("table", s.table),
		zap.Int("records", len(records)),
		zap.Int64("affected", n),
	)
	return len(records), nil
}

func (s *PostgresStore) ScanPage(ctx context.Context, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		return Page{}, eris.Errorf("postgres: scan: invalid limit %d", limit)
	}
	table := db.SanitizeTable(s.table)

	var (
		sql  string
		args []any
	)
	if cursor == "" {
		sql = fmt.Sprintf(`SELECT %s FROM %s ORDER BY entity_id, observed_at LIMIT $1`, selectColumns, table)
		args = []any{limit}
	} else {
		after, err := DecodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		sql = fmt.Sprintf(`SELECT %s FROM %s WHERE (entity_id, observed_at) > ($1, $2) ORDER BY entity_id, observed_at LIMIT $3`, selectColumns, table)
		args = []any{after.EntityID, after.ObservedAt, limit}
	}

	recs, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]model.Record, error) {
		return s.queryRecords(ctx, sql, args...)
	})
	if err != nil {
		return Page{}, eris.Wrap(err, "postgres: scan page")
	}
	return Page{Records: recs, Cursor: nextCursor(recs, limit)}, nil
}

func (s *PostgresStore) BatchDelete(ctx context.Context, keys []model.Key) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ids := make([]string, len(keys))
	dates := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.EntityID
		dates[i] = k.ObservedAt
	}
	n, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return db.DeleteByPairs(ctx, s.pool, s.table, recordKeyColumns, ids, dates)
	})
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: delete %d keys", len(keys))
	}
	return int(n), nil
}

func (s *PostgresStore) History(ctx context.Context, entityID string) ([]model.Record, error) {
	sql := fmt.Sprintf(`SELECT %s FROM %s WHERE entity_id = $1 ORDER BY observed_at DESC`, selectColumns, db.SanitizeTable(s.table))
	recs, err := s.queryRecords(ctx, sql, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: history %s", entityID)
	}
	return recs, nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, sql string, args ...any) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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
