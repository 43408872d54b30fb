// Package postgres upserts knowledge base records into Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
)

const defaultTable = "job_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RecordStoreConfig controls the Postgres connection pool used for job rows.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RecordStore writes job records into Postgres, one row per dedup key.
type RecordStore struct {
	pool  txPool
	table string
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := resolveTable(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool txPool, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	t, err := resolveTable(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: pool, table: t}, nil
}

func resolveTable(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the records table when it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	job_title     TEXT NOT NULL,
	organization  TEXT NOT NULL,
	location      TEXT NOT NULL,
	salary        TEXT NOT NULL,
	experience    TEXT NOT NULL,
	qualification TEXT NOT NULL,
	tags          JSONB NOT NULL DEFAULT '[]',
	age_limit     TEXT NOT NULL,
	vacancies     TEXT NOT NULL,
	category      TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	extracted_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (job_title, organization, location)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// UpsertRecords writes records in a single transaction. A row that already
// exists for the same (job_title, organization, location) is overwritten.
func (s *RecordStore) UpsertRecords(ctx context.Context, runID string, extractedAt time.Time, records []crawler.JobRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`
INSERT INTO %s (
	job_title, organization, location, salary, experience, qualification,
	tags, age_limit, vacancies, category, run_id, extracted_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (job_title, organization, location) DO UPDATE SET
	salary = EXCLUDED.salary,
	experience = EXCLUDED.experience,
	qualification = EXCLUDED.qualification,
	tags = EXCLUDED.tags,
	age_limit = EXCLUDED.age_limit,
	vacancies = EXCLUDED.vacancies,
	category = EXCLUDED.category,
	run_id = EXCLUDED.run_id,
	extracted_at = EXCLUDED.extracted_at`, s.table)

	for _, rec := range records {
		tags := rec.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		if _, err := tx.Exec(ctx, query,
			rec.JobTitle,
			rec.Organization,
			rec.Location,
			rec.Salary,
			rec.Experience,
			rec.Qualification,
			tagsJSON,
			rec.AgeLimit,
			rec.Vacancies,
			rec.Category,
			runID,
			extractedAt,
		); err != nil {
			return fmt.Errorf("upsert %q: %w", rec.JobTitle, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
