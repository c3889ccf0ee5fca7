// Package runstore archives finished runs in Postgres. The artifact file is
// the debugging surface; the store is the queryable history of what ran and
// how it ended.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
	statex "github.com/YenAle-FT-Gmail/yensense/pipeline/state"
)

type Config struct {
	DSN string `envconfig:"DSN"`
}

// Enabled reports whether archiving is configured at all; an empty DSN means
// the store is skipped, not an error.
func (c Config) Enabled() bool { return c.DSN != "" }

// RunRecord is one archived pipeline run.
type RunRecord struct {
	bun.BaseModel `bun:"table:pipeline_runs"`

	ID          string          `bun:"id,pk"`
	RunDate     time.Time       `bun:"run_date,notnull"`
	Status      string          `bun:"status,notnull"`
	FailedStage string          `bun:"failed_stage,nullzero"`
	Artifact    json.RawMessage `bun:"artifact,type:jsonb,notnull"`
	CreatedAt   time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type Store struct {
	db *bun.DB
}

func New(cfg Config) (*Store, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: run store DSN is empty", contractx.ErrValidation)
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	return &Store{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

// Init creates the runs table when absent.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*RunRecord)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create pipeline_runs table: %w", err)
	}
	return nil
}

// newRunRecord freezes one run into its archived form. failedStage is empty
// on success.
func newRunRecord(pc *statex.Context, status string, failedStage string) (*RunRecord, error) {
	payload, err := json.Marshal(statex.Artifact{
		Context: pc.Values(),
		Log:     pc.Log(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal run artifact: %w", err)
	}
	return &RunRecord{
		ID:          pc.RunID,
		RunDate:     pc.RunDate,
		Status:      status,
		FailedStage: failedStage,
		Artifact:    payload,
	}, nil
}

// Archive stores the outcome of one run.
func (s *Store) Archive(ctx context.Context, pc *statex.Context, status string, failedStage string) error {
	record, err := newRunRecord(pc, status, failedStage)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var records []RunRecord
	err := s.db.NewSelect().Model(&records).Order("created_at DESC").Limit(limit).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select run records: %w", err)
	}
	return records, nil
}

func (s *Store) Close() error { return s.db.Close() }
