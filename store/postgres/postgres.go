// Package postgres provides a RunStore backed by PostgreSQL via bun.
// Transcript messages are stored as a jsonb column; one row per run.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/planloop/planloop/core"
	"github.com/planloop/planloop/store"
)

type runRow struct {
	bun.BaseModel `bun:"table:runs,alias:r"`

	RunID       string            `bun:"run_id,pk"`
	Status      string            `bun:"status,notnull"`
	Iterations  int               `bun:"iterations,notnull"`
	FinalAnswer string            `bun:"final_answer"`
	ErrorKind   string            `bun:"error_kind"`
	Messages    []core.Message    `bun:"messages,type:jsonb"`
	StartedAt   time.Time         `bun:"started_at,notnull"`
	FinishedAt  time.Time         `bun:"finished_at,notnull"`
	Metadata    map[string]string `bun:"metadata,type:jsonb"`
}

// Store is a PostgreSQL-backed RunStore.
type Store struct {
	db *bun.DB
}

// Options configures the store connection.
type Options struct {
	// MaxOpenConns caps the pool size; zero keeps the driver default.
	MaxOpenConns int
}

// New connects to PostgreSQL with the given DSN.
func New(dsn string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{}
	for _, f := range optFns {
		f(&opts)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if opts.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(opts.MaxOpenConns)
	}
	return &Store{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

// NewWithDB wraps an existing bun.DB, mainly for tests.
func NewWithDB(db *bun.DB) *Store { return &Store{db: db} }

// Init creates the runs table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*runRow)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

// Save implements store.RunStore with an upsert keyed on run_id.
func (s *Store) Save(ctx context.Context, rec *store.Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("save run: empty run id")
	}
	row := toRow(rec)
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (run_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("iterations = EXCLUDED.iterations").
		Set("final_answer = EXCLUDED.final_answer").
		Set("error_kind = EXCLUDED.error_kind").
		Set("messages = EXCLUDED.messages").
		Set("finished_at = EXCLUDED.finished_at").
		Set("metadata = EXCLUDED.metadata").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	return nil
}

// Get implements store.RunStore.
func (s *Store) Get(ctx context.Context, runID string) (*store.Record, error) {
	row := new(runRow)
	err := s.db.NewSelect().Model(row).Where("run_id = ?", runID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", store.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return fromRow(row), nil
}

// List implements store.RunStore.
func (s *Store) List(ctx context.Context, limit int) ([]*store.Record, error) {
	var rows []runRow
	q := s.db.NewSelect().Model(&rows).Order("finished_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]*store.Record, len(rows))
	for i := range rows {
		out[i] = fromRow(&rows[i])
	}
	return out, nil
}

// Delete implements store.RunStore.
func (s *Store) Delete(ctx context.Context, runID string) error {
	_, err := s.db.NewDelete().Model((*runRow)(nil)).Where("run_id = ?", runID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func toRow(rec *store.Record) *runRow {
	return &runRow{
		RunID:       rec.RunID,
		Status:      string(rec.Status),
		Iterations:  rec.Iterations,
		FinalAnswer: rec.FinalAnswer,
		ErrorKind:   rec.ErrorKind,
		Messages:    rec.Messages,
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
		Metadata:    rec.Metadata,
	}
}

func fromRow(row *runRow) *store.Record {
	return &store.Record{
		RunID:       row.RunID,
		Status:      core.RunStatus(row.Status),
		Iterations:  row.Iterations,
		FinalAnswer: row.FinalAnswer,
		ErrorKind:   row.ErrorKind,
		Messages:    row.Messages,
		StartedAt:   row.StartedAt,
		FinishedAt:  row.FinishedAt,
		Metadata:    row.Metadata,
	}
}

var _ store.RunStore = (*Store)(nil)
