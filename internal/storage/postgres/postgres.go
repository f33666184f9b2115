package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pv/sortmachine-go/internal/storage"
)

type Config struct {
	ConnString string
	MaxConns   int32
}

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("postgres: connection string is empty")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := checkTimezone(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// checkTimezone предупреждает, если сервер работает не в UTC. Время прогонов
// хранится как TIMESTAMPTZ, поэтому на данные это не влияет.
func checkTimezone(ctx context.Context, pool *pgxpool.Pool) error {
	var tz string
	if err := pool.QueryRow(ctx, "SHOW timezone").Scan(&tz); err != nil {
		return fmt.Errorf("postgres: failed to check timezone: %w", err)
	}
	if tz != "UTC" && tz != "Etc/UTC" {
		log.Printf("postgres: WARNING: database timezone is %q, expected UTC", tz)
	}
	return nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{createRunsSQL, createSwapsSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) SaveRun(ctx context.Context, run storage.Run) error {
	if run.ID == "" {
		return fmt.Errorf("postgres: run id is empty")
	}
	if s.pool == nil {
		return fmt.Errorf("postgres: store is closed")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertRunSQL,
		run.ID, run.Algorithm, len(run.Initial), len(run.Swaps), toInt64(run.Initial),
		run.StartedAt.UTC(), run.FinishedAt.UTC()); err != nil {
		return fmt.Errorf("postgres: insert run: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"sm_swaps"},
		[]string{"run_id", "seq", "a", "b"},
		pgx.CopyFromSlice(len(run.Swaps), func(i int) ([]any, error) {
			ev := run.Swaps[i]
			return []any{run.ID, int64(ev.Seq), int64(ev.A), int64(ev.B)}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("postgres: copy swaps: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (s *Store) Runs(ctx context.Context, limit int) ([]storage.RunInfo, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres: store is closed")
	}
	var arg any
	if limit > 0 {
		arg = limit
	}
	rows, err := s.pool.Query(ctx, listRunsSQL, arg)
	if err != nil {
		return nil, fmt.Errorf("postgres: runs query: %w", err)
	}
	defer rows.Close()

	var infos []storage.RunInfo
	for rows.Next() {
		var info storage.RunInfo
		var dataCount, swapCount int64
		var started, finished time.Time
		if err := rows.Scan(&info.ID, &info.Algorithm, &dataCount, &swapCount, &started, &finished); err != nil {
			return nil, fmt.Errorf("postgres: runs scan: %w", err)
		}
		info.DataCount = int(dataCount)
		info.SwapCount = int(swapCount)
		info.StartedAt = started.UTC()
		info.FinishedAt = finished.UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *Store) Initial(ctx context.Context, id string) (storage.RunInfo, []int, error) {
	if s.pool == nil {
		return storage.RunInfo{}, nil, fmt.Errorf("postgres: store is closed")
	}
	var info storage.RunInfo
	var dataCount, swapCount int64
	var initial []int64
	var started, finished time.Time
	err := s.pool.QueryRow(ctx, initialSQL, id).Scan(
		&info.ID, &info.Algorithm, &dataCount, &swapCount, &initial, &started, &finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.RunInfo{}, nil, storage.ErrNotFound
	}
	if err != nil {
		return storage.RunInfo{}, nil, fmt.Errorf("postgres: initial query: %w", err)
	}
	info.DataCount = int(dataCount)
	info.SwapCount = int(swapCount)
	info.StartedAt = started.UTC()
	info.FinishedAt = finished.UTC()
	return info, fromInt64(initial), nil
}

func (s *Store) Stream(ctx context.Context, req storage.StreamRequest) (<-chan []storage.SwapEvent, <-chan error) {
	dataCh := make(chan []storage.SwapEvent)
	errCh := make(chan error, 1)

	go func() {
		defer close(dataCh)
		defer close(errCh)

		if s.pool == nil {
			errCh <- fmt.Errorf("postgres: store is closed")
			return
		}
		var total int64
		if err := s.pool.QueryRow(ctx, swapCountSQL, req.RunID).Scan(&total); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				errCh <- storage.ErrNotFound
				return
			}
			errCh <- fmt.Errorf("postgres: run lookup: %w", err)
			return
		}

		if total == 0 {
			return
		}
		req = req.Normalize()
		if req.To == 0 || int64(req.To) > total {
			req.To = int(total)
		}
		cursor := req.From
		for {
			next, ok := req.Next(cursor)
			if !ok {
				return
			}

			rows, err := s.pool.Query(ctx, windowSQL, req.RunID, cursor, next)
			if err != nil {
				errCh <- fmt.Errorf("postgres: window query: %w", err)
				return
			}
			chunk := make([]storage.SwapEvent, 0, next-cursor)
			for rows.Next() {
				var seq, a, b int64
				if err := rows.Scan(&seq, &a, &b); err != nil {
					rows.Close()
					errCh <- fmt.Errorf("postgres: window scan: %w", err)
					return
				}
				chunk = append(chunk, storage.SwapEvent{Seq: int(seq), A: int(a), B: int(b)})
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				errCh <- fmt.Errorf("postgres: rows err: %w", err)
				return
			}

			if len(chunk) > 0 {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case dataCh <- chunk:
				}
			}
			cursor = next
		}
	}()

	return dataCh, errCh
}

func toInt64(values []int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}

func fromInt64(values []int64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}

const createRunsSQL = `
CREATE TABLE IF NOT EXISTS sm_runs (
	id          TEXT PRIMARY KEY,
	algorithm   TEXT NOT NULL,
	data_count  BIGINT NOT NULL,
	swap_count  BIGINT NOT NULL,
	initial     BIGINT[] NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);`

const createSwapsSQL = `
CREATE TABLE IF NOT EXISTS sm_swaps (
	run_id TEXT NOT NULL REFERENCES sm_runs(id) ON DELETE CASCADE,
	seq    BIGINT NOT NULL,
	a      BIGINT NOT NULL,
	b      BIGINT NOT NULL,
	PRIMARY KEY (run_id, seq)
);`

const insertRunSQL = `
INSERT INTO sm_runs (id, algorithm, data_count, swap_count, initial, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

const listRunsSQL = `
SELECT id, algorithm, data_count, swap_count, started_at, finished_at
FROM sm_runs
ORDER BY started_at DESC, id DESC
LIMIT $1;`

const initialSQL = `
SELECT id, algorithm, data_count, swap_count, initial, started_at, finished_at
FROM sm_runs WHERE id = $1;`

const swapCountSQL = `SELECT swap_count FROM sm_runs WHERE id = $1;`

const windowSQL = `
SELECT seq, a, b FROM sm_swaps
WHERE run_id = $1 AND seq >= $2 AND seq < $3
ORDER BY seq;`

func IsPostgresURL(db string) bool {
	return strings.HasPrefix(db, "postgres://") || strings.HasPrefix(db, "postgresql://")
}
