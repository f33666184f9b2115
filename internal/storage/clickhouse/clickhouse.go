package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/pv/sortmachine-go/internal/storage"
)

type Config struct {
	DSN string
}

type Store struct {
	conn     ch.Conn
	database string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("clickhouse: DSN is empty")
	}
	parsed, err := url.Parse(normalizeDSN(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("clickhouse: parse DSN: %w", err)
	}
	host := parsed.Host
	if host == "" {
		host = "localhost:9000"
	}
	if !strings.Contains(host, ":") {
		host = net.JoinHostPort(host, "9000")
	}
	database := strings.TrimPrefix(parsed.Path, "/")
	if database == "" {
		database = "default"
	}
	username := parsed.User.Username()
	password, _ := parsed.User.Password()

	conn, err := ch.Open(&ch.Options{
		Addr: []string{host},
		Auth: ch.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse: ping: %w", err)
	}
	store := &Store{conn: conn, database: database}
	if err := store.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Store) table(name string) string {
	return fmt.Sprintf("%s.%s", s.database, name)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range []string{createRunsSQL, createSwapsSQL} {
		if err := s.conn.Exec(ctx, fmt.Sprintf(stmt, s.database)); err != nil {
			return fmt.Errorf("clickhouse: init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveRun(ctx context.Context, run storage.Run) error {
	if run.ID == "" {
		return fmt.Errorf("clickhouse: run id is empty")
	}
	if s.conn == nil {
		return fmt.Errorf("clickhouse: store is closed")
	}

	// журнал пишется первым: прогон без строки в sm_runs не виден в Runs
	if len(run.Swaps) > 0 {
		batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table("sm_swaps"))
		if err != nil {
			return fmt.Errorf("clickhouse: prepare swaps: %w", err)
		}
		for _, ev := range run.Swaps {
			if err := batch.Append(run.ID, int64(ev.Seq), int64(ev.A), int64(ev.B)); err != nil {
				batch.Abort()
				return fmt.Errorf("clickhouse: append swap %d: %w", ev.Seq, err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("clickhouse: send swaps: %w", err)
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table("sm_runs"))
	if err != nil {
		return fmt.Errorf("clickhouse: prepare run: %w", err)
	}
	if err := batch.Append(
		run.ID, run.Algorithm, int64(len(run.Initial)), int64(len(run.Swaps)),
		toInt64(run.Initial), run.StartedAt.UTC(), run.FinishedAt.UTC(),
	); err != nil {
		batch.Abort()
		return fmt.Errorf("clickhouse: append run: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("clickhouse: send run: %w", err)
	}
	return nil
}

func (s *Store) Runs(ctx context.Context, limit int) ([]storage.RunInfo, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("clickhouse: store is closed")
	}
	query := fmt.Sprintf(listRunsSQL, s.table("sm_runs"))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: runs query: %w", err)
	}
	defer rows.Close()

	var infos []storage.RunInfo
	for rows.Next() {
		var info storage.RunInfo
		var dataCount, swapCount int64
		if err := rows.Scan(&info.ID, &info.Algorithm, &dataCount, &swapCount, &info.StartedAt, &info.FinishedAt); err != nil {
			return nil, fmt.Errorf("clickhouse: runs scan: %w", err)
		}
		info.DataCount = int(dataCount)
		info.SwapCount = int(swapCount)
		info.StartedAt = info.StartedAt.UTC()
		info.FinishedAt = info.FinishedAt.UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *Store) Initial(ctx context.Context, id string) (storage.RunInfo, []int, error) {
	if s.conn == nil {
		return storage.RunInfo{}, nil, fmt.Errorf("clickhouse: store is closed")
	}
	var info storage.RunInfo
	var dataCount, swapCount int64
	var initial []int64
	row := s.conn.QueryRow(ctx, fmt.Sprintf(initialSQL, s.table("sm_runs")), ch.Named("id", id))
	err := row.Scan(&info.ID, &info.Algorithm, &dataCount, &swapCount, &initial, &info.StartedAt, &info.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RunInfo{}, nil, storage.ErrNotFound
	}
	if err != nil {
		return storage.RunInfo{}, nil, fmt.Errorf("clickhouse: initial query: %w", err)
	}
	info.DataCount = int(dataCount)
	info.SwapCount = int(swapCount)
	info.StartedAt = info.StartedAt.UTC()
	info.FinishedAt = info.FinishedAt.UTC()
	return info, fromInt64(initial), nil
}

func (s *Store) Stream(ctx context.Context, req storage.StreamRequest) (<-chan []storage.SwapEvent, <-chan error) {
	dataCh := make(chan []storage.SwapEvent)
	errCh := make(chan error, 1)

	go func() {
		defer close(dataCh)
		defer close(errCh)

		info, _, err := s.Initial(ctx, req.RunID)
		if err != nil {
			errCh <- err
			return
		}

		if info.SwapCount == 0 {
			return
		}
		req = req.Normalize()
		if req.To == 0 || req.To > info.SwapCount {
			req.To = info.SwapCount
		}
		query := fmt.Sprintf(windowSQL, s.table("sm_swaps"))
		cursor := req.From
		for {
			next, ok := req.Next(cursor)
			if !ok {
				return
			}

			rows, err := s.conn.Query(ctx, query,
				ch.Named("run", req.RunID), ch.Named("from", int64(cursor)), ch.Named("to", int64(next)))
			if err != nil {
				errCh <- fmt.Errorf("clickhouse: stream query: %w", err)
				return
			}
			batch := make([]storage.SwapEvent, 0, next-cursor)
			for rows.Next() {
				var seq, a, b int64
				if err := rows.Scan(&seq, &a, &b); err != nil {
					rows.Close()
					errCh <- fmt.Errorf("clickhouse: stream scan: %w", err)
					return
				}
				batch = append(batch, storage.SwapEvent{Seq: int(seq), A: int(a), B: int(b)})
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				errCh <- fmt.Errorf("clickhouse: rows err: %w", err)
				return
			}
			if len(batch) > 0 {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case dataCh <- batch:
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
CREATE TABLE IF NOT EXISTS %s.sm_runs (
	id          String,
	algorithm   String,
	data_count  Int64,
	swap_count  Int64,
	initial     Array(Int64),
	started_at  DateTime64(6, 'UTC'),
	finished_at DateTime64(6, 'UTC')
) ENGINE = MergeTree ORDER BY (started_at, id)`

const createSwapsSQL = `
CREATE TABLE IF NOT EXISTS %s.sm_swaps (
	run_id String,
	seq    Int64,
	a      Int64,
	b      Int64
) ENGINE = MergeTree ORDER BY (run_id, seq)`

const listRunsSQL = `
SELECT id, algorithm, data_count, swap_count, started_at, finished_at
FROM %s
ORDER BY started_at DESC, id DESC`

const initialSQL = `
SELECT id, algorithm, data_count, swap_count, initial, started_at, finished_at
FROM %s
WHERE id = @id
LIMIT 1`

const windowSQL = `
SELECT seq, a, b
FROM %s
WHERE run_id = @run AND seq >= @from AND seq < @to
ORDER BY seq`

func IsSource(dsn string) bool {
	if dsn == "" {
		return false
	}
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "clickhouse://") || strings.HasPrefix(lower, "ch://")
}

// normalizeDSN приводит схему ch:// к clickhouse://.
func normalizeDSN(dsn string) string {
	if strings.HasPrefix(strings.ToLower(dsn), "ch://") {
		return "clickhouse://" + dsn[len("ch://"):]
	}
	return dsn
}
