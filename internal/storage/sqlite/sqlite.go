package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pv/sortmachine-go/internal/storage"
)

const (
	runsTable  = "sm_runs"
	swapsTable = "sm_swaps"
)

// Pragmas задаёт настройки соединения SQLite, применяемые при открытии.
type Pragmas struct {
	CacheMB    int
	WAL        bool
	SyncOff    bool
	TempMemory bool
}

func (p Pragmas) statements() []string {
	var out []string
	if p.CacheMB > 0 {
		// отрицательное значение cache_size задаётся в KiB
		out = append(out, fmt.Sprintf("PRAGMA cache_size = -%d", p.CacheMB*1024))
	}
	if p.WAL {
		out = append(out, "PRAGMA journal_mode = WAL")
	}
	if p.SyncOff {
		out = append(out, "PRAGMA synchronous = OFF")
	}
	if p.TempMemory {
		out = append(out, "PRAGMA temp_store = MEMORY")
	}
	return out
}

type Config struct {
	Source  string
	Pragmas Pragmas
}

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("sqlite: database path is empty")
	}
	db, err := sql.Open("sqlite", NormalizeSource(cfg.Source))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// :memory: живёт в пределах одного соединения
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	for _, stmt := range cfg.Pragmas.statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", stmt, err)
		}
	}
	store := &Store{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range []string{createRunsSQL, createSwapsSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveRun(ctx context.Context, run storage.Run) error {
	if run.ID == "" {
		return fmt.Errorf("sqlite: run id is empty")
	}
	initial, err := json.Marshal(run.Initial)
	if err != nil {
		return fmt.Errorf("sqlite: encode initial: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertRunSQL,
		run.ID, run.Algorithm, len(run.Initial), len(run.Swaps), string(initial),
		run.StartedAt.UnixMicro(), run.FinishedAt.UnixMicro()); err != nil {
		return fmt.Errorf("sqlite: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSwapSQL)
	if err != nil {
		return fmt.Errorf("sqlite: prepare swaps: %w", err)
	}
	defer stmt.Close()
	for _, ev := range run.Swaps {
		if _, err := stmt.ExecContext(ctx, run.ID, ev.Seq, ev.A, ev.B); err != nil {
			return fmt.Errorf("sqlite: insert swap %d: %w", ev.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *Store) Runs(ctx context.Context, limit int) ([]storage.RunInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: runs query: %w", err)
	}
	defer rows.Close()

	var infos []storage.RunInfo
	for rows.Next() {
		var info storage.RunInfo
		var started, finished int64
		if err := rows.Scan(&info.ID, &info.Algorithm, &info.DataCount, &info.SwapCount, &started, &finished); err != nil {
			return nil, fmt.Errorf("sqlite: runs scan: %w", err)
		}
		info.StartedAt = time.UnixMicro(started).UTC()
		info.FinishedAt = time.UnixMicro(finished).UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *Store) Initial(ctx context.Context, id string) (storage.RunInfo, []int, error) {
	var info storage.RunInfo
	var raw string
	var started, finished int64
	err := s.db.QueryRowContext(ctx, initialSQL, id).Scan(
		&info.ID, &info.Algorithm, &info.DataCount, &info.SwapCount, &raw, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RunInfo{}, nil, storage.ErrNotFound
	}
	if err != nil {
		return storage.RunInfo{}, nil, fmt.Errorf("sqlite: initial query: %w", err)
	}
	var data []int
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return storage.RunInfo{}, nil, fmt.Errorf("sqlite: decode initial: %w", err)
	}
	info.StartedAt = time.UnixMicro(started).UTC()
	info.FinishedAt = time.UnixMicro(finished).UTC()
	return info, data, nil
}

func (s *Store) Stream(ctx context.Context, req storage.StreamRequest) (<-chan []storage.SwapEvent, <-chan error) {
	dataCh := make(chan []storage.SwapEvent)
	errCh := make(chan error, 1)

	go func() {
		defer close(dataCh)
		defer close(errCh)

		var exists int
		if err := s.db.QueryRowContext(ctx, existsSQL, req.RunID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				errCh <- storage.ErrNotFound
				return
			}
			errCh <- fmt.Errorf("sqlite: run lookup: %w", err)
			return
		}

		req = req.Normalize()
		cursor := req.From
		for {
			next, ok := req.Next(cursor)
			if !ok {
				return
			}

			rows, err := s.db.QueryContext(ctx, windowSQL, req.RunID, cursor, next)
			if err != nil {
				errCh <- fmt.Errorf("sqlite: window query: %w", err)
				return
			}
			chunk := make([]storage.SwapEvent, 0, next-cursor)
			for rows.Next() {
				var ev storage.SwapEvent
				if err := rows.Scan(&ev.Seq, &ev.A, &ev.B); err != nil {
					rows.Close()
					errCh <- fmt.Errorf("sqlite: window scan: %w", err)
					return
				}
				chunk = append(chunk, ev)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				errCh <- fmt.Errorf("sqlite: rows err: %w", err)
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
			// Seq непрерывен, неполное окно означает конец журнала
			if len(chunk) < next-cursor {
				return
			}
			cursor = next
		}
	}()

	return dataCh, errCh
}

const createRunsSQL = `
CREATE TABLE IF NOT EXISTS ` + runsTable + ` (
	id          TEXT PRIMARY KEY,
	algorithm   TEXT NOT NULL,
	data_count  INTEGER NOT NULL,
	swap_count  INTEGER NOT NULL,
	initial     TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);`

const createSwapsSQL = `
CREATE TABLE IF NOT EXISTS ` + swapsTable + ` (
	run_id TEXT NOT NULL,
	seq    INTEGER NOT NULL,
	a      INTEGER NOT NULL,
	b      INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);`

const insertRunSQL = `
INSERT INTO ` + runsTable + ` (id, algorithm, data_count, swap_count, initial, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?);`

const insertSwapSQL = `INSERT INTO ` + swapsTable + ` (run_id, seq, a, b) VALUES (?, ?, ?, ?);`

const listRunsSQL = `
SELECT id, algorithm, data_count, swap_count, started_at, finished_at
FROM ` + runsTable + `
ORDER BY started_at DESC, id DESC
LIMIT ?;`

const initialSQL = `
SELECT id, algorithm, data_count, swap_count, initial, started_at, finished_at
FROM ` + runsTable + ` WHERE id = ?;`

const existsSQL = `SELECT 1 FROM ` + runsTable + ` WHERE id = ?;`

const windowSQL = `
SELECT seq, a, b FROM ` + swapsTable + `
WHERE run_id = ? AND seq >= ? AND seq < ?
ORDER BY seq;`

func IsSource(src string) bool {
	if src == "" {
		return false
	}
	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "sqlite://"),
		strings.HasPrefix(lower, "file:"),
		strings.HasSuffix(lower, ".db"),
		src == ":memory:":
		return true
	default:
		return false
	}
}

func NormalizeSource(src string) string {
	if strings.HasPrefix(src, "sqlite://") {
		return strings.TrimPrefix(src, "sqlite://")
	}
	return src
}
