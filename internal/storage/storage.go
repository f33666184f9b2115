package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultWindow задаёт число обменов в одной порции потока по умолчанию.
const DefaultWindow = 256

// ErrNotFound возвращается, если прогон с указанным ID отсутствует.
var ErrNotFound = errors.New("storage: run not found")

// SwapEvent описывает один значимый обмен прогона. Seq начинается с 1.
type SwapEvent struct {
	Seq int
	A   int
	B   int
}

// Run хранит завершённый прогон алгоритма: исходная перестановка и журнал обменов.
type Run struct {
	ID         string
	Algorithm  string
	Initial    []int
	Swaps      []SwapEvent
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunInfo содержит метаданные прогона без журнала.
type RunInfo struct {
	ID         string    `json:"id"`
	Algorithm  string    `json:"algorithm"`
	DataCount  int       `json:"data_count"`
	SwapCount  int       `json:"swap_count"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Info возвращает метаданные прогона.
func (r Run) Info() RunInfo {
	return RunInfo{
		ID:         r.ID,
		Algorithm:  r.Algorithm,
		DataCount:  len(r.Initial),
		SwapCount:  len(r.Swaps),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// StreamRequest задаёт параметры подгрузки журнала обменов.
// From и To задают границы Seq включительно; To == 0 означает «до конца».
type StreamRequest struct {
	RunID  string
	From   int
	To     int
	Window int
}

// Normalize приводит границы и окно к рабочим значениям.
func (r StreamRequest) Normalize() StreamRequest {
	if r.From < 1 {
		r.From = 1
	}
	if r.Window <= 0 {
		r.Window = DefaultWindow
	}
	return r
}

// Next возвращает конец (не включительно) окна, начинающегося с cursor,
// и false, если окно пусто.
func (r StreamRequest) Next(cursor int) (int, bool) {
	if r.To > 0 && cursor > r.To {
		return cursor, false
	}
	next := cursor + r.Window
	if r.To > 0 && next > r.To+1 {
		next = r.To + 1
	}
	return next, next > cursor
}

// Storage хранит журнал прогонов (memstore, SQLite, Postgres, ClickHouse).
type Storage interface {
	// SaveRun сохраняет завершённый прогон целиком.
	SaveRun(ctx context.Context, run Run) error
	// Runs возвращает последние прогоны, новые первыми. limit <= 0 без ограничения.
	Runs(ctx context.Context, limit int) ([]RunInfo, error)
	// Initial возвращает метаданные и исходную перестановку прогона.
	Initial(ctx context.Context, id string) (RunInfo, []int, error)
	// Stream запускает потоковую подгрузку журнала обменов порциями по Seq.
	Stream(ctx context.Context, req StreamRequest) (<-chan []SwapEvent, <-chan error)
}
