package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pv/sortmachine-go/internal/storage"
)

// Store хранит журнал прогонов в памяти процесса.
type Store struct {
	mu   sync.RWMutex
	runs map[string]storage.Run
}

func New() *Store {
	return &Store{runs: map[string]storage.Run{}}
}

func (s *Store) SaveRun(ctx context.Context, run storage.Run) error {
	if run.ID == "" {
		return fmt.Errorf("memstore: run id is empty")
	}
	run.Initial = append([]int(nil), run.Initial...)
	run.Swaps = append([]storage.SwapEvent(nil), run.Swaps...)
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
	return ctx.Err()
}

func (s *Store) Runs(ctx context.Context, limit int) ([]storage.RunInfo, error) {
	s.mu.RLock()
	infos := make([]storage.RunInfo, 0, len(s.runs))
	for _, run := range s.runs {
		infos = append(infos, run.Info())
	}
	s.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID > infos[j].ID
		}
		return infos[i].StartedAt.After(infos[j].StartedAt)
	})
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, ctx.Err()
}

func (s *Store) Initial(ctx context.Context, id string) (storage.RunInfo, []int, error) {
	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return storage.RunInfo{}, nil, storage.ErrNotFound
	}
	return run.Info(), append([]int(nil), run.Initial...), ctx.Err()
}

func (s *Store) Stream(ctx context.Context, req storage.StreamRequest) (<-chan []storage.SwapEvent, <-chan error) {
	dataCh := make(chan []storage.SwapEvent)
	errCh := make(chan error, 1)

	go func() {
		defer close(dataCh)
		defer close(errCh)

		s.mu.RLock()
		run, ok := s.runs[req.RunID]
		s.mu.RUnlock()
		if !ok {
			errCh <- storage.ErrNotFound
			return
		}

		req = req.Normalize()
		cursor := req.From
		for cursor <= len(run.Swaps) {
			next, ok := req.Next(cursor)
			if !ok {
				return
			}
			if next > len(run.Swaps)+1 {
				next = len(run.Swaps) + 1
			}
			chunk := append([]storage.SwapEvent(nil), run.Swaps[cursor-1:next-1]...)
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case dataCh <- chunk:
			}
			cursor = next
		}
	}()

	return dataCh, errCh
}
