package replay

import (
	"context"
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/pv/sortmachine-go/internal/sorter"
	"github.com/pv/sortmachine-go/internal/storage"
)

// RunSnapshot содержит состояние буфера записанного прогона после Step обменов.
type RunSnapshot struct {
	RunID     string `json:"run_id"`
	Algorithm string `json:"algorithm"`
	Step      int    `json:"step"`
	Total     int    `json:"total"`
	Data      []int  `json:"data"`
	State     string `json:"state"`
}

// Verification содержит результат проверки записанного прогона.
type Verification struct {
	RunID     string `json:"run_id"`
	Algorithm string `json:"algorithm"`
	Swaps     int    `json:"swaps"`
	// Sorted: журнал, применённый к исходной перестановке, даёт отсортированный буфер.
	Sorted bool `json:"sorted"`
	// Reproducible: алгоритм из каталога выдаёт на той же перестановке тот же журнал.
	Reproducible bool `json:"reproducible"`
}

// IsPermutation сообщает, является ли data перестановкой 0..len(data).
func IsPermutation(data []int) bool {
	seen := mapset.NewThreadUnsafeSetWithSize[int](len(data))
	for _, v := range data {
		if v < 0 || v >= len(data) || !seen.Add(v) {
			return false
		}
	}
	return true
}

// BuildState восстанавливает буфер прогона runID после step обменов, не выполняя отправку.
func BuildState(ctx context.Context, store storage.Storage, runID string, step int) (RunSnapshot, error) {
	info, initial, err := loadInitial(ctx, store, runID)
	if err != nil {
		return RunSnapshot{}, err
	}
	if step < 0 || step > info.SwapCount {
		return RunSnapshot{}, fmt.Errorf("replay: step %d is outside range 0-%d", step, info.SwapCount)
	}

	buf := sorter.NewBuffer(initial)
	if step > 0 {
		swaps, err := loadSwaps(ctx, store, runID, step, len(initial))
		if err != nil {
			return RunSnapshot{}, err
		}
		if len(swaps) != step {
			return RunSnapshot{}, fmt.Errorf("replay: run %s: expected %d swaps, got %d", runID, step, len(swaps))
		}
		for _, sw := range swaps {
			buf.Apply(sw)
		}
	}
	return RunSnapshot{
		RunID:     runID,
		Algorithm: info.Algorithm,
		Step:      step,
		Total:     info.SwapCount,
		Data:      buf.Snapshot(),
		State:     buf.State().String(),
	}, nil
}

// AlgorithmLookup находит алгоритм по имени; подходит config.Catalog.ByName.
type AlgorithmLookup func(name string) (sorter.Algorithm, bool)

// VerifyRun проигрывает журнал прогона целиком и сверяет его с алгоритмом из lookup.
// lookup должен совпадать с каталогом, которым прогон был записан; nil означает встроенный реестр.
func VerifyRun(ctx context.Context, store storage.Storage, runID string, lookup AlgorithmLookup) (Verification, error) {
	if lookup == nil {
		lookup = sorter.Lookup
	}
	info, initial, err := loadInitial(ctx, store, runID)
	if err != nil {
		return Verification{}, err
	}
	swaps, err := loadSwaps(ctx, store, runID, 0, len(initial))
	if err != nil {
		return Verification{}, err
	}
	if len(swaps) != info.SwapCount {
		return Verification{}, fmt.Errorf("replay: run %s: expected %d swaps, got %d", runID, info.SwapCount, len(swaps))
	}

	v := Verification{
		RunID:     runID,
		Algorithm: info.Algorithm,
		Swaps:     len(swaps),
		Sorted:    replaySorted(info.Algorithm, initial, swaps),
	}
	if algo, ok := lookup(info.Algorithm); ok {
		expected := algo.New(sorter.NewBuffer(initial)).Drain()
		v.Reproducible = slices.Equal(expected, swaps)
	}
	return v, nil
}

func replaySorted(name string, initial []int, swaps []sorter.Swap) (sorted bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*sorter.InvariantError); !ok {
				panic(r)
			}
			sorted = false
		}
	}()
	sorter.Replay(name, sorter.NewBuffer(initial), swaps).Drain()
	return true
}

func loadInitial(ctx context.Context, store storage.Storage, runID string) (storage.RunInfo, []int, error) {
	if store == nil {
		return storage.RunInfo{}, nil, fmt.Errorf("replay: journal is not configured")
	}
	info, initial, err := store.Initial(ctx, runID)
	if err != nil {
		return storage.RunInfo{}, nil, fmt.Errorf("replay: load run %s: %w", runID, err)
	}
	if !IsPermutation(initial) {
		return storage.RunInfo{}, nil, fmt.Errorf("replay: run %s: initial data is not a permutation", runID)
	}
	return info, initial, nil
}

// loadSwaps читает журнал до Seq == to включительно (0 означает весь журнал)
// и проверяет непрерывность Seq и границы индексов.
func loadSwaps(ctx context.Context, store storage.Storage, runID string, to, size int) ([]sorter.Swap, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dataCh, errCh := store.Stream(ctx, storage.StreamRequest{RunID: runID, From: 1, To: to})
	eventCh, streamErr := fanInSwaps(ctx, dataCh, errCh)

	var swaps []sorter.Swap
	for ev := range eventCh {
		if ev.Seq != len(swaps)+1 {
			return nil, fmt.Errorf("replay: run %s: swap sequence gap at %d", runID, ev.Seq)
		}
		if ev.A < 0 || ev.A >= size || ev.B < 0 || ev.B >= size {
			return nil, fmt.Errorf("replay: run %s: swap %d out of range: %d ⇄ %d", runID, ev.Seq, ev.A, ev.B)
		}
		swaps = append(swaps, sorter.Swap{A: ev.A, B: ev.B})
	}

	select {
	case err := <-streamErr:
		if err != nil {
			return nil, fmt.Errorf("replay: stream run %s: %w", runID, err)
		}
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return swaps, nil
}

func fanInSwaps(ctx context.Context, dataCh <-chan []storage.SwapEvent, errCh <-chan error) (<-chan storage.SwapEvent, <-chan error) {
	eventCh := make(chan storage.SwapEvent, 1024)
	streamErr := make(chan error, 1)

	go func() {
		defer close(eventCh)
		for {
			if dataCh == nil && errCh == nil {
				return
			}
			select {
			case batch, ok := <-dataCh:
				if !ok {
					dataCh = nil
					continue
				}
				for _, ev := range batch {
					select {
					case eventCh <- ev:
					case <-ctx.Done():
						return
					}
				}
			case err, ok := <-errCh:
				if !ok {
					errCh = nil
					continue
				}
				if err != nil {
					streamErr <- err
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return eventCh, streamErr
}
