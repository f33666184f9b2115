package memstore

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/pv/sortmachine-go/internal/storage"
)

func testRun(id string, started time.Time, swaps int) storage.Run {
	run := storage.Run{
		ID:         id,
		Algorithm:  "Bubblesort",
		Initial:    []int{2, 1, 0},
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
	for i := 1; i <= swaps; i++ {
		run.Swaps = append(run.Swaps, storage.SwapEvent{Seq: i, A: i % 2, B: i%2 + 1})
	}
	return run
}

func TestStoreSaveAndList(t *testing.T) {
	ctx := context.Background()
	store := New()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.SaveRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Minute), 3)); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	infos, err := store.Runs(ctx, 2)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(infos) != 2 || infos[0].ID != "c" || infos[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", infos)
	}
	if infos[0].DataCount != 3 || infos[0].SwapCount != 3 {
		t.Fatalf("unexpected counts: %+v", infos[0])
	}

	info, initial, err := store.Initial(ctx, "a")
	if err != nil {
		t.Fatalf("Initial: %v", err)
	}
	if info.ID != "a" || !reflect.DeepEqual(initial, []int{2, 1, 0}) {
		t.Fatalf("Initial = %+v %v", info, initial)
	}
	if _, _, err := store.Initial(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.SaveRun(ctx, storage.Run{}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestStoreStreamWindows(t *testing.T) {
	ctx := context.Background()
	store := New()
	if err := store.SaveRun(ctx, testRun("r", time.Now(), 5)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	dataCh, errCh := store.Stream(ctx, storage.StreamRequest{RunID: "r", From: 2, To: 4, Window: 2})
	var seqs []int
	var chunks int
	for chunk := range dataCh {
		chunks++
		for _, ev := range chunk {
			seqs = append(seqs, ev.Seq)
		}
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if !reflect.DeepEqual(seqs, []int{2, 3, 4}) || chunks != 2 {
		t.Fatalf("seqs = %v in %d chunks", seqs, chunks)
	}

	dataCh, errCh = store.Stream(ctx, storage.StreamRequest{RunID: "r"})
	seqs = seqs[:0]
	for chunk := range dataCh {
		for _, ev := range chunk {
			seqs = append(seqs, ev.Seq)
		}
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(seqs) != 5 {
		t.Fatalf("full stream returned %v", seqs)
	}

	_, errCh = store.Stream(ctx, storage.StreamRequest{RunID: "missing"})
	if err := <-errCh; !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
