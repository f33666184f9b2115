package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/pv/sortmachine-go/internal/storage"
)

func sampleRun(id string, started time.Time, swaps int) storage.Run {
	run := storage.Run{
		ID:         id,
		Algorithm:  "Combsort",
		Initial:    []int{3, 0, 2, 1},
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
	}
	for i := 1; i <= swaps; i++ {
		run.Swaps = append(run.Swaps, storage.SwapEvent{Seq: i, A: 0, B: i % 4})
	}
	return run
}

func openStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := New(context.Background(), Config{
		Source:  "sqlite://" + path,
		Pragmas: Pragmas{CacheMB: 8, WAL: true, SyncOff: true, TempMemory: true},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStoreSaveRunsInitialStream(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	if err := store.SaveRun(ctx, sampleRun("first", base, 7)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := store.SaveRun(ctx, sampleRun("second", base.Add(time.Minute), 2)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	infos, err := store.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(infos) != 2 || infos[0].ID != "second" || infos[1].ID != "first" {
		t.Fatalf("unexpected runs: %+v", infos)
	}
	if infos[1].SwapCount != 7 || infos[1].DataCount != 4 {
		t.Fatalf("unexpected counts: %+v", infos[1])
	}
	if !infos[1].StartedAt.Equal(base) {
		t.Fatalf("StartedAt = %s, want %s", infos[1].StartedAt, base)
	}
	if limited, err := store.Runs(ctx, 1); err != nil || len(limited) != 1 {
		t.Fatalf("Runs(1) = %v, %v", limited, err)
	}

	info, initial, err := store.Initial(ctx, "first")
	if err != nil {
		t.Fatalf("Initial: %v", err)
	}
	if info.Algorithm != "Combsort" || !reflect.DeepEqual(initial, []int{3, 0, 2, 1}) {
		t.Fatalf("Initial = %+v %v", info, initial)
	}

	dataCh, errCh := store.Stream(ctx, storage.StreamRequest{RunID: "first", Window: 3})
	var seqs []int
	for chunk := range dataCh {
		if len(chunk) > 3 {
			t.Fatalf("chunk exceeds window: %d", len(chunk))
		}
		for _, ev := range chunk {
			seqs = append(seqs, ev.Seq)
		}
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if !reflect.DeepEqual(seqs, []int{1, 2, 3, 4, 5, 6, 7}) {
		t.Fatalf("seqs = %v", seqs)
	}

	dataCh, errCh = store.Stream(ctx, storage.StreamRequest{RunID: "first", From: 3, To: 4})
	seqs = seqs[:0]
	for chunk := range dataCh {
		for _, ev := range chunk {
			seqs = append(seqs, ev.Seq)
		}
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if !reflect.DeepEqual(seqs, []int{3, 4}) {
		t.Fatalf("bounded seqs = %v", seqs)
	}
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	if _, _, err := store.Initial(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Initial: expected ErrNotFound, got %v", err)
	}
	dataCh, errCh := store.Stream(ctx, storage.StreamRequest{RunID: "nope"})
	for range dataCh {
	}
	if err := <-errCh; !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Stream: expected ErrNotFound, got %v", err)
	}
	if err := store.SaveRun(ctx, storage.Run{}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error on empty source")
	}
}

func TestIsSource(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"sqlite://journal.db", true},
		{"file:journal.db?cache=shared", true},
		{"/tmp/runs.DB", true},
		{":memory:", true},
		{"postgres://localhost/db", false},
		{"clickhouse://localhost", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSource(tt.src); got != tt.want {
			t.Errorf("IsSource(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
	if got := NormalizeSource("sqlite:///tmp/a.db"); got != "/tmp/a.db" {
		t.Fatalf("NormalizeSource = %q", got)
	}
	if got := NormalizeSource("file:a.db"); got != "file:a.db" {
		t.Fatalf("NormalizeSource = %q", got)
	}
}
