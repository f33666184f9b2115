package api

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pv/sortmachine-go/internal/output"
	"github.com/pv/sortmachine-go/internal/replay"
	"github.com/pv/sortmachine-go/internal/storage/memstore"
	"github.com/pv/sortmachine-go/pkg/config"
)

func newTestManager(t *testing.T) (*Manager, *EventStreamer) {
	t.Helper()
	streamer := NewEventStreamer()
	svc := replay.Service{
		Output:  output.MultiClient{&output.StdoutClient{Writer: io.Discard}, streamer},
		Journal: memstore.New(),
	}
	mgr := NewManager(svc, config.Default(), Defaults{
		DataCount:    8,
		Step:         time.Millisecond,
		Intermission: time.Millisecond,
		Speed:        1,
	})
	t.Cleanup(mgr.Close)
	return mgr, streamer
}

func TestManagerStartConflictAndStop(t *testing.T) {
	mgr, _ := newTestManager(t)

	if err := mgr.Start(context.Background(), JobParams{}); err != nil {
		t.Fatalf("start returned error: %v", err)
	}
	if err := mgr.Start(context.Background(), JobParams{}); err == nil {
		t.Fatalf("expected conflict on second start")
	}
	if status := mgr.Status().Status; status != "running" {
		t.Fatalf("unexpected status after start: %s", status)
	}
	if err := mgr.Stop(); err != nil {
		t.Fatalf("stop returned error: %v", err)
	}
	require.Eventually(t, func() bool { return mgr.Status().Status == "done" }, 2*time.Second, 5*time.Millisecond)
	if err := mgr.Pause(); err == nil {
		t.Fatalf("expected error for command on finished job")
	}
}

func TestManagerPauseResumeSpeed(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.Pause(); err == nil {
		t.Fatalf("expected error without job")
	}
	if err := mgr.Start(context.Background(), JobParams{Algorithms: "Quicksort"}); err != nil {
		t.Fatalf("start returned error: %v", err)
	}

	if err := mgr.Pause(); err != nil {
		t.Fatalf("pause returned error: %v", err)
	}
	if status := mgr.Status().Status; status != "paused" {
		t.Fatalf("status after pause = %s, want paused", status)
	}
	seq := mgr.Status().Seq
	time.Sleep(20 * time.Millisecond)
	if got := mgr.Status().Seq; got != seq {
		t.Fatalf("events advanced while paused: %d -> %d", seq, got)
	}

	if err := mgr.StepForward(); err != nil {
		t.Fatalf("step forward returned error: %v", err)
	}
	// paused выставляется только после обмена, на котором остановился шаг
	require.Eventually(t, func() bool {
		st := mgr.Status()
		return st.Status == "paused" && st.Seq > seq
	}, 2*time.Second, time.Millisecond)
	stepped := mgr.Status().Seq
	time.Sleep(20 * time.Millisecond)
	if got := mgr.Status().Seq; got != stepped {
		t.Fatalf("events advanced after step: %d -> %d", stepped, got)
	}
	if err := mgr.SetSpeed(0); err == nil {
		t.Fatalf("expected error for zero speed")
	}
	if err := mgr.SetSpeed(4); err != nil {
		t.Fatalf("set speed returned error: %v", err)
	}
	if got := mgr.Status().Params.Speed; got != 4 {
		t.Fatalf("speed = %v, want 4", got)
	}

	if err := mgr.Resume(); err != nil {
		t.Fatalf("resume returned error: %v", err)
	}
	if status := mgr.Status().Status; status != "running" {
		t.Fatalf("status after resume = %s, want running", status)
	}
	if alg := mgr.Status().Params.Algorithms; alg != "Quicksort" {
		t.Fatalf("unexpected algorithms param: %q", alg)
	}
	_ = mgr.Stop()
}

func TestManagerRunsAndJournal(t *testing.T) {
	mgr, streamer := newTestManager(t)
	seed := uint64(42)
	if err := mgr.Start(context.Background(), JobParams{Runs: intPtr(2), Seed: &seed}); err != nil {
		t.Fatalf("start returned error: %v", err)
	}
	require.Eventually(t, func() bool { return mgr.Status().Status == "done" }, 5*time.Second, 5*time.Millisecond)

	st := mgr.Status()
	if st.Runs != 2 || st.LastRun == "" || st.Error != "" {
		t.Fatalf("unexpected status: %+v", st)
	}
	runs, err := mgr.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	for _, run := range runs {
		v, err := mgr.Verify(context.Background(), run.ID)
		require.NoError(t, err)
		require.True(t, v.Sorted && v.Reproducible, "verification: %+v", v)
	}

	// модель стримера совпадает с последним состоянием второго прогона
	snap := streamer.Snapshot()
	require.Equal(t, "Combsort", snap.Algorithm)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, snap.Data)
}

func TestManagerExplicitZeroRunsOverridesDefault(t *testing.T) {
	svc := replay.Service{Output: &output.StdoutClient{Writer: io.Discard}, Journal: memstore.New()}
	mgr := NewManager(svc, nil, Defaults{
		DataCount:    4,
		Step:         time.Millisecond,
		Intermission: time.Millisecond,
		Runs:         1,
	})
	t.Cleanup(mgr.Close)

	require.NoError(t, mgr.Start(context.Background(), JobParams{}))
	require.Eventually(t, func() bool { return mgr.Status().Status == "done" }, 5*time.Second, 5*time.Millisecond)
	st := mgr.Status()
	require.Equal(t, 1, st.Runs)
	require.Equal(t, 1, *st.Params.Runs)

	require.NoError(t, mgr.Start(context.Background(), JobParams{Runs: intPtr(0)}))
	require.Eventually(t, func() bool { return mgr.Status().Runs >= 2 }, 5*time.Second, 5*time.Millisecond)
	st = mgr.Status()
	require.Equal(t, "running", st.Status)
	require.Equal(t, 0, *st.Params.Runs)
	require.NoError(t, mgr.Stop())

	require.Eventually(t, func() bool { return mgr.Status().Status == "done" }, 2*time.Second, 5*time.Millisecond)
	require.Error(t, mgr.Start(context.Background(), JobParams{Runs: intPtr(-1)}))
}

func TestManagerVerifyUsesProfileCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shell_gaps: [3, 1]\n"), 0o644))
	profile, err := config.Load(path)
	require.NoError(t, err)

	svc := replay.Service{Output: &output.StdoutClient{Writer: io.Discard}, Journal: memstore.New()}
	mgr := NewManager(svc, profile, Defaults{
		DataCount:    12,
		Step:         time.Millisecond,
		Intermission: time.Millisecond,
	})
	t.Cleanup(mgr.Close)

	seed := uint64(5)
	require.NoError(t, mgr.Start(context.Background(), JobParams{Algorithms: "Shellsort", Runs: intPtr(2), Seed: &seed}))
	require.Eventually(t, func() bool { return mgr.Status().Status == "done" }, 5*time.Second, 5*time.Millisecond)

	runs, err := mgr.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		v, err := mgr.Verify(context.Background(), run.ID)
		require.NoError(t, err)
		require.True(t, v.Sorted && v.Reproducible, "verification: %+v", v)
	}
}

func intPtr(v int) *int { return &v }

func TestManagerWithoutJournal(t *testing.T) {
	mgr := NewManager(replay.Service{Output: &output.StdoutClient{Writer: io.Discard}}, nil, Defaults{})
	if _, err := mgr.Runs(context.Background(), 1); err == nil {
		t.Fatalf("expected error without journal")
	}
	if _, err := mgr.Snapshot(context.Background(), "x", 0); err == nil {
		t.Fatalf("expected error without journal")
	}
	if _, err := mgr.Verify(context.Background(), "x"); err == nil {
		t.Fatalf("expected error without journal")
	}
	if err := mgr.Start(context.Background(), JobParams{Algorithms: "Heapsort"}); err == nil {
		t.Fatalf("expected error for unknown algorithm")
	}
	if got := len(mgr.Algorithms()); got != 5 {
		t.Fatalf("algorithms = %d, want 5", got)
	}
}
