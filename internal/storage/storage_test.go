package storage

import "testing"

func TestStreamRequestWindows(t *testing.T) {
	req := StreamRequest{From: 0, To: 5, Window: 2}.Normalize()
	if req.From != 1 {
		t.Fatalf("From = %d, want 1", req.From)
	}
	var windows [][2]int
	cursor := req.From
	for {
		next, ok := req.Next(cursor)
		if !ok {
			break
		}
		windows = append(windows, [2]int{cursor, next})
		cursor = next
	}
	want := [][2]int{{1, 3}, {3, 5}, {5, 6}}
	if len(windows) != len(want) {
		t.Fatalf("windows = %v, want %v", windows, want)
	}
	for i := range want {
		if windows[i] != want[i] {
			t.Fatalf("windows = %v, want %v", windows, want)
		}
	}
}

func TestStreamRequestDefaults(t *testing.T) {
	req := StreamRequest{}.Normalize()
	if req.Window != DefaultWindow {
		t.Fatalf("Window = %d, want %d", req.Window, DefaultWindow)
	}
	if next, ok := req.Next(1); !ok || next != 1+DefaultWindow {
		t.Fatalf("Next(1) = %d %v", next, ok)
	}
}
