package sorter

import (
	"errors"
	"reflect"
	"testing"
)

func TestBubbleSortScenario(t *testing.T) {
	p := NewBubbleSort(NewBuffer([]int{3, 1, 2}))

	s, ok := p.Advance()
	if !ok || s != (Swap{A: 0, B: 1}) {
		t.Fatalf("first advance = %v %v, want 0 ⇄ 1", s, ok)
	}
	if got := p.Snapshot(); !reflect.DeepEqual(got, []int{1, 3, 2}) {
		t.Fatalf("buffer after first swap = %v", got)
	}

	s, ok = p.Advance()
	if !ok || s != (Swap{A: 1, B: 2}) {
		t.Fatalf("second advance = %v %v, want 1 ⇄ 2", s, ok)
	}
	if got := p.Snapshot(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("buffer after second swap = %v", got)
	}

	if s, ok = p.Advance(); ok {
		t.Fatalf("third advance returned %v, want completion", s)
	}
	buf, err := p.Release()
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !buf.IsSorted() {
		t.Fatalf("released buffer is not sorted: %v", buf.Snapshot())
	}
}

func TestSortedInputProducesNoSwaps(t *testing.T) {
	for _, alg := range Algorithms() {
		if alg.Name == NameICantBelieve {
			// Этот алгоритм переставляет элементы даже на упорядоченном входе.
			continue
		}
		p := alg.New(NewBuffer([]int{1, 2, 3}))
		if s, ok := p.Advance(); ok {
			t.Fatalf("%s: got swap %v on sorted input", alg.Name, s)
		}
		if p.Status() != StatusDone {
			t.Fatalf("%s: status = %s, want done", alg.Name, p.Status())
		}
	}
}

func TestICantBelieveSortOnSortedInput(t *testing.T) {
	p := NewICantBelieveSort(NewBuffer([]int{1, 2, 3}))
	got := p.Drain()
	want := []Swap{{0, 1}, {0, 2}, {1, 0}, {2, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("swaps = %v, want %v", got, want)
	}
}

func TestShellSortSingleGapSortedInput(t *testing.T) {
	p := NewShellSort(Sequence(20), 1)
	if swaps := p.Drain(); len(swaps) != 0 {
		t.Fatalf("expected no significant swaps, got %v", swaps)
	}
}

func TestShellSortEmitsOneSwapPerShift(t *testing.T) {
	// [2 0 1] с шагом 1: по одному сдвигу на вставку 0 и 1.
	p := NewShellSort(NewBuffer([]int{2, 0, 1}), 1)
	got := p.Drain()
	want := []Swap{{1, 0}, {2, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("swaps = %v, want %v", got, want)
	}
}

func TestCombSortScenario(t *testing.T) {
	// gap 4 -> 3: (0,3); затем gap 2, 1.
	p := NewCombSort(NewBuffer([]int{3, 2, 1, 0}))
	got := p.Drain()
	want := []Swap{{0, 3}, {1, 2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("swaps = %v, want %v", got, want)
	}
}

func TestCompletionIsTerminal(t *testing.T) {
	p := NewQuickSort(NewBuffer([]int{2, 1}))
	if _, err := p.Release(); !errors.Is(err, ErrNotFinished) {
		t.Fatalf("Release before completion: err = %v, want ErrNotFinished", err)
	}
	p.Drain()
	for i := 0; i < 3; i++ {
		if s, ok := p.Advance(); ok {
			t.Fatalf("advance after completion returned %v", s)
		}
	}
	if p.Swaps() != 1 {
		t.Fatalf("Swaps = %d, want 1", p.Swaps())
	}
}

func TestEmptyAndSingleBuffers(t *testing.T) {
	for _, alg := range Algorithms() {
		for _, data := range [][]int{nil, {0}} {
			p := alg.New(NewBuffer(data))
			if s, ok := p.Advance(); ok {
				t.Fatalf("%s(%v): unexpected swap %v", alg.Name, data, s)
			}
		}
	}
}

type brokenCursor struct{}

func (c *brokenCursor) next(b *Buffer) (Swap, bool) {
	return Swap{}, false
}

func TestUnsortedCompletionPanics(t *testing.T) {
	p := newProducer("broken", NewBuffer([]int{1, 0}), &brokenCursor{})
	defer func() {
		r := recover()
		ie, ok := r.(*InvariantError)
		if !ok {
			t.Fatalf("recover() = %#v, want *InvariantError", r)
		}
		if ie.Algorithm != "broken" || !reflect.DeepEqual(ie.Data, []int{1, 0}) {
			t.Fatalf("unexpected invariant error: %v", ie)
		}
	}()
	p.Advance()
}

func TestBufferState(t *testing.T) {
	b := NewBuffer([]int{2, 0, 1, 3})
	if st := b.State(); st.Sorted || st.Unsorted != 1 {
		t.Fatalf("State = %s, want unsorted(1)", st)
	}
	if s := b.Exchange(1, 1); s.Significant() {
		t.Fatalf("identity exchange reported significant: %v", s)
	}
	b.Apply(Swap{A: 0, B: 2})
	b.Apply(Swap{A: 0, B: 1})
	if st := b.State(); !st.Sorted || st.String() != "sorted" {
		t.Fatalf("State = %s, want sorted", st)
	}
	if got := (Swap{A: 3, B: 7}).String(); got != "3 ⇄ 7" {
		t.Fatalf("Swap.String = %q", got)
	}
}

func TestLookup(t *testing.T) {
	alg, ok := Lookup("quicksort")
	if !ok || alg.Name != NameQuick {
		t.Fatalf("Lookup(quicksort) = %v %v", alg.Name, ok)
	}
	if _, ok := Lookup("bogosort"); ok {
		t.Fatal("Lookup(bogosort) should fail")
	}
	want := []string{NameBubble, NameComb, NameShell, NameICantBelieve, NameQuick}
	if got := Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names = %v", got)
	}
}
