package sorter

import (
	"fmt"
	"math/rand/v2"
)

// Buffer хранит сортируемый массив фиксированной длины.
// Данные меняет только Exchange.
type Buffer struct {
	data []int
}

// NewBuffer создаёт буфер из копии data.
func NewBuffer(data []int) *Buffer {
	return &Buffer{data: append([]int(nil), data...)}
}

// Sequence создаёт упорядоченную перестановку 0..n.
func Sequence(n int) *Buffer {
	if n < 0 {
		n = 0
	}
	data := make([]int, n)
	for i := range data {
		data[i] = i
	}
	return &Buffer{data: data}
}

// Shuffler перемешивает n элементов через swap (Fisher-Yates).
// *rand.Rand из math/rand и math/rand/v2 удовлетворяет интерфейсу.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

type globalShuffler struct{}

func (globalShuffler) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// GlobalShuffler использует общий несидированный генератор.
var GlobalShuffler Shuffler = globalShuffler{}

// Shuffle возвращает равномерно перемешанную перестановку 0..n.
func Shuffle(n int, src Shuffler) *Buffer {
	if src == nil {
		src = GlobalShuffler
	}
	b := Sequence(n)
	src.Shuffle(len(b.data), func(i, j int) {
		b.data[i], b.data[j] = b.data[j], b.data[i]
	})
	return b
}

func (b *Buffer) Len() int { return len(b.data) }

// At возвращает значение в позиции i.
func (b *Buffer) At(i int) int { return b.data[i] }

// Exchange меняет местами позиции i и j и всегда возвращает описывающий обмен,
// в том числе при i == j.
func (b *Buffer) Exchange(i, j int) Swap {
	b.data[i], b.data[j] = b.data[j], b.data[i]
	return Swap{A: i, B: j}
}

// Apply применяет записанный обмен.
func (b *Buffer) Apply(s Swap) {
	b.Exchange(s.A, s.B)
}

// IsSorted проверяет data[k] <= data[k+1] для всех соседних пар.
func (b *Buffer) IsSorted() bool {
	return b.inversions() == 0
}

func (b *Buffer) inversions() int {
	count := 0
	for k := 1; k < len(b.data); k++ {
		if b.data[k-1] > b.data[k] {
			count++
		}
	}
	return count
}

// State описывает упорядоченность буфера.
type State struct {
	Sorted   bool
	Unsorted int // число соседних пар с нарушенным порядком
}

func (s State) String() string {
	if s.Sorted {
		return "sorted"
	}
	return fmt.Sprintf("unsorted(%d)", s.Unsorted)
}

// State возвращает текущее состояние упорядоченности.
func (b *Buffer) State() State {
	n := b.inversions()
	return State{Sorted: n == 0, Unsorted: n}
}

// Snapshot возвращает копию данных.
func (b *Buffer) Snapshot() []int {
	return append([]int(nil), b.data...)
}

// Clone создаёт независимую копию буфера.
func (b *Buffer) Clone() *Buffer {
	return NewBuffer(b.data)
}
