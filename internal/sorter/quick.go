package sorter

// NewQuickSort: быстрая сортировка с разбиением Ломуто, опорный элемент последний.
// Журнал обменов целиком вычисляется заранее на копии буфера и затем проигрывается
// по одному обмену за Advance на исходном буфере.
func NewQuickSort(buf *Buffer) *Producer {
	return Replay(NameQuick, buf, QuickSortSwaps(buf.Snapshot()))
}

// QuickSortSwaps сортирует data на месте и возвращает все обмены в порядке выполнения,
// включая тождественные.
func QuickSortSwaps(data []int) []Swap {
	scratch := &Buffer{data: data}
	var swaps []Swap
	quickSort(scratch, 0, scratch.Len()-1, &swaps)
	return swaps
}

func quickSort(b *Buffer, low, high int, swaps *[]Swap) {
	if low >= high {
		return
	}
	p := partition(b, low, high, swaps)
	quickSort(b, low, p-1, swaps)
	quickSort(b, p+1, high, swaps)
}

func partition(b *Buffer, low, high int, swaps *[]Swap) int {
	pivot := b.At(high)
	i := low
	for j := low; j < high; j++ {
		if b.At(j) < pivot {
			*swaps = append(*swaps, b.Exchange(i, j))
			i++
		}
	}
	*swaps = append(*swaps, b.Exchange(i, high))
	return i
}
