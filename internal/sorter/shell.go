package sorter

// DefaultShellGaps задаёт шаги Шелла. Шаг >= длины буфера даёт пустой проход.
var DefaultShellGaps = []int{57, 23, 10, 4, 1}

// NewShellSort: сортировка Шелла, где каждый сдвиг вставки выполняется отдельным обменом.
// Без gaps используется DefaultShellGaps.
func NewShellSort(buf *Buffer, gaps ...int) *Producer {
	if len(gaps) == 0 {
		gaps = DefaultShellGaps
	}
	return newProducer(NameShell, buf, &shellCursor{gaps: append([]int(nil), gaps...)})
}

type shellCursor struct {
	gaps []int
	g    int

	started  bool // i инициализирован для текущего шага
	shifting bool // идёт вставка элемента i
	i        int
	j        int
	temp     int
	tempIdx  int
}

func (c *shellCursor) next(b *Buffer) (Swap, bool) {
	n := b.Len()
	for c.g < len(c.gaps) {
		gap := c.gaps[c.g]
		if !c.started {
			c.i = gap
			c.started = true
		}
		if c.i < n {
			if !c.shifting {
				c.temp = b.At(c.i)
				c.tempIdx = c.i
				c.j = c.i
				c.shifting = true
			}
			if c.j >= gap && b.At(c.j-gap) > c.temp {
				c.tempIdx = c.j - gap
				s := b.Exchange(c.j, c.tempIdx)
				c.j -= gap
				return s, true
			}
			// Завершающий обмен элемента; после сдвигов j == tempIdx.
			s := b.Exchange(c.j, c.tempIdx)
			c.shifting = false
			c.i++
			return s, true
		}
		c.g++
		c.started = false
	}
	return Swap{}, false
}
