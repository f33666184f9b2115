package sorter

// NewBubbleSort делает len полных проходов по соседним парам без раннего выхода.
func NewBubbleSort(buf *Buffer) *Producer {
	return newProducer(NameBubble, buf, &bubbleCursor{j: 1})
}

type bubbleCursor struct {
	pass int
	j    int
}

func (c *bubbleCursor) next(b *Buffer) (Swap, bool) {
	n := b.Len()
	for c.pass < n {
		for c.j < n {
			j := c.j
			c.j++
			if b.At(j-1) > b.At(j) {
				return b.Exchange(j-1, j), true
			}
		}
		c.pass++
		c.j = 1
	}
	return Swap{}, false
}
