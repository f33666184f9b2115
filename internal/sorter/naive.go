package sorter

// NewICantBelieveSort делает двойной полный проход с обменом (i, j), если data[i] < data[j].
func NewICantBelieveSort(buf *Buffer) *Producer {
	return newProducer(NameICantBelieve, buf, &naiveCursor{})
}

type naiveCursor struct {
	i int
	j int
}

func (c *naiveCursor) next(b *Buffer) (Swap, bool) {
	n := b.Len()
	for c.i < n {
		for c.j < n {
			i, j := c.i, c.j
			c.j++
			if b.At(i) < b.At(j) {
				return b.Exchange(i, j), true
			}
		}
		c.i++
		c.j = 0
	}
	return Swap{}, false
}
