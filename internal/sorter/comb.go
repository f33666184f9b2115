package sorter

import "math"

const combShrink = 1.3

// NewCombSort: сортировка расчёской с коэффициентом сжатия 1.3.
func NewCombSort(buf *Buffer) *Producer {
	return newProducer(NameComb, buf, &combCursor{gap: buf.Len(), swapped: true})
}

type combCursor struct {
	gap     int
	swapped bool
	inPass  bool
	i       int
}

func (c *combCursor) next(b *Buffer) (Swap, bool) {
	n := b.Len()
	for {
		if !c.inPass {
			if c.gap <= 1 && !c.swapped {
				return Swap{}, false
			}
			c.gap = int(math.Floor(float64(c.gap) / combShrink))
			if c.gap < 1 {
				c.gap = 1
			}
			c.swapped = false
			c.i = 0
			c.inPass = true
		}
		for c.i < n-c.gap {
			i := c.i
			c.i++
			if b.At(i) > b.At(i+c.gap) {
				c.swapped = true
				return b.Exchange(i, i+c.gap), true
			}
		}
		c.inPass = false
	}
}
