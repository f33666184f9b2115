package sorter

import (
	"errors"
	"fmt"
)

// ErrNotFinished возвращается Release, пока алгоритм не завершён.
var ErrNotFinished = errors.New("sorter: producer is not finished")

// Status описывает фазу жизненного цикла Producer.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// InvariantError означает, что алгоритм завершился на неотсортированном буфере.
// Это ошибка в реализации алгоритма, а не во входных данных.
type InvariantError struct {
	Algorithm string
	Data      []int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("sorter: %s finished with unsorted buffer %v", e.Algorithm, e.Data)
}

// cursor хранит возобновляемый обход пространства итераций конкретного алгоритма.
// next выполняет сравнения до ближайшего обмена (возможно, тождественного)
// и возвращает false, когда обход закончен.
type cursor interface {
	next(b *Buffer) (Swap, bool)
}

// Producer выдаёт значимые обмены одного прогона алгоритма по одному за вызов Advance.
// Буфер принадлежит Producer до завершения.
type Producer struct {
	name   string
	buf    *Buffer
	cur    cursor
	status Status
	swaps  int
}

func newProducer(name string, buf *Buffer, cur cursor) *Producer {
	return &Producer{name: name, buf: buf, cur: cur}
}

// Name возвращает имя алгоритма.
func (p *Producer) Name() string { return p.name }

// Status возвращает фазу жизненного цикла.
func (p *Producer) Status() Status { return p.status }

// Swaps возвращает число выданных значимых обменов.
func (p *Producer) Swaps() int { return p.swaps }

// Advance продолжает алгоритм с сохранённой позиции до следующего значимого обмена.
// Тождественные обмены пропускаются внутри. После завершения всегда возвращает false.
// Если по завершении буфер не отсортирован, Advance паникует с *InvariantError.
func (p *Producer) Advance() (Swap, bool) {
	if p.status == StatusDone {
		return Swap{}, false
	}
	p.status = StatusRunning
	for {
		s, ok := p.cur.next(p.buf)
		if !ok {
			p.status = StatusDone
			if !p.buf.IsSorted() {
				panic(&InvariantError{Algorithm: p.name, Data: p.buf.Snapshot()})
			}
			return Swap{}, false
		}
		if s.Significant() {
			p.swaps++
			return s, true
		}
	}
}

// Drain прогоняет алгоритм до конца и возвращает все значимые обмены.
func (p *Producer) Drain() []Swap {
	var out []Swap
	for {
		s, ok := p.Advance()
		if !ok {
			return out
		}
		out = append(out, s)
	}
}

// Snapshot возвращает копию текущего состояния буфера.
func (p *Producer) Snapshot() []int { return p.buf.Snapshot() }

// Release возвращает буфер вызывающему после завершения.
func (p *Producer) Release() (*Buffer, error) {
	if p.status != StatusDone {
		return nil, ErrNotFinished
	}
	return p.buf, nil
}

// Replay создаёт Producer, проигрывающий записанный журнал обменов на buf.
func Replay(name string, buf *Buffer, swaps []Swap) *Producer {
	return newProducer(name, buf, &logCursor{swaps: swaps})
}

type logCursor struct {
	swaps []Swap
	pos   int
}

func (c *logCursor) next(b *Buffer) (Swap, bool) {
	if c.pos >= len(c.swaps) {
		return Swap{}, false
	}
	s := c.swaps[c.pos]
	c.pos++
	return b.Exchange(s.A, s.B), true
}
