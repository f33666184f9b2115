package replay

import (
	"fmt"
	"time"

	"github.com/pv/sortmachine-go/internal/sorter"
)

// EventKind задаёт вариант события проигрывания.
type EventKind int

const (
	EventWait EventKind = iota + 1
	EventReset
	EventSwap
)

func (k EventKind) String() string {
	switch k {
	case EventWait:
		return "wait"
	case EventReset:
		return "reset"
	case EventSwap:
		return "swap"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event описывает одно событие, выдаваемое Controller.Next.
// Wait заполнен для EventWait, Data и Algorithm для EventReset, Swap для EventSwap.
type Event struct {
	Kind      EventKind
	Wait      time.Duration
	Data      []int
	Algorithm string
	Swap      sorter.Swap
}

func WaitEvent(d time.Duration) Event { return Event{Kind: EventWait, Wait: d} }

func ResetEvent(data []int, algorithm string) Event {
	return Event{Kind: EventReset, Data: data, Algorithm: algorithm}
}

func SwapEvent(s sorter.Swap) Event { return Event{Kind: EventSwap, Swap: s} }

func (e Event) String() string {
	switch e.Kind {
	case EventWait:
		return fmt.Sprintf("Wait(%s)", e.Wait)
	case EventReset:
		return fmt.Sprintf("Reset(%s, %d items)", e.Algorithm, len(e.Data))
	case EventSwap:
		return fmt.Sprintf("Swap(%s)", e.Swap)
	default:
		return e.Kind.String()
	}
}
