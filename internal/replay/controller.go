package replay

import (
	"fmt"
	"time"

	"github.com/pv/sortmachine-go/internal/sorter"
)

const (
	DefaultDataCount    = 100
	DefaultStep         = 80 * time.Millisecond
	DefaultIntermission = 3 * time.Second
)

// ControllerParams задаёт параметры цикла проигрывания.
// Нулевые значения заменяются значениями по умолчанию, поэтому пустую
// перестановку через DataCount задать нельзя.
type ControllerParams struct {
	DataCount    int                // 0: DefaultDataCount
	Step         time.Duration      // 0: DefaultStep
	Intermission time.Duration      // 0: DefaultIntermission
	Algorithms   []sorter.Algorithm // пусто: весь реестр
	Shuffler     sorter.Shuffler    // nil: GlobalShuffler
}

type phase int

const (
	phaseShuffle phase = iota
	phaseReset
	phaseSettle
	phaseSwap
	phaseStep
)

// Controller крутит бесконечный цикл проигрывания алгоритмов по очереди.
// Каждый вызов Next возвращает ровно одно событие; сам контроллер не ждёт.
type Controller struct {
	params   ControllerParams
	index    int
	cycles   int
	phase    phase
	initial  []int
	producer *sorter.Producer
}

func NewController(params ControllerParams) (*Controller, error) {
	if params.DataCount < 0 {
		return nil, fmt.Errorf("replay: data count must be >= 0, got %d", params.DataCount)
	}
	if params.Step < 0 || params.Intermission < 0 {
		return nil, fmt.Errorf("replay: durations must be >= 0")
	}
	if params.DataCount == 0 {
		params.DataCount = DefaultDataCount
	}
	if params.Step == 0 {
		params.Step = DefaultStep
	}
	if params.Intermission == 0 {
		params.Intermission = DefaultIntermission
	}
	if len(params.Algorithms) == 0 {
		params.Algorithms = sorter.Algorithms()
	} else {
		params.Algorithms = append([]sorter.Algorithm(nil), params.Algorithms...)
	}
	if params.Shuffler == nil {
		params.Shuffler = sorter.GlobalShuffler
	}
	return &Controller{params: params}, nil
}

// Params возвращает параметры с применёнными значениями по умолчанию.
func (c *Controller) Params() ControllerParams { return c.params }

// Next продвигает цикл на одно событие:
// Wait(intermission), Reset, Wait(intermission), затем пары Swap и Wait(step)
// до завершения алгоритма, после чего выбирается следующий алгоритм.
func (c *Controller) Next() Event {
	switch c.phase {
	case phaseShuffle:
		algo := c.params.Algorithms[c.index]
		buf := sorter.Shuffle(c.params.DataCount, c.params.Shuffler)
		c.initial = buf.Snapshot()
		c.producer = algo.New(buf)
		c.phase = phaseReset
		return WaitEvent(c.params.Intermission)
	case phaseReset:
		c.phase = phaseSettle
		return ResetEvent(append([]int(nil), c.initial...), c.producer.Name())
	case phaseSettle:
		c.phase = phaseSwap
		return WaitEvent(c.params.Intermission)
	case phaseStep:
		c.phase = phaseSwap
		return WaitEvent(c.params.Step)
	default:
		if s, ok := c.producer.Advance(); ok {
			c.phase = phaseStep
			return SwapEvent(s)
		}
		c.index = (c.index + 1) % len(c.params.Algorithms)
		c.cycles++
		c.phase = phaseShuffle
		return c.Next()
	}
}

// AlgorithmIndex возвращает индекс текущего алгоритма в ротации.
func (c *Controller) AlgorithmIndex() int { return c.index }

// Cycles возвращает число завершённых прогонов алгоритмов.
func (c *Controller) Cycles() int { return c.cycles }

// Algorithm возвращает имя текущего алгоритма.
func (c *Controller) Algorithm() string { return c.params.Algorithms[c.index].Name }

// Current возвращает имя текущего алгоритма и состояние буфера.
// До первого Reset буфер пуст.
func (c *Controller) Current() (string, []int) {
	name := c.Algorithm()
	if c.producer == nil || c.phase == phaseShuffle {
		return name, nil
	}
	return name, c.producer.Snapshot()
}
