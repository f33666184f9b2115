package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pv/sortmachine-go/internal/output"
	"github.com/pv/sortmachine-go/internal/sorter"
	"github.com/pv/sortmachine-go/internal/storage"
)

// Params описывает настройки воспроизведения.
type Params struct {
	// DataCount, Step и Intermission: 0 означает значение по умолчанию контроллера.
	DataCount    int
	Step         time.Duration
	Intermission time.Duration
	Algorithms   []sorter.Algorithm
	Shuffler     sorter.Shuffler
	// Speed масштабирует паузы: 2 вдвое быстрее. 0 означает 1.
	Speed float64
	// Runs: число завершённых прогонов до остановки, 0 без ограничения.
	Runs int
}

func (p Params) controllerParams() ControllerParams {
	return ControllerParams{
		DataCount:    p.DataCount,
		Step:         p.Step,
		Intermission: p.Intermission,
		Algorithms:   p.Algorithms,
		Shuffler:     p.Shuffler,
	}
}

// Service связывает Controller, output и журнал прогонов.
type Service struct {
	Output output.Client
	// Journal необязателен; без него прогоны не сохраняются.
	Journal storage.Storage
}

// Run запускает цикл воспроизведения.
func (s *Service) Run(ctx context.Context, params Params) error {
	return s.run(ctx, params, nil)
}

// RunWithControl запускает цикл воспроизведения с возможностью паузы/шагов.
func (s *Service) RunWithControl(ctx context.Context, params Params, ctrl Control) error {
	return s.run(ctx, params, &ctrl)
}

type runRecord struct {
	algorithm string
	initial   []int
	swaps     []storage.SwapEvent
	started   time.Time
}

func (s *Service) run(ctx context.Context, params Params, ctrl *Control) (err error) {
	if s.Output == nil {
		return fmt.Errorf("replay: output must be set")
	}
	if params.Speed < 0 {
		return fmt.Errorf("replay: speed must be >= 0")
	}
	if params.Runs < 0 {
		return fmt.Errorf("replay: runs must be >= 0")
	}
	c, err := NewController(params.controllerParams())
	if err != nil {
		return err
	}

	// Несортированный результат означает дефект алгоритма, задание завершается ошибкой.
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ie, ok := r.(*sorter.InvariantError)
		if !ok {
			panic(r)
		}
		err = fmt.Errorf("replay: %w", ie)
	}()

	st := playState{speed: params.Speed}
	var commands <-chan Command
	if ctrl != nil {
		commands = ctrl.Commands
	}

	var seq int64
	var rec *runRecord
	completed := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ctrl != nil {
			if err := st.handleCommands(ctrl); err != nil {
				return err
			}
			if st.paused {
				if err := st.waitWhilePaused(ctx, ctrl); err != nil {
					return err
				}
			}
		}

		ev := c.Next()
		if c.Cycles() != completed {
			completed = c.Cycles()
			if rec != nil {
				info, err := s.saveRun(ctx, rec)
				if err != nil {
					return err
				}
				if ctrl != nil && ctrl.OnRun != nil {
					ctrl.OnRun(info)
				}
				rec = nil
			}
			if params.Runs > 0 && completed >= params.Runs {
				return nil
			}
		}

		seq++
		frame := output.Frame{Seq: seq, Cycle: completed, Algorithm: c.Algorithm()}
		switch ev.Kind {
		case EventReset:
			if !IsPermutation(ev.Data) {
				return fmt.Errorf("replay: reset payload is not a permutation of 0..%d", len(ev.Data))
			}
			rec = &runRecord{
				algorithm: ev.Algorithm,
				initial:   append([]int(nil), ev.Data...),
				started:   time.Now().UTC(),
			}
			frame.Kind = output.FrameReset
			frame.Algorithm = ev.Algorithm
			frame.Data = ev.Data
		case EventSwap:
			sw := ev.Swap
			if rec != nil {
				rec.swaps = append(rec.swaps, storage.SwapEvent{Seq: len(rec.swaps) + 1, A: sw.A, B: sw.B})
			}
			frame.Kind = output.FrameSwap
			frame.Swap = &sw
		case EventWait:
			frame.Kind = output.FrameWait
			frame.WaitMs = ev.Wait.Milliseconds()
		}
		if err := s.Output.Send(ctx, frame); err != nil {
			return fmt.Errorf("replay: send frame %d: %w", seq, err)
		}

		if ev.Kind == EventSwap && st.stepOnce {
			st.paused = true
			st.stepOnce = false
		}
		if ctrl != nil && ctrl.OnEvent != nil {
			swaps := 0
			if rec != nil {
				swaps = len(rec.swaps)
			}
			ctrl.OnEvent(EventInfo{
				Seq:       seq,
				Kind:      ev.Kind,
				Algorithm: frame.Algorithm,
				Cycle:     completed,
				Swaps:     swaps,
				Paused:    st.paused,
			})
		}

		if ev.Kind == EventWait {
			if err := waitNextStep(ctx, ev.Wait, &st, commands); err != nil {
				return err
			}
		}
	}
}

func (s *Service) saveRun(ctx context.Context, rec *runRecord) (storage.RunInfo, error) {
	run := storage.Run{
		ID:         uuid.NewString(),
		Algorithm:  rec.algorithm,
		Initial:    rec.initial,
		Swaps:      rec.swaps,
		StartedAt:  rec.started,
		FinishedAt: time.Now().UTC(),
	}
	if s.Journal != nil {
		if err := s.Journal.SaveRun(ctx, run); err != nil {
			return storage.RunInfo{}, fmt.Errorf("replay: journal: %w", err)
		}
	}
	return run.Info(), nil
}

type playState struct {
	paused   bool
	stepOnce bool
	speed    float64
}

// apply применяет команду и возвращает ошибку только для Stop.
// Ошибки проверки параметров уходят в cmd.Resp и не прерывают проигрывание.
func (st *playState) apply(cmd Command) error {
	var respErr error
	switch cmd.Type {
	case CommandPause:
		st.paused = true
	case CommandResume:
		st.paused = false
		st.stepOnce = false
	case CommandStop:
		respErr = ErrStopped{}
	case CommandStepForward:
		st.stepOnce = true
		st.paused = false
	case CommandSpeed:
		if cmd.Speed <= 0 {
			respErr = fmt.Errorf("replay: speed must be > 0, got %v", cmd.Speed)
		} else {
			st.speed = cmd.Speed
		}
	default:
		respErr = fmt.Errorf("replay: unknown command %d", cmd.Type)
	}
	if cmd.Resp != nil {
		select {
		case cmd.Resp <- respErr:
		default:
		}
	}
	if _, ok := respErr.(ErrStopped); ok {
		return respErr
	}
	return nil
}

func (st *playState) handleCommands(ctrl *Control) error {
	for {
		select {
		case cmd := <-ctrl.Commands:
			if err := st.apply(cmd); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (st *playState) waitWhilePaused(ctx context.Context, ctrl *Control) error {
	for st.paused {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-ctrl.Commands:
			if err := st.apply(cmd); err != nil {
				return err
			}
		}
	}
	return nil
}

// waitNextStep ждёт step/speed, обрабатывая команды во время ожидания.
// Пауза, полученная во время ожидания, вступает в силу после него.
func waitNextStep(ctx context.Context, step time.Duration, st *playState, commands <-chan Command) error {
	if step <= 0 {
		return nil
	}
	speed := st.speed
	if speed <= 0 {
		speed = 1
	}
	delay := time.Duration(float64(step) / speed)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case cmd := <-commands:
			if err := st.apply(cmd); err != nil {
				return err
			}
		}
	}
}
