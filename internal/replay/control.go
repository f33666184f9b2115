package replay

import "github.com/pv/sortmachine-go/internal/storage"

// CommandType задаёт тип управляющей команды.
type CommandType int

const (
	CommandPause CommandType = iota + 1
	CommandResume
	CommandStop
	CommandStepForward
	CommandSpeed
)

func (t CommandType) String() string {
	switch t {
	case CommandPause:
		return "pause"
	case CommandResume:
		return "resume"
	case CommandStop:
		return "stop"
	case CommandStepForward:
		return "step_forward"
	case CommandSpeed:
		return "speed"
	default:
		return "unknown"
	}
}

// Command передаёт управляющее сообщение в RunWithControl.
type Command struct {
	Type  CommandType
	Speed float64
	Resp  chan<- error
}

// Control объединяет канал управления и коллбеки прогресса.
type Control struct {
	Commands <-chan Command
	OnEvent  func(EventInfo)
	// OnRun вызывается после сохранения каждого завершённого прогона.
	OnRun func(storage.RunInfo)
}

// EventInfo описывает событие, отправленное в output.
type EventInfo struct {
	Seq       int64
	Kind      EventKind
	Algorithm string
	Cycle     int
	// Swaps: число обменов текущего прогона на момент события.
	Swaps int
	// Paused выставлен на обмене, после которого StepForward ставит проигрывание на паузу.
	Paused bool
}

// ErrStopped возвращается при остановке через команду Stop.
type ErrStopped struct{}

func (ErrStopped) Error() string { return "stopped" }
