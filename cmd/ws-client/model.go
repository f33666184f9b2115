package main

import (
	"fmt"
	"slices"

	"github.com/pv/sortmachine-go/internal/api"
)

// model повторяет позиционную модель буфера, как у рендерера.
type model struct {
	algorithm string
	data      []int
	swaps     int
	ready     bool
}

// runResult описывает завершённый по наблюдениям прогон.
type runResult struct {
	Algorithm string
	Swaps     int
	Sorted    bool
}

// apply применяет сообщение потока. При reset возвращает итог предыдущего прогона.
func (m *model) apply(msg api.Message) (*runResult, error) {
	switch msg.Type {
	case "snapshot":
		m.algorithm = msg.Algorithm
		m.data = append(m.data[:0], msg.Data...)
		m.swaps = 0
		m.ready = len(msg.Data) > 0
		return nil, nil
	case "reset":
		var prev *runResult
		if m.ready {
			res := m.result()
			prev = &res
		}
		m.algorithm = msg.Algorithm
		m.data = append(m.data[:0], msg.Data...)
		m.swaps = 0
		m.ready = true
		return prev, nil
	case "swap":
		if !m.ready {
			// подключились посреди пустого потока, ждём reset
			return nil, nil
		}
		if msg.Swap == nil {
			return nil, fmt.Errorf("swap message %d without swap", msg.Seq)
		}
		a, b := msg.Swap.A, msg.Swap.B
		if a < 0 || b < 0 || a >= len(m.data) || b >= len(m.data) {
			return nil, fmt.Errorf("swap %s out of range %d", msg.Swap, len(m.data))
		}
		m.data[a], m.data[b] = m.data[b], m.data[a]
		m.swaps++
		return nil, nil
	default:
		return nil, nil
	}
}

func (m *model) result() runResult {
	return runResult{
		Algorithm: m.algorithm,
		Swaps:     m.swaps,
		Sorted:    slices.IsSorted(m.data),
	}
}
