package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pv/sortmachine-go/internal/sorter"
)

// FrameKind задаёт тип события проигрывания.
type FrameKind string

const (
	FrameReset FrameKind = "reset"
	FrameSwap  FrameKind = "swap"
	FrameWait  FrameKind = "wait"
)

// Frame описывает событие проигрывания для рендерера.
type Frame struct {
	Seq       int64        `json:"seq"`
	Kind      FrameKind    `json:"kind"`
	Cycle     int          `json:"cycle"`
	Algorithm string       `json:"algorithm,omitempty"`
	Data      []int        `json:"data,omitempty"`
	Swap      *sorter.Swap `json:"swap,omitempty"`
	WaitMs    int64        `json:"wait_ms,omitempty"`
}

// Wait возвращает длительность паузы для кадра FrameWait.
func (f Frame) Wait() time.Duration {
	return time.Duration(f.WaitMs) * time.Millisecond
}

// Client отправляет кадры внешнему рендереру.
type Client interface {
	Send(ctx context.Context, frame Frame) error
}

// StdoutClient печатает кадры в writer построчно.
type StdoutClient struct {
	Writer io.Writer
	// Waits включает печать кадров ожидания.
	Waits bool
}

func (c *StdoutClient) Send(_ context.Context, frame Frame) error {
	if c.Writer == nil {
		return fmt.Errorf("stdout client: writer is not set")
	}
	var err error
	switch frame.Kind {
	case FrameReset:
		_, err = fmt.Fprintf(c.Writer, "RESET #%d cycle %d [%s] %v\n", frame.Seq, frame.Cycle, frame.Algorithm, frame.Data)
	case FrameSwap:
		if frame.Swap == nil {
			return fmt.Errorf("stdout client: swap frame %d without swap", frame.Seq)
		}
		_, err = fmt.Fprintf(c.Writer, "SWAP  #%d [%s] %s\n", frame.Seq, frame.Algorithm, frame.Swap)
	case FrameWait:
		if c.Waits {
			_, err = fmt.Fprintf(c.Writer, "WAIT  #%d %s\n", frame.Seq, frame.Wait())
		}
	default:
		return fmt.Errorf("stdout client: unknown frame kind %q", frame.Kind)
	}
	return err
}

// MultiClient рассылает кадр всем клиентам по порядку.
type MultiClient []Client

func (m MultiClient) Send(ctx context.Context, frame Frame) error {
	var errs []error
	for _, c := range m {
		if c == nil {
			continue
		}
		if err := c.Send(ctx, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
