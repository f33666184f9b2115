package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pv/sortmachine-go/internal/replay"
	"github.com/pv/sortmachine-go/internal/storage"
	"github.com/pv/sortmachine-go/pkg/config"
)

var (
	errJobActive   = errors.New("job is already active")
	errNoJob       = errors.New("no active job")
	errJobFinished = errors.New("job is already finished")
	errNoJournal   = errors.New("journal is not configured")
)

// Defaults задаёт значения параметров задания, если запрос их не задаёт.
type Defaults struct {
	DataCount    int
	Step         time.Duration
	Intermission time.Duration
	Speed        float64
	Algorithms   string
	Runs         int
}

// JobParams описывает запуск задания проигрывания.
// Runs: число прогонов до остановки, 0 без ограничения, nil берёт значение по умолчанию.
type JobParams struct {
	DataCount    int           `json:"data_count"`
	Step         time.Duration `json:"step"`
	Intermission time.Duration `json:"intermission"`
	Speed        float64       `json:"speed"`
	Algorithms   string        `json:"algorithms"`
	Runs         *int          `json:"runs,omitempty"`
	// Seed задаёт детерминированное перемешивание; nil означает общий генератор.
	Seed *uint64 `json:"seed,omitempty"`
}

// Manager отвечает за одну задачу воспроизведения и её управление.
type Manager struct {
	mu sync.Mutex

	service   replay.Service
	profile   *config.Profile
	defaults  Defaults
	job       *job
	jobCancel context.CancelFunc
}

type job struct {
	params     JobParams
	status     string
	startedAt  time.Time
	finishedAt time.Time
	seq        int64
	algorithm  string
	cycle      int
	swaps      int
	runs       int
	lastRun    string
	err        error
	commands   chan replay.Command
}

// NewManager создаёт менеджер с заданным сервисом и профилем алгоритмов.
func NewManager(service replay.Service, profile *config.Profile, defaults Defaults) *Manager {
	if profile == nil {
		profile = config.Default()
	}
	return &Manager{
		service:  service,
		profile:  profile,
		defaults: defaults,
	}
}

func (m *Manager) withDefaults(p JobParams) JobParams {
	if p.DataCount <= 0 {
		p.DataCount = m.defaults.DataCount
	}
	if p.Step <= 0 {
		p.Step = m.defaults.Step
	}
	if p.Intermission <= 0 {
		p.Intermission = m.defaults.Intermission
	}
	if p.Speed <= 0 {
		p.Speed = m.defaults.Speed
		if p.Speed <= 0 {
			p.Speed = 1
		}
	}
	if p.Algorithms == "" {
		p.Algorithms = m.defaults.Algorithms
	}
	if p.Runs == nil {
		runs := m.defaults.Runs
		p.Runs = &runs
	}
	return p
}

// Start запускает новую задачу. Разрешён только один одновременный запуск.
func (m *Manager) Start(_ context.Context, req JobParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job != nil && m.job.active() {
		return errJobActive
	}

	req = m.withDefaults(req)
	if *req.Runs < 0 {
		return fmt.Errorf("invalid runs: %d", *req.Runs)
	}
	algos, err := m.profile.Resolve(req.Algorithms)
	if err != nil {
		return err
	}
	params := replay.Params{
		DataCount:    req.DataCount,
		Step:         req.Step,
		Intermission: req.Intermission,
		Algorithms:   algos,
		Speed:        req.Speed,
		Runs:         *req.Runs,
	}
	if req.Seed != nil {
		params.Shuffler = rand.New(rand.NewPCG(*req.Seed, *req.Seed))
	}

	ctrlCh := make(chan replay.Command, 16)
	// Задание живёт на фоновом контексте, а не на контексте HTTP-запроса.
	jobCtx, cancel := context.WithCancel(context.Background())
	m.jobCancel = cancel
	j := &job{
		params:    req,
		status:    "running",
		startedAt: time.Now(),
		commands:  ctrlCh,
	}
	m.job = j

	go func() {
		defer cancel()
		err := m.service.RunWithControl(jobCtx, params, replay.Control{
			Commands: ctrlCh,
			OnEvent: func(info replay.EventInfo) {
				m.mu.Lock()
				defer m.mu.Unlock()
				j.seq = info.Seq
				j.algorithm = info.Algorithm
				j.cycle = info.Cycle
				j.swaps = info.Swaps
				if info.Paused && j.status == "running" {
					j.status = "paused"
				}
			},
			OnRun: func(info storage.RunInfo) {
				m.mu.Lock()
				j.runs++
				j.lastRun = info.ID
				m.mu.Unlock()
				logDebugf("[replay] run %s done: %s, %d items, %d swaps", info.ID, info.Algorithm, info.DataCount, info.SwapCount)
			},
		})
		m.mu.Lock()
		defer m.mu.Unlock()
		j.finishedAt = time.Now()
		switch {
		case errors.Is(err, replay.ErrStopped{}), errors.Is(err, context.Canceled):
			j.status = "done"
		case err != nil:
			j.status = "failed"
			j.err = err
			log.Printf("[replay] job failed: %v", err)
		default:
			j.status = "done"
		}
	}()
	return nil
}

func (j *job) active() bool {
	return j.status == "running" || j.status == "paused" || j.status == "stopping"
}

// Pause ставит задачу на паузу.
func (m *Manager) Pause() error {
	if err := m.sendCommand(replay.Command{Type: replay.CommandPause}); err != nil {
		return err
	}
	m.setStatus("paused")
	return nil
}

// Resume возобновляет задачу.
func (m *Manager) Resume() error {
	if err := m.sendCommand(replay.Command{Type: replay.CommandResume}); err != nil {
		return err
	}
	m.setStatus("running")
	return nil
}

// Stop останавливает задачу.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.job == nil || (m.job.status != "running" && m.job.status != "paused") {
		m.mu.Unlock()
		return errNoJob
	}
	m.job.status = "stopping"
	m.mu.Unlock()
	err := m.sendCommand(replay.Command{Type: replay.CommandStop})
	if errors.Is(err, replay.ErrStopped{}) {
		return nil
	}
	return err
}

// StepForward проигрывает события до ближайшего обмена и ставит задачу на паузу.
// До этого обмена задача считается запущенной; paused выставляет OnEvent.
func (m *Manager) StepForward() error {
	m.mu.Lock()
	prev := ""
	if m.job != nil && (m.job.status == "running" || m.job.status == "paused") {
		prev = m.job.status
		m.job.status = "running"
	}
	m.mu.Unlock()

	if err := m.sendCommand(replay.Command{Type: replay.CommandStepForward}); err != nil {
		m.mu.Lock()
		if prev != "" && m.job.status == "running" {
			m.job.status = prev
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// SetSpeed меняет множитель скорости активной задачи.
func (m *Manager) SetSpeed(speed float64) error {
	if err := m.sendCommand(replay.Command{Type: replay.CommandSpeed, Speed: speed}); err != nil {
		return err
	}
	m.mu.Lock()
	if m.job != nil {
		m.job.params.Speed = speed
	}
	m.mu.Unlock()
	return nil
}

// Status возвращает текущие метаданные задачи.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job == nil {
		return Status{Status: "idle"}
	}
	st := Status{
		Status:     m.job.status,
		Params:     m.job.params,
		StartedAt:  m.job.startedAt,
		FinishedAt: m.job.finishedAt,
		Seq:        m.job.seq,
		Algorithm:  m.job.algorithm,
		Cycle:      m.job.cycle,
		Swaps:      m.job.swaps,
		Runs:       m.job.runs,
		LastRun:    m.job.lastRun,
	}
	if m.job.err != nil {
		st.Error = m.job.err.Error()
	}
	return st
}

// Runs возвращает последние записанные прогоны.
func (m *Manager) Runs(ctx context.Context, limit int) ([]storage.RunInfo, error) {
	if m.service.Journal == nil {
		return nil, errNoJournal
	}
	return m.service.Journal.Runs(ctx, limit)
}

// Snapshot восстанавливает буфер записанного прогона после step обменов.
func (m *Manager) Snapshot(ctx context.Context, runID string, step int) (replay.RunSnapshot, error) {
	if m.service.Journal == nil {
		return replay.RunSnapshot{}, errNoJournal
	}
	return replay.BuildState(ctx, m.service.Journal, runID, step)
}

// Verify проверяет записанный прогон.
func (m *Manager) Verify(ctx context.Context, runID string) (replay.Verification, error) {
	if m.service.Journal == nil {
		return replay.Verification{}, errNoJournal
	}
	return replay.VerifyRun(ctx, m.service.Journal, runID, m.profile.Catalog().ByName)
}

// Algorithms возвращает имена алгоритмов профиля в порядке ротации.
func (m *Manager) Algorithms() []string {
	return m.profile.Catalog().Names()
}

// Close отменяет активное задание.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobCancel != nil {
		m.jobCancel()
	}
}

type Status struct {
	Status     string    `json:"status"`
	Params     JobParams `json:"params"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Seq        int64     `json:"seq"`
	Algorithm  string    `json:"algorithm,omitempty"`
	Cycle      int       `json:"cycle"`
	Swaps      int       `json:"swaps"`
	Runs       int       `json:"runs"`
	LastRun    string    `json:"last_run,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (m *Manager) sendCommand(cmd replay.Command) error {
	m.mu.Lock()
	if m.job == nil {
		m.mu.Unlock()
		return errNoJob
	}
	if !m.job.active() {
		m.mu.Unlock()
		return errJobFinished
	}
	commands := m.job.commands
	m.mu.Unlock()

	resp := make(chan error, 1)
	cmd.Resp = resp
	select {
	case commands <- cmd:
	default:
		return fmt.Errorf("failed to enqueue command")
	}
	select {
	case err := <-resp:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("command timeout")
	}
}

func (m *Manager) setStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job != nil && m.job.active() {
		m.job.status = status
	}
}
