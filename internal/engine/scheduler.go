package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/atlas-live/internal/broadcast"
	"github.com/talgya/atlas-live/internal/pacing"
)

// Defaults for Config.
const (
	DefaultMaxSilenceTicks = 7
	DefaultStartDelayTicks = 2
	DefaultNarrateEvery    = 3
)

// Router produces dialogue plans. It never fails; it falls back internally.
type Router interface {
	DecideNextMove(ctx context.Context, trigger broadcast.Trigger) broadcast.Plan
}

// Narrator produces narration and caption plans for the current stop.
type Narrator interface {
	Narrate(ctx context.Context, trigger broadcast.Trigger) (broadcast.Plan, error)
	Caption(ctx context.Context, trigger broadcast.Trigger) (broadcast.Plan, error)
	TakeArrival() bool
}

// Player puts plans on air.
type Player interface {
	Play(ctx context.Context, plan broadcast.Plan) error
	Speaking() bool
	MusicPlaying() bool
}

// Recorder keeps a log of executed plans.
type Recorder interface {
	RecordPlan(ctx context.Context, plan broadcast.Plan) error
}

// Config tunes the scheduler.
type Config struct {
	MaxSilenceTicks int // idle heartbeats before a silence break
	StartDelayTicks int // heartbeats before SYSTEM_START; <= 0 disables it
	NarrateEvery    int // every Nth permitted silence break narrates
}

// DefaultConfig returns the standard cadence.
func DefaultConfig() Config {
	return Config{
		MaxSilenceTicks: DefaultMaxSilenceTicks,
		StartDelayTicks: DefaultStartDelayTicks,
		NarrateEvery:    DefaultNarrateEvery,
	}
}

// Snapshot is a read-only view of scheduler state.
type Snapshot struct {
	Status        broadcast.Status  `json:"status"`
	Ticks         uint64            `json:"ticks"`
	IdleTicks     int               `json:"idle_ticks"`
	Triggers      int               `json:"triggers"`
	Dropped       int               `json:"dropped"`
	Failures      int               `json:"failures"`
	BusyTicks     uint64            `json:"busy_ticks"`
	LastTrigger   broadcast.Trigger `json:"last_trigger,omitempty"`
	LastTriggerAt time.Time         `json:"last_trigger_at,omitempty"`
	LastPlan      *broadcast.Plan   `json:"last_plan,omitempty"`
}

// Scheduler is the heartbeat-driven state machine. At most one generation
// cycle runs at a time; triggers arriving meanwhile are dropped.
type Scheduler struct {
	cfg      Config
	router   Router
	narrator Narrator
	player   Player
	pacer    *pacing.Engine
	recorder Recorder

	mu          sync.Mutex
	status      broadcast.Status
	ticks       uint64
	busyTicks   uint64
	idleTicks   int
	started     bool
	arriving    bool // arrival taken from the narrator but not yet accepted
	triggers    int
	dropped     int
	failures    int
	permitted   int
	lastTrigger broadcast.Trigger
	lastAt      time.Time
	lastPlan    *broadcast.Plan

	wg sync.WaitGroup
}

// NewScheduler wires the scheduler. recorder may be nil.
func NewScheduler(cfg Config, router Router, narrator Narrator, player Player, pacer *pacing.Engine, recorder Recorder) *Scheduler {
	if cfg.MaxSilenceTicks <= 0 {
		cfg.MaxSilenceTicks = DefaultMaxSilenceTicks
	}
	if pacer == nil {
		pacer = pacing.New(pacing.DefaultConfig())
	}
	return &Scheduler{
		cfg:      cfg,
		router:   router,
		narrator: narrator,
		player:   player,
		pacer:    pacer,
		recorder: recorder,
		status:   broadcast.StatusIdle,
	}
}

// Attach subscribes the scheduler to src. Cycles started from ticks use ctx.
func (s *Scheduler) Attach(ctx context.Context, src TickSource) {
	src.OnTick(func() { s.Tick(ctx) })
}

// Tick processes one heartbeat.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	s.ticks++
	if s.status == broadcast.StatusGenerating {
		s.busyTicks++
		s.mu.Unlock()
		return
	}
	if !s.started && s.cfg.StartDelayTicks > 0 && s.ticks >= uint64(s.cfg.StartDelayTicks) {
		s.started = true
		s.mu.Unlock()
		s.TriggerEvent(ctx, broadcast.TriggerSystemStart)
		return
	}
	s.mu.Unlock()

	if s.narrator != nil && s.narrator.TakeArrival() {
		s.mu.Lock()
		s.arriving = true
		s.mu.Unlock()
	}
	s.mu.Lock()
	arriving := s.arriving
	s.mu.Unlock()
	if arriving {
		// A competing trigger may win the check-and-set; retry next tick.
		if s.TriggerEvent(ctx, broadcast.TriggerCountryArrival) {
			s.mu.Lock()
			s.arriving = false
			s.mu.Unlock()
		}
		return
	}

	busy := s.player.Speaking() || s.player.MusicPlaying()

	s.mu.Lock()
	if busy {
		s.idleTicks = 0
	} else {
		s.idleTicks++
	}
	fire := s.idleTicks >= s.cfg.MaxSilenceTicks
	if fire {
		s.idleTicks = 0
	}
	s.mu.Unlock()

	if fire {
		s.TriggerEvent(ctx, broadcast.TriggerSilenceBreak)
	}
}

// TriggerEvent starts a generation cycle unless one is already running. It
// reports whether the trigger was accepted.
func (s *Scheduler) TriggerEvent(ctx context.Context, trigger broadcast.Trigger) bool {
	s.mu.Lock()
	if s.status == broadcast.StatusGenerating {
		s.dropped++
		s.mu.Unlock()
		slog.Debug("trigger dropped, generation in progress", "trigger", trigger)
		return false
	}
	s.status = broadcast.StatusGenerating
	s.triggers++
	s.lastTrigger = trigger
	s.lastAt = time.Now()
	s.wg.Add(1)
	s.mu.Unlock()

	slog.Info("trigger accepted", "trigger", trigger)
	go s.cycle(ctx, trigger)
	return true
}

// Wait blocks until in-flight cycles finish.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Snapshot returns the current state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Status:        s.status,
		Ticks:         s.ticks,
		IdleTicks:     s.idleTicks,
		Triggers:      s.triggers,
		Dropped:       s.dropped,
		Failures:      s.failures,
		BusyTicks:     s.busyTicks,
		LastTrigger:   s.lastTrigger,
		LastTriggerAt: s.lastAt,
	}
	if s.lastPlan != nil {
		p := *s.lastPlan
		p.Script = p.Script.Clone()
		snap.LastPlan = &p
	}
	return snap
}

// Pacer exposes the pacing engine.
func (s *Scheduler) Pacer() *pacing.Engine { return s.pacer }

func (s *Scheduler) cycle(ctx context.Context, trigger broadcast.Trigger) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("generation cycle panicked", "trigger", trigger, "panic", r)
			s.countFailure()
		}
		s.mu.Lock()
		s.status = broadcast.StatusIdle
		s.mu.Unlock()
	}()

	plan, err := s.plan(ctx, trigger)
	if err != nil {
		slog.Error("planning failed", "trigger", trigger, "error", err)
		s.countFailure()
		return
	}

	s.pacer.StartEvent(plan.Action.ContentType())
	defer s.pacer.StartEvent(broadcast.ContentSilence)

	if s.recorder != nil {
		if err := s.recorder.RecordPlan(ctx, plan); err != nil {
			slog.Warn("plan log write failed", "plan", plan.ID, "error", err)
		}
	}

	s.mu.Lock()
	s.lastPlan = &plan
	s.mu.Unlock()

	if err := s.player.Play(ctx, plan); err != nil {
		slog.Warn("playback ended early", "plan", plan.ID, "error", err)
		s.countFailure()
		return
	}
	slog.Debug("plan played", "plan", plan.ID, "action", plan.Action, "lines", len(plan.Script))
}

func (s *Scheduler) plan(ctx context.Context, trigger broadcast.Trigger) (broadcast.Plan, error) {
	switch trigger {
	case broadcast.TriggerSystemStart, broadcast.TriggerCountryArrival:
		return s.narrate(ctx, trigger)
	case broadcast.TriggerSilenceBreak:
		if !s.pacer.ShouldSpeak() {
			if s.narrator == nil {
				return broadcast.Plan{}, fmt.Errorf("no narrator for caption")
			}
			return s.narrator.Caption(ctx, trigger)
		}
		s.mu.Lock()
		s.permitted++
		n := s.permitted
		s.mu.Unlock()
		if s.cfg.NarrateEvery > 0 && n%s.cfg.NarrateEvery == 0 {
			return s.narrate(ctx, trigger)
		}
	}
	return s.router.DecideNextMove(ctx, trigger), nil
}

func (s *Scheduler) narrate(ctx context.Context, trigger broadcast.Trigger) (broadcast.Plan, error) {
	if s.narrator == nil {
		return s.router.DecideNextMove(ctx, trigger), nil
	}
	return s.narrator.Narrate(ctx, trigger)
}

func (s *Scheduler) countFailure() {
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
}
