package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"screenloom/session"
)

// Action is a device actuation verb.
type Action string

const (
	// ActionOn turns the device on and leaves it on. With an Until spec the
	// actuation completes once the watched level reaches the threshold.
	ActionOn Action = "on"
	// ActionOff turns the device off and completes immediately.
	ActionOff Action = "off"
	// ActionCycle alternates Duration on / Interval off, Cycles times
	// (0 = until cancelled).
	ActionCycle Action = "cycle"
	// ActionPulse emits Pulses short bursts.
	ActionPulse Action = "pulse"
	// ActionTimed turns the device on for Duration, then off.
	ActionTimed Action = "timed"
)

// Until completes an on-actuation once a session level crosses a threshold.
type Until struct {
	Kind  string
	Value float64
}

// Request is one actuation command against a registered device.
type Request struct {
	Device   string
	Action   Action
	Duration time.Duration // on-time for cycle/timed, pulse width for pulse
	Interval time.Duration // off-time for cycle, gap between pulses
	Cycles   int           // 0 = infinite
	Pulses   int
	Until    *Until
}

// Outcome classifies how an actuation ended.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeFailed      Outcome = "failed"
)

type Result struct {
	Outcome Outcome
	Err     error
}

// Handle tracks one running actuation. Done delivers exactly one terminal
// Result. Cancel is idempotent and safe to call after natural completion.
type Handle interface {
	Done() <-chan Result
	Cancel()
}

// LevelSource feeds until-threshold evaluation. Thresholds are re-checked on
// every published change, not on a timer, so a level that jumps straight past
// the threshold still completes the actuation.
type LevelSource interface {
	Level(kind string) float64
	Subscribe() (<-chan session.Change, func())
}

const (
	defaultPulseWidth = 500 * time.Millisecond
	offCallTimeout    = 5 * time.Second
)

// Gateway schedules actuations over registered adapters and tracks every
// active one so StopAll can interrupt them all at once.
type Gateway struct {
	reg    *Registry
	levels LevelSource
	logger *slog.Logger

	mu     sync.Mutex
	active map[*task]struct{}
}

func NewGateway(reg *Registry, levels LevelSource, logger *slog.Logger) *Gateway {
	return &Gateway{
		reg:    reg,
		levels: levels,
		logger: logger,
		active: make(map[*task]struct{}),
	}
}

// Actuate starts the requested actuation. The returned Handle emits one
// terminal Result. Cancelling ctx interrupts the actuation, so an execution
// that aborts takes its owned actuations down with it.
func (g *Gateway) Actuate(ctx context.Context, req Request) (Handle, error) {
	act, err := g.reg.Lookup(req.Device)
	if err != nil {
		return nil, err
	}
	switch req.Action {
	case ActionOn, ActionOff, ActionCycle, ActionPulse, ActionTimed:
	default:
		return nil, fmt.Errorf("unknown device action %q", req.Action)
	}
	if req.Until != nil && req.Action != ActionOn {
		return nil, fmt.Errorf("until-threshold requires action %q, got %q", ActionOn, req.Action)
	}
	if req.Until != nil && g.levels == nil {
		return nil, fmt.Errorf("until-threshold requested but no level source configured")
	}

	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{
		g:      g,
		req:    req,
		act:    act,
		ctx:    taskCtx,
		cancel: cancel,
		done:   make(chan Result, 1),
	}

	g.mu.Lock()
	g.active[t] = struct{}{}
	g.mu.Unlock()

	go t.run()
	return t, nil
}

// Active reports the number of in-flight actuations.
func (g *Gateway) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

// StopAll is the emergency-stop path: it interrupts every active actuation
// and then turns every registered device off, best effort. Safe to call
// repeatedly and concurrently.
func (g *Gateway) StopAll(ctx context.Context) error {
	g.mu.Lock()
	tasks := make([]*task, 0, len(g.active))
	for t := range g.active {
		tasks = append(tasks, t)
	}
	g.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}

	var firstErr error
	for _, id := range g.reg.Devices() {
		act, err := g.reg.Lookup(id)
		if err != nil {
			continue
		}
		offCtx, cancel := context.WithTimeout(ctx, offCallTimeout)
		if err := act.TurnOff(offCtx, id); err != nil {
			g.logger.Error("emergency off failed", "device", id, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("turning off %s: %w", id, err)
			}
		}
		cancel()
	}
	return firstErr
}

func (g *Gateway) remove(t *task) {
	g.mu.Lock()
	delete(g.active, t)
	g.mu.Unlock()
}

type task struct {
	g      *Gateway
	req    Request
	act    Actuator
	ctx    context.Context
	cancel context.CancelFunc
	done   chan Result
	once   sync.Once
}

func (t *task) Done() <-chan Result { return t.done }

func (t *task) Cancel() { t.cancel() }

func (t *task) finish(res Result) {
	t.once.Do(func() {
		t.done <- res
		t.g.remove(t)
		t.cancel()
	})
}

func (t *task) run() {
	var res Result
	switch t.req.Action {
	case ActionOff:
		res = t.runOff()
	case ActionOn:
		res = t.runOn()
	case ActionTimed:
		res = t.runTimed()
	case ActionCycle:
		res = t.runCycle()
	case ActionPulse:
		res = t.runPulse()
	}
	t.finish(res)
}

func (t *task) runOff() Result {
	if err := t.act.TurnOff(t.ctx, t.req.Device); err != nil {
		return failed(err)
	}
	return Result{Outcome: OutcomeCompleted}
}

func (t *task) runOn() Result {
	if err := t.act.TurnOn(t.ctx, t.req.Device); err != nil {
		return failed(err)
	}
	if t.req.Until == nil {
		return Result{Outcome: OutcomeCompleted}
	}

	// Subscribe before the initial read so a change landing between the two
	// can't be lost.
	changes, unsubscribe := t.g.levels.Subscribe()
	defer unsubscribe()

	until := t.req.Until
	if t.g.levels.Level(until.Kind) >= until.Value {
		return Result{Outcome: OutcomeCompleted}
	}
	for {
		select {
		case <-t.ctx.Done():
			t.forceOff()
			return Result{Outcome: OutcomeInterrupted}
		case c := <-changes:
			if c.Kind == until.Kind && c.Value >= until.Value {
				return Result{Outcome: OutcomeCompleted}
			}
		}
	}
}

func (t *task) runTimed() Result {
	if err := t.act.TurnOn(t.ctx, t.req.Device); err != nil {
		return failed(err)
	}
	if !t.sleep(t.req.Duration) {
		t.forceOff()
		return Result{Outcome: OutcomeInterrupted}
	}
	if err := t.act.TurnOff(t.ctx, t.req.Device); err != nil {
		return failed(err)
	}
	return Result{Outcome: OutcomeCompleted}
}

func (t *task) runCycle() Result {
	for i := 0; t.req.Cycles == 0 || i < t.req.Cycles; i++ {
		if i > 0 && !t.sleep(t.req.Interval) {
			return Result{Outcome: OutcomeInterrupted}
		}
		if err := t.act.TurnOn(t.ctx, t.req.Device); err != nil {
			return failed(err)
		}
		if !t.sleep(t.req.Duration) {
			t.forceOff()
			return Result{Outcome: OutcomeInterrupted}
		}
		if err := t.act.TurnOff(t.ctx, t.req.Device); err != nil {
			return failed(err)
		}
	}
	return Result{Outcome: OutcomeCompleted}
}

func (t *task) runPulse() Result {
	width := t.req.Duration
	if width <= 0 {
		width = defaultPulseWidth
	}
	gap := t.req.Interval
	if gap <= 0 {
		gap = width
	}
	count := t.req.Pulses
	if count < 1 {
		count = 1
	}
	for i := 0; i < count; i++ {
		if i > 0 && !t.sleep(gap) {
			return Result{Outcome: OutcomeInterrupted}
		}
		if err := t.act.TurnOn(t.ctx, t.req.Device); err != nil {
			return failed(err)
		}
		if !t.sleep(width) {
			t.forceOff()
			return Result{Outcome: OutcomeInterrupted}
		}
		if err := t.act.TurnOff(t.ctx, t.req.Device); err != nil {
			return failed(err)
		}
	}
	return Result{Outcome: OutcomeCompleted}
}

// sleep waits d, returning false if the task was cancelled first.
func (t *task) sleep(d time.Duration) bool {
	if d <= 0 {
		return t.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// forceOff turns the device off after an interruption. The task ctx is
// already cancelled at this point, so it uses a fresh deadline.
func (t *task) forceOff() {
	ctx, cancel := context.WithTimeout(context.Background(), offCallTimeout)
	defer cancel()
	if err := t.act.TurnOff(ctx, t.req.Device); err != nil {
		t.g.logger.Error("off after interruption failed", "device", t.req.Device, "error", err)
	}
}

func failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Err: err}
}
