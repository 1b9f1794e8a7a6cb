package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"screenloom/device"
)

// DeviceGateway is the engine's view of the actuation layer.
type DeviceGateway interface {
	Actuate(ctx context.Context, req device.Request) (device.Handle, error)
	StopAll(ctx context.Context) error
}

// Enhancer rewrites display text through an external text-generation
// collaborator. Fallible and slow; the engine falls back to the authored
// text and only the owning execution waits.
type Enhancer interface {
	Enhance(ctx context.Context, text, nodeKind, actorID string, maxTokens int) (string, error)
}

// Engine runs flow executions: one goroutine per execution walking the
// graph, waiting on player input and device terminals without blocking any
// other execution.
type Engine struct {
	store     Store
	gateway   DeviceGateway
	enhancer  Enhancer
	listeners *listenerRegistry
	logger    *slog.Logger
	metrics   *Metrics

	rngMu  sync.Mutex
	newRNG func() *rand.Rand

	mu    sync.Mutex
	execs map[string]*Execution
}

func NewEngine(store Store, gateway DeviceGateway, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		gateway:   gateway,
		listeners: newListenerRegistry(),
		logger:    logger,
		newRNG:    NewChallengeRNG,
		execs:     make(map[string]*Execution),
	}
}

// SetEnhancer wires the optional text-generation collaborator.
func (e *Engine) SetEnhancer(en Enhancer) {
	e.enhancer = en
}

func (e *Engine) SetMetrics(m *Metrics) {
	e.metrics = m
}

// SeedChallenges makes every subsequent challenge roll derive from a fixed
// seed, for reproducible runs.
func (e *Engine) SeedChallenges(seed int64) {
	e.rngMu.Lock()
	e.newRNG = func() *rand.Rand { return rand.New(rand.NewSource(seed)) }
	e.rngMu.Unlock()
}

func (e *Engine) challengeRNG() *rand.Rand {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.newRNG()
}

func (e *Engine) RegisterListener(name string, l EventListener) {
	e.listeners.register(name, l)
}

func (e *Engine) UnregisterListener(name string) {
	e.listeners.unregister(name)
}

// Start runs a flow from its start page.
func (e *Engine) Start(g *FlowGraph, trig Trigger) (string, error) {
	return e.StartAt(g, "", trig)
}

// StartAt runs a flow from an explicit page, for resuming mid-graph.
func (e *Engine) StartAt(g *FlowGraph, startPageID string, trig Trigger) (string, error) {
	if startPageID != "" {
		if _, ok := g.Pages[startPageID]; !ok {
			return "", fmt.Errorf("flow %s: start page %q does not exist", g.ID, startPageID)
		}
	}

	exec := NewExecution(g, startPageID, e.store, trig)
	e.mu.Lock()
	e.execs[exec.ID] = exec
	e.mu.Unlock()

	e.logger.InfoContext(exec, "execution started",
		"execution", exec.ID,
		"flow", g.ID,
		"trigger", trig.Type,
		"label", trig.Label)
	if e.metrics != nil {
		e.metrics.executionStarted(string(trig.Type))
	}

	go e.run(exec)
	return exec.ID, nil
}

func (e *Engine) get(id string) (*Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.execs[id]
	if !ok {
		return nil, fmt.Errorf("unknown execution %q", id)
	}
	return exec, nil
}

// Status returns the current snapshot of one execution.
func (e *Engine) Status(id string) (Snapshot, error) {
	exec, err := e.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return exec.Snapshot(), nil
}

// List returns snapshots of every known execution, oldest first. Terminal
// executions stay listed so endings remain inspectable.
func (e *Engine) List() []Snapshot {
	e.mu.Lock()
	execs := make([]*Execution, 0, len(e.execs))
	for _, exec := range e.execs {
		execs = append(execs, exec)
	}
	e.mu.Unlock()

	sort.Slice(execs, func(i, j int) bool {
		if execs[i].Started.Equal(execs[j].Started) {
			return execs[i].ID < execs[j].ID
		}
		return execs[i].Started.Before(execs[j].Started)
	})

	snaps := make([]Snapshot, len(execs))
	for i, exec := range execs {
		snaps[i] = exec.Snapshot()
	}
	return snaps
}

// Cancel aborts one execution. Reentrant-safe: repeat calls, or a call
// racing natural completion, are no-ops.
func (e *Engine) Cancel(id, reason string) error {
	exec, err := e.get(id)
	if err != nil {
		return err
	}
	exec.requestCancel(reason)
	return nil
}

// EmergencyStop shuts down every device and aborts every running execution.
// Idempotent; the device sweep runs even when nothing is executing.
func (e *Engine) EmergencyStop(ctx context.Context) error {
	e.logger.Warn("emergency stop")
	if e.metrics != nil {
		e.metrics.emergencyStops.Inc()
	}

	// Executions are cancelled before the device sweep so a blocked pump
	// observes its own cancellation, not a bare task interruption, and
	// reports the stop as the abort reason.
	e.mu.Lock()
	execs := make([]*Execution, 0, len(e.execs))
	for _, exec := range e.execs {
		execs = append(execs, exec)
	}
	e.mu.Unlock()
	for _, exec := range execs {
		exec.requestCancel("emergency stop")
	}

	return e.gateway.StopAll(ctx)
}

// Choose answers a pending choice prompt with an option index.
// ContinueOption selects the exit edge of an inline choice.
func (e *Engine) Choose(id string, option int) error {
	return e.deliver(id, interaction{kind: InteractChoice, option: option})
}

// Confirm answers a pending popup or challenge-skip prompt.
func (e *Engine) Confirm(id string, ok bool) error {
	return e.deliver(id, interaction{kind: InteractConfirm, ok: ok})
}

// Guess answers a pending number-guess prompt.
func (e *Engine) Guess(id string, n int) error {
	return e.deliver(id, interaction{kind: InteractGuess, n: n})
}

func (e *Engine) deliver(id string, in interaction) error {
	exec, err := e.get(id)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		snap := exec.Snapshot()
		if snap.Status == StatusCompleted || snap.Status == StatusAborted {
			return fmt.Errorf("execution %s is no longer running", id)
		}
		if snap.Status != StatusSuspended || snap.Prompt == nil {
			// The run loop may be between prompts; give it a beat.
			time.Sleep(2 * time.Millisecond)
			continue
		}
		if snap.Prompt.Kind != in.kind {
			return fmt.Errorf("execution %s expects %s input, got %s", id, snap.Prompt.Kind, in.kind)
		}

		select {
		case exec.interactions <- in:
			return nil
		case <-exec.Finished():
			return fmt.Errorf("execution %s is no longer running", id)
		case <-time.After(10 * time.Millisecond):
			// The prompt may have been replaced under us; re-check.
		}
	}
	return fmt.Errorf("execution %s is not waiting for input", id)
}

// run is the per-execution goroutine: walk pages until a terminal, then
// settle the final status exactly once.
func (e *Engine) run(exec *Execution) {
	defer close(exec.done)
	if e.metrics != nil {
		e.metrics.activeExecutions.Inc()
		defer e.metrics.activeExecutions.Dec()
	}

	e.publishStatus(exec)
	err := e.traverse(exec)

	var end endSignal
	switch {
	case err == nil:
		// Fell off the last node of a page with no redirect.
		exec.detachHandles()
		exec.finalize(StatusCompleted, EndingNormal, "")
		e.logger.InfoContext(exec, "execution completed", "execution", exec.ID, "ending", EndingNormal)
		if e.metrics != nil {
			e.metrics.executionsCompleted.Inc()
		}
	case errors.As(err, &end):
		exec.detachHandles()
		exec.finalize(StatusCompleted, end.ending, "")
		e.logger.InfoContext(exec, "execution completed", "execution", exec.ID, "ending", end.ending)
		if e.metrics != nil {
			e.metrics.executionsCompleted.Inc()
		}
	default:
		reason := err.Error()
		var fe *FlowError
		if errors.As(err, &fe) && fe.Message != "" {
			reason = fe.Message
		}
		exec.releaseHandles()
		exec.finalize(StatusAborted, "", reason)
		// Tear down the execution context so anything still derived from it
		// stops; detached tasks from a normal completion are left alone.
		exec.requestCancel(reason)
		e.logger.WarnContext(exec, "execution aborted", "execution", exec.ID, "reason", reason)
		if e.metrics != nil {
			e.metrics.executionsAborted.Inc()
		}
	}

	e.publishStatus(exec)
}

// endSignal carries an end node's classification up through the traversal.
type endSignal struct {
	ending string
}

func (s endSignal) Error() string {
	return "flow ended: " + s.ending
}

func (e *Engine) traverse(exec *Execution) error {
	snap := exec.Snapshot()
	pageID := snap.PageID
	startIndex := snap.NodeIndex

	for {
		page, ok := exec.Flow.Pages[pageID]
		if !ok {
			return NewFlowError(ErrorTypeGraph, exec.Flow.ID, pageID, "", fmt.Sprintf("page %q does not exist", pageID), nil)
		}

		next, err := e.runPage(exec, page, startIndex)
		if err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		pageID = next
		startIndex = 0
	}
}

// runPage executes a page's nodes in document order from startIndex. A
// non-empty return redirects to another page; empty means the page ran out,
// which ends the flow.
func (e *Engine) runPage(exec *Execution, page *Page, startIndex int) (string, error) {
	for i := startIndex; i < len(page.Nodes); i++ {
		node := page.Nodes[i]
		exec.setPosition(page.ID, i, node.DisplayLabel())
		e.publishStatus(exec)

		if exec.Err() != nil {
			return "", e.cancelled(exec)
		}

		next, err := e.execNode(exec, page, node)
		if err != nil {
			return "", err
		}
		if e.metrics != nil {
			e.metrics.nodeExecutions.WithLabelValues(string(node.Kind)).Inc()
		}
		if next != "" {
			return next, nil
		}
	}
	return "", nil
}

func (e *Engine) cancelled(exec *Execution) error {
	return NewFlowError(ErrorTypeCancelled, exec.Flow.ID, exec.Snapshot().PageID, "", exec.cancelReason(), context.Cause(exec))
}

func (e *Engine) publishStatus(exec *Execution) {
	snap := exec.Snapshot()
	e.listeners.publish(ExecutionEvent{
		Kind:        EventStatus,
		ExecutionID: snap.ID,
		FlowID:      snap.FlowID,
		PageID:      snap.PageID,
		Status:      snap.Status,
		Text:        snap.NodeLabel,
	})
}
