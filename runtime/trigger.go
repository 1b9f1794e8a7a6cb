package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"screenloom/session"
)

// TriggerBinding is the authored half of a trigger: how a flow asks to be
// started. The runtime half is the Trigger recorded on the execution.
type TriggerBinding struct {
	Type      TriggerType `yaml:"type"`
	Label     string      `yaml:"label,omitempty"`
	Keywords  []string    `yaml:"keywords,omitempty"`
	EventKind string      `yaml:"eventKind,omitempty"`
	Threshold float64     `yaml:"threshold,omitempty"`
	Emotion   string      `yaml:"emotion,omitempty"`
}

func (b TriggerBinding) validate() error {
	switch b.Type {
	case "", TriggerButtonPress, TriggerPersonaAuto:
	case TriggerKeywordMatch:
		if len(b.Keywords) == 0 {
			return fmt.Errorf("keyword_match trigger has no keywords")
		}
	case TriggerSessionEvent:
		switch b.EventKind {
		case session.LevelCapacity, session.LevelFeeling:
		case session.KindEmotion:
			if b.Emotion == "" {
				return fmt.Errorf("emotion trigger has no emotion value")
			}
		default:
			return fmt.Errorf("unknown session event kind %q", b.EventKind)
		}
	default:
		return fmt.Errorf("unknown trigger type %q", b.Type)
	}
	return nil
}

// Button is one pressable entry derived from a button_press binding.
type Button struct {
	FlowID string `json:"flowId"`
	Label  string `json:"label"`
}

// Dispatcher routes external stimuli (button presses, chat messages, session
// level changes) to flow starts on the engine.
type Dispatcher struct {
	engine  *Engine
	monitor *session.Monitor
	logger  *slog.Logger

	mu    sync.RWMutex
	flows map[string]*FlowGraph
	// fired tracks session_event bindings already triggered, so a level
	// hovering past its threshold starts one execution, not one per change.
	fired map[string]bool
}

func NewDispatcher(engine *Engine, monitor *session.Monitor, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		engine:  engine,
		monitor: monitor,
		logger:  logger,
		flows:   make(map[string]*FlowGraph),
		fired:   make(map[string]bool),
	}
}

// Register makes a flow startable. Graphs must already be validated.
func (d *Dispatcher) Register(g *FlowGraph) {
	d.mu.Lock()
	d.flows[g.ID] = g
	d.mu.Unlock()
}

func (d *Dispatcher) Flow(id string) (*FlowGraph, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.flows[id]
	return g, ok
}

func (d *Dispatcher) Flows() []*FlowGraph {
	d.mu.RLock()
	defer d.mu.RUnlock()
	flows := make([]*FlowGraph, 0, len(d.flows))
	for _, g := range d.flows {
		flows = append(flows, g)
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].ID < flows[j].ID })
	return flows
}

// StartFlow starts a registered flow with an explicit trigger record.
func (d *Dispatcher) StartFlow(flowID string, trig Trigger) (string, error) {
	g, ok := d.Flow(flowID)
	if !ok {
		return "", fmt.Errorf("flow %q is not registered", flowID)
	}
	return d.engine.Start(g, trig)
}

// Buttons lists the pressable flows, sorted by label for stable output.
func (d *Dispatcher) Buttons() []Button {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buttons []Button
	for _, g := range d.flows {
		if g.Trigger.Type != TriggerButtonPress {
			continue
		}
		label := g.Trigger.Label
		if label == "" {
			label = g.Name
		}
		buttons = append(buttons, Button{FlowID: g.ID, Label: label})
	}
	sort.Slice(buttons, func(i, j int) bool { return buttons[i].Label < buttons[j].Label })
	return buttons
}

// PressButton starts the flow bound to a button.
func (d *Dispatcher) PressButton(flowID string) (string, error) {
	g, ok := d.Flow(flowID)
	if !ok {
		return "", fmt.Errorf("flow %q is not registered", flowID)
	}
	if g.Trigger.Type != TriggerButtonPress {
		return "", fmt.Errorf("flow %q is not bound to a button", flowID)
	}
	label := g.Trigger.Label
	if label == "" {
		label = g.Name
	}
	return d.engine.Start(g, Trigger{Type: TriggerButtonPress, Label: label, SourceID: flowID})
}

// ScanMessage checks a chat message against every keyword binding and starts
// each flow whose keyword appears. Matching is case-insensitive on whole
// words. Returns the started execution ids.
func (d *Dispatcher) ScanMessage(text string) []string {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	}) {
		words[w] = true
	}

	var started []string
	for _, g := range d.Flows() {
		if g.Trigger.Type != TriggerKeywordMatch {
			continue
		}
		for _, kw := range g.Trigger.Keywords {
			if !words[strings.ToLower(kw)] {
				continue
			}
			id, err := d.engine.Start(g, Trigger{Type: TriggerKeywordMatch, Label: kw, SourceID: g.ID})
			if err != nil {
				d.logger.Error("keyword trigger failed", "flow", g.ID, "keyword", kw, "error", err)
				break
			}
			started = append(started, id)
			break
		}
	}
	return started
}

// StartWatch consumes session change notifications and fires session_event
// bindings from a background goroutine. The subscription is live before
// StartWatch returns, so a change published right after cannot be missed.
// The loop stops when ctx is cancelled. Threshold bindings are
// edge-triggered: they fire when the level crosses the threshold upward and
// re-arm once it drops back below.
func (d *Dispatcher) StartWatch(ctx context.Context) {
	changes, cancel := d.monitor.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case change := <-changes:
				d.handleChange(change)
			}
		}
	}()
}

func (d *Dispatcher) handleChange(change session.Change) {
	for _, g := range d.Flows() {
		b := g.Trigger
		if b.Type != TriggerSessionEvent || b.EventKind != change.Kind {
			continue
		}

		var fire bool
		switch change.Kind {
		case session.KindEmotion:
			fire = strings.EqualFold(change.Text, b.Emotion)
		default:
			fire = change.Value >= b.Threshold
		}

		d.mu.Lock()
		armed := !d.fired[g.ID]
		d.fired[g.ID] = fire
		d.mu.Unlock()
		if !fire || !armed {
			continue
		}

		label := b.Label
		if label == "" {
			label = b.EventKind
		}
		if _, err := d.engine.Start(g, Trigger{Type: TriggerSessionEvent, Label: label, SourceID: g.ID}); err != nil {
			d.logger.Error("session event trigger failed", "flow", g.ID, "kind", b.EventKind, "error", err)
		}
	}
}
