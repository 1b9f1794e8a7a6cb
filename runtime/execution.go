package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"screenloom/device"
)

var _ context.Context = &Execution{}

// Status of a running flow instance.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// TriggerType says what started an execution.
type TriggerType string

const (
	TriggerButtonPress  TriggerType = "button_press"
	TriggerKeywordMatch TriggerType = "keyword_match"
	TriggerSessionEvent TriggerType = "session_event"
	TriggerPersonaAuto  TriggerType = "persona_auto"
)

// Trigger carries the originating button/keyword/event id for observability.
type Trigger struct {
	Type     TriggerType `json:"type"`
	Label    string      `json:"label"`
	SourceID string      `json:"sourceId"`
}

// InteractionKind tags what kind of player input a suspended node expects.
type InteractionKind string

const (
	InteractChoice  InteractionKind = "choice"
	InteractConfirm InteractionKind = "confirm"
	InteractGuess   InteractionKind = "guess"
)

// interaction is one player input delivered to a waiting execution.
type interaction struct {
	kind   InteractionKind
	option int
	ok     bool
	n      int
}

// PromptOption is one selectable entry of a presented prompt. Index is the
// option's position in the node definition, not in the filtered view, so a
// selection stays valid even when visibility predicates change underneath it.
type PromptOption struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Prompt describes what a suspended execution is waiting for.
type Prompt struct {
	Kind          InteractionKind `json:"kind"`
	Text          string          `json:"text"`
	Options       []PromptOption  `json:"options,omitempty"`
	AllowContinue bool            `json:"allowContinue,omitempty"`
	Min           int             `json:"min,omitempty"`
	Max           int             `json:"max,omitempty"`
	Hint          string          `json:"hint,omitempty"`
}

// ContinueOption selects the exit of an inline choice instead of an option.
const ContinueOption = -1

// Execution is one running flow instance: its traversal position, the
// side-effect handles it owns and the player input it may be waiting on.
// It implements context.Context by delegating to its embedded ctx, so it can
// be passed anywhere cancellation is consumed; Value resolves variable names
// against the session store.
type Execution struct {
	ID      string
	Flow    *FlowGraph
	Store   Store
	Trigger Trigger
	Started time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu        sync.Mutex
	status    Status
	pageID    string
	nodeIndex int
	nodeLabel string
	ending    string
	reason    string
	prompt    *Prompt
	consumed  map[string]map[int]bool
	handles   []device.Handle

	interactions chan interaction
	done         chan struct{}
}

func NewExecution(flow *FlowGraph, startPageID string, store Store, trig Trigger) *Execution {
	ctx, cancel := context.WithCancelCause(context.Background())
	if startPageID == "" {
		startPageID = flow.StartPageID
	}
	return &Execution{
		ID:           uuid.New().String(),
		Flow:         flow,
		Store:        store,
		Trigger:      trig,
		Started:      time.Now(),
		ctx:          ctx,
		cancel:       cancel,
		status:       StatusRunning,
		pageID:       startPageID,
		consumed:     make(map[string]map[int]bool),
		interactions: make(chan interaction),
		done:         make(chan struct{}),
	}
}

// context.Context implementation. Delegates to the embedded ctx so that
// cancellation propagates through slog, actuation and HTTP calls.

func (e *Execution) Deadline() (deadline time.Time, ok bool) {
	return e.ctx.Deadline()
}

func (e *Execution) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Execution) Err() error {
	return e.ctx.Err()
}

func (e *Execution) Value(key any) any {
	k, ok := key.(string)
	if !ok {
		return e.ctx.Value(key)
	}

	v, _ := e.Store.Get(k)
	return v
}

// Finished closes once the run loop has fully unwound and every owned
// resource is released.
func (e *Execution) Finished() <-chan struct{} {
	return e.done
}

// Snapshot is the read-only view served to observers.
type Snapshot struct {
	ID           string      `json:"id"`
	FlowID       string      `json:"flowId"`
	TriggerType  TriggerType `json:"triggerType"`
	TriggerLabel string      `json:"triggerLabel,omitempty"`
	PageID       string      `json:"pageId"`
	NodeIndex    int         `json:"nodeIndex"`
	NodeLabel    string      `json:"currentNodeLabel"`
	Status       Status      `json:"status"`
	Ending       string      `json:"ending,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	Prompt       *Prompt     `json:"prompt,omitempty"`
}

func (e *Execution) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{
		ID:           e.ID,
		FlowID:       e.Flow.ID,
		TriggerType:  e.Trigger.Type,
		TriggerLabel: e.Trigger.Label,
		PageID:       e.pageID,
		NodeIndex:    e.nodeIndex,
		NodeLabel:    e.nodeLabel,
		Status:       e.status,
		Ending:       e.ending,
		Reason:       e.reason,
	}
	if e.prompt != nil {
		p := *e.prompt
		snap.Prompt = &p
	}
	return snap
}

func (e *Execution) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Execution) setPosition(pageID string, nodeIndex int, label string) {
	e.mu.Lock()
	e.pageID = pageID
	e.nodeIndex = nodeIndex
	e.nodeLabel = label
	e.mu.Unlock()
}

// suspend publishes the prompt and flips to suspended; resume reverses it.
func (e *Execution) suspend(p *Prompt) {
	e.mu.Lock()
	if e.status == StatusRunning {
		e.status = StatusSuspended
	}
	e.prompt = p
	e.mu.Unlock()
}

func (e *Execution) resume() {
	e.mu.Lock()
	if e.status == StatusSuspended {
		e.status = StatusRunning
	}
	e.prompt = nil
	e.mu.Unlock()
}

// finalize moves to a terminal status. Only the first call wins; a cancel
// racing natural completion, or a second cancel, becomes a no-op.
func (e *Execution) finalize(status Status, ending, reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusCompleted || e.status == StatusAborted {
		return false
	}
	e.status = status
	e.ending = ending
	e.reason = reason
	e.prompt = nil
	return true
}

// requestCancel asks the run loop to stop. Safe to call repeatedly and
// concurrently with natural completion.
func (e *Execution) requestCancel(reason string) {
	e.cancel(&FlowError{Type: ErrorTypeCancelled, FlowID: e.Flow.ID, Message: reason})
}

// cancelReason extracts the reason a cancellation was requested with.
func (e *Execution) cancelReason() string {
	cause := context.Cause(e.ctx)
	if fe, ok := cause.(*FlowError); ok {
		return fe.Message
	}
	if cause != nil {
		return cause.Error()
	}
	return "cancelled"
}

// ownHandle registers a fire-and-forget actuation with the execution so an
// abort can shut it down.
func (e *Execution) ownHandle(h device.Handle) {
	e.mu.Lock()
	e.handles = append(e.handles, h)
	e.mu.Unlock()
}

func (e *Execution) disownHandle(h device.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, owned := range e.handles {
		if owned == h {
			e.handles = append(e.handles[:i], e.handles[i+1:]...)
			return
		}
	}
}

// releaseHandles cancels every owned actuation. The slice is drained on the
// first call and Handle.Cancel tolerates repeats, so this is idempotent.
func (e *Execution) releaseHandles() {
	e.mu.Lock()
	handles := e.handles
	e.handles = nil
	e.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
}

// detachHandles returns the owned actuations without cancelling them, for
// natural completion where fire-and-forget effects run to their own end.
func (e *Execution) detachHandles() {
	e.mu.Lock()
	e.handles = nil
	e.mu.Unlock()
}

func (e *Execution) markConsumed(nodeID string, option int) {
	e.mu.Lock()
	if e.consumed[nodeID] == nil {
		e.consumed[nodeID] = make(map[int]bool)
	}
	e.consumed[nodeID][option] = true
	e.mu.Unlock()
}

func (e *Execution) isConsumed(nodeID string, option int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consumed[nodeID][option]
}
