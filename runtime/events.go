package runtime

import (
	"sync"
	"time"
)

// EventKind classifies what an ExecutionEvent reports.
type EventKind string

const (
	EventStatus EventKind = "status"
	EventText   EventKind = "text"
	EventAvatar EventKind = "avatar"
	EventToast  EventKind = "toast"
	EventPopup  EventKind = "popup"
	EventPrompt EventKind = "prompt"
)

// ExecutionEvent is one observable moment of a running execution: a status
// change, a rendered line of dialogue, or a presented prompt.
type ExecutionEvent struct {
	Kind        EventKind `json:"kind"`
	ExecutionID string    `json:"executionId"`
	FlowID      string    `json:"flowId"`
	PageID      string    `json:"pageId,omitempty"`
	Status      Status    `json:"status,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	Text        string    `json:"text,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	Prompt      *Prompt   `json:"prompt,omitempty"`
	Time        time.Time `json:"time"`
}

// EventListener receives execution events. Implementations must not block;
// slow consumers should buffer on their side.
type EventListener interface {
	HandleEvent(ExecutionEvent)
}

// EventListenerFunc adapts a function to the EventListener interface.
type EventListenerFunc func(ExecutionEvent)

func (f EventListenerFunc) HandleEvent(evt ExecutionEvent) {
	f(evt)
}

// listenerRegistry fans execution events out to registered listeners.
type listenerRegistry struct {
	mu        sync.RWMutex
	listeners map[string]EventListener
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{listeners: make(map[string]EventListener)}
}

func (r *listenerRegistry) register(name string, l EventListener) {
	r.mu.Lock()
	r.listeners[name] = l
	r.mu.Unlock()
}

func (r *listenerRegistry) unregister(name string) {
	r.mu.Lock()
	delete(r.listeners, name)
	r.mu.Unlock()
}

func (r *listenerRegistry) publish(evt ExecutionEvent) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.listeners {
		l.HandleEvent(evt)
	}
}
