// Package session holds the live session state the chat system mutates and
// flows read: numeric levels (capacity, feeling) and the current emotion.
// Interested parties subscribe to change notifications; device until-thresholds
// and session-event triggers are both driven off this feed rather than polling.
package session

import (
	"sync"
)

// Level kinds published on the change feed.
const (
	LevelCapacity = "capacity"
	LevelFeeling  = "feeling"
	KindEmotion   = "emotion"
)

// Change describes a single session state transition. Numeric kinds carry
// Value; emotion changes carry Text.
type Change struct {
	Kind  string
	Value float64
	Text  string
}

// SystemStore receives session state mirrored into the variable store as
// system variables (Capacity, Feeling, Emotion).
type SystemStore interface {
	SetSystem(name, value string)
}

// Monitor is the session state holder. All methods are safe for concurrent
// use. Subscribers get every change in order; a slow subscriber loses the
// oldest pending change first, never the newest, so a level crossing observed
// via the latest value cannot be missed.
type Monitor struct {
	mu       sync.Mutex
	levels   map[string]float64
	emotion  string
	subs     map[int]*subscriber
	nextSub  int
	mirrored SystemStore
}

type subscriber struct {
	ch chan Change
}

const subBuffer = 64

func NewMonitor() *Monitor {
	return &Monitor{
		levels: map[string]float64{
			LevelCapacity: 0,
			LevelFeeling:  0,
		},
		emotion: "neutral",
		subs:    make(map[int]*subscriber),
	}
}

// Mirror wires a variable store so session state shows up as the read-only
// system variables flows reference in conditions and text substitution.
func (m *Monitor) Mirror(store SystemStore) {
	m.mu.Lock()
	m.mirrored = store
	m.mu.Unlock()
	m.SetCapacity(m.Level(LevelCapacity))
	m.SetFeeling(m.Level(LevelFeeling))
	m.SetEmotion(m.Emotion())
}

// Level returns the current value for a numeric kind. Unknown kinds read as 0.
func (m *Monitor) Level(kind string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[kind]
}

func (m *Monitor) Emotion() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emotion
}

func (m *Monitor) SetCapacity(v float64) {
	m.setLevel(LevelCapacity, clamp(v), "Capacity")
}

func (m *Monitor) SetFeeling(v float64) {
	m.setLevel(LevelFeeling, clamp(v), "Feeling")
}

func (m *Monitor) SetEmotion(emotion string) {
	m.mu.Lock()
	m.emotion = emotion
	store := m.mirrored
	m.publishLocked(Change{Kind: KindEmotion, Text: emotion})
	m.mu.Unlock()

	if store != nil {
		store.SetSystem("Emotion", emotion)
	}
}

func (m *Monitor) setLevel(kind string, v float64, sysName string) {
	m.mu.Lock()
	m.levels[kind] = v
	store := m.mirrored
	m.publishLocked(Change{Kind: kind, Value: v})
	m.mu.Unlock()

	if store != nil {
		store.SetSystem(sysName, formatLevel(v))
	}
}

// Subscribe registers a change listener. The returned cancel func is safe to
// call more than once.
func (m *Monitor) Subscribe() (<-chan Change, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	sub := &subscriber{ch: make(chan Change, subBuffer)}
	m.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

func (m *Monitor) publishLocked(c Change) {
	for _, sub := range m.subs {
		for {
			select {
			case sub.ch <- c:
			default:
				// Full buffer: drop the oldest pending change and retry so
				// the newest state always lands.
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
