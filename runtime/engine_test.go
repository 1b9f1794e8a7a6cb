package runtime

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenloom/device"
	"screenloom/session"
)

type fixture struct {
	engine  *Engine
	store   *MemoryStore
	monitor *session.Monitor
	mock    *device.Mock

	mu     sync.Mutex
	events []ExecutionEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		store:   NewMemoryStore(),
		monitor: session.NewMonitor(),
		mock:    device.NewMock(),
	}
	// The app seeds these from config; the monitor only mirrors levels.
	f.store.SetSystem("Player", "Player")
	f.store.SetSystem("Char", "Char")
	f.monitor.Mirror(f.store)

	reg := device.NewRegistry()
	reg.Register("pump", f.mock)
	reg.Register("mock_pump", f.mock)
	gateway := device.NewGateway(reg, f.monitor, logger)

	f.engine = NewEngine(f.store, gateway, logger)
	f.engine.RegisterListener("test", EventListenerFunc(func(evt ExecutionEvent) {
		f.mu.Lock()
		f.events = append(f.events, evt)
		f.mu.Unlock()
	}))
	return f
}

func (f *fixture) eventsOf(kind EventKind) []ExecutionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ExecutionEvent
	for _, evt := range f.events {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

// graph builds a validated FlowGraph from ordered pages.
func graph(t *testing.T, pages ...*Page) *FlowGraph {
	t.Helper()
	g := &FlowGraph{
		ID:          "test-flow",
		Name:        "Test Flow",
		StartPageID: pages[0].ID,
		Pages:       make(map[string]*Page),
	}
	for _, p := range pages {
		g.Pages[p.ID] = p
		g.PageOrder = append(g.PageOrder, p.ID)
	}
	require.NoError(t, g.Validate())
	return g
}

func page(id string, nodes ...*Node) *Page {
	for i, n := range nodes {
		if n.ID == "" {
			n.ID = id + "#" + string(rune('0'+i))
		}
	}
	return &Page{ID: id, Nodes: nodes}
}

func node(kind NodeKind, payload any) *Node {
	return &Node{Kind: kind, Payload: payload}
}

func trig() Trigger {
	return Trigger{Type: TriggerButtonPress, Label: "test"}
}

// wait polls an execution until cond holds.
func (f *fixture) wait(t *testing.T, id string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := f.engine.Status(id)
		require.NoError(t, err)
		if cond(snap) {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	snap, _ := f.engine.Status(id)
	t.Fatalf("condition never met; last snapshot: %+v", snap)
	return Snapshot{}
}

func (f *fixture) waitDone(t *testing.T, id string) Snapshot {
	t.Helper()
	exec, err := f.engine.get(id)
	require.NoError(t, err)
	select {
	case <-exec.Finished():
	case <-time.After(3 * time.Second):
		t.Fatalf("execution %s never finished", id)
	}
	return exec.Snapshot()
}

func suspended(snap Snapshot) bool {
	return snap.Status == StatusSuspended && snap.Prompt != nil
}

func TestLinearFlowCompletes(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindNarration, &TextPayload{Text: "Hello [Player]."}),
			node(KindSetVariable, &SetVariablePayload{Name: "greeted", Value: "yes"}),
			node(KindEnd, &EndPayload{Ending: EndingGood}),
		),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	snap := f.waitDone(t, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, EndingGood, snap.Ending)

	v, ok := f.store.Get("Flow:greeted")
	require.True(t, ok)
	assert.Equal(t, "yes", v)

	texts := f.eventsOf(EventText)
	require.Len(t, texts, 1)
	assert.Equal(t, "Hello Player.", texts[0].Text)
}

func TestFallingOffPageEndCompletesNormally(t *testing.T) {
	f := newFixture(t)
	g := graph(t, page("p1", node(KindNarration, &TextPayload{Text: "done"})))

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	snap := f.waitDone(t, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, EndingNormal, snap.Ending)
}

func TestChainedArithmeticAssignment(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindSetVariable, &SetVariablePayload{Name: "x", Value: "1"}),
			node(KindSetVariable, &SetVariablePayload{Name: "x", Value: "[Flow:x] + 1"}),
		),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)
	f.waitDone(t, id)

	v, _ := f.store.Get("Flow:x")
	assert.Equal(t, "2", v)
}

func TestMalformedExpressionAbortsWithReason(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindSetVariable, &SetVariablePayload{Name: "x", Value: "[Flow:undeclared] + 1"}),
			node(KindSetVariable, &SetVariablePayload{Name: "never", Value: "1"}),
		),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	snap := f.waitDone(t, id)
	assert.Equal(t, StatusAborted, snap.Status)
	assert.NotEmpty(t, snap.Reason)
	assert.False(t, f.store.Exists("Flow:never"))
}

func TestConditionBranchesOnExists(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindDeclareVariable, &DeclareVariablePayload{Name: "seen", Default: "1"}),
			node(KindCondition, &ConditionPayload{Variable: "Flow:seen", Operator: OpExists, TruePageID: "yes", FalsePageID: "no"}),
		),
		page("yes", node(KindSetVariable, &SetVariablePayload{Name: "branch", Value: "yes"})),
		page("no", node(KindSetVariable, &SetVariablePayload{Name: "branch", Value: "no"})),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)
	f.waitDone(t, id)

	v, _ := f.store.Get("Flow:branch")
	assert.Equal(t, "yes", v)
}

func TestChoiceAppliesAssignmentAndRedirect(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindSetVariable, &SetVariablePayload{Name: "brave", Value: "1"}),
			node(KindChoice, &ChoicePayload{
				Prompt: "Pick",
				Options: []ChoiceOption{
					{Text: "Hidden", CondVar: "Flow:missing", CondOp: OpExists},
					{Text: "Fight", TargetPageID: "fight", SetVar: "picked", SetVal: "fight", CondVar: "Flow:brave", CondOp: OpExists},
				},
			}),
		),
		page("fight", node(KindNarration, &TextPayload{Text: "clash"})),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	snap := f.wait(t, id, suspended)
	require.Equal(t, InteractChoice, snap.Prompt.Kind)
	// The hidden option is filtered; the visible one keeps its authored index.
	require.Len(t, snap.Prompt.Options, 1)
	assert.Equal(t, 1, snap.Prompt.Options[0].Index)
	assert.Equal(t, "Fight", snap.Prompt.Options[0].Text)

	require.NoError(t, f.engine.Choose(id, 1))
	final := f.waitDone(t, id)
	assert.Equal(t, StatusCompleted, final.Status)

	v, _ := f.store.Get("Flow:picked")
	assert.Equal(t, "fight", v)
	assert.Equal(t, "fight", final.PageID)
}

func TestInlineChoiceConsumesOptionsAndGatesContinue(t *testing.T) {
	f := newFixture(t)
	inline := node(KindInlineChoice, &InlineChoicePayload{
		Prompt: "Explore",
		Options: []ChoiceOption{
			{Text: "Look around"},
			{Text: "Ask a question"},
		},
		RequireAllOptions:    true,
		ContinueTargetPageID: "after",
	})
	inline.ID = "inline-1"
	g := graph(t,
		page("p1", inline),
		page("after", node(KindEnd, &EndPayload{})),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	snap := f.wait(t, id, suspended)
	require.Len(t, snap.Prompt.Options, 2)
	assert.False(t, snap.Prompt.AllowContinue)

	// Continue is refused while options remain.
	require.NoError(t, f.engine.Choose(id, ContinueOption))
	snap = f.wait(t, id, suspended)
	require.Len(t, snap.Prompt.Options, 2)

	require.NoError(t, f.engine.Choose(id, 0))
	snap = f.wait(t, id, func(s Snapshot) bool {
		return suspended(s) && len(s.Prompt.Options) == 1
	})
	assert.Equal(t, 1, snap.Prompt.Options[0].Index)

	require.NoError(t, f.engine.Choose(id, 1))
	// Everything consumed: the exit is taken without another prompt.
	final := f.waitDone(t, id)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, "after", final.PageID)
}

func TestPumpBlockContinueWaitsForTerminal(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindPump, &PumpPayload{Device: "pump", Action: "timed", Duration: 0.05, BlockContinue: true}),
			node(KindSetVariable, &SetVariablePayload{Name: "after", Value: "1"}),
		),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)
	snap := f.waitDone(t, id)
	assert.Equal(t, StatusCompleted, snap.Status)

	trs := f.mock.Transitions("pump")
	require.Len(t, trs, 2)
	assert.True(t, trs[0].On)
	assert.False(t, trs[1].On)
	assert.True(t, f.store.Exists("Flow:after"))
}

func TestPumpFireAndForgetOutlivesExecution(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindPump, &PumpPayload{Device: "pump", Action: "timed", Duration: 0.15}),
		),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	snap := f.waitDone(t, id)
	assert.Equal(t, StatusCompleted, snap.Status)

	// The device task was detached, not cancelled: it finishes on its own.
	require.Eventually(t, func() bool {
		trs := f.mock.Transitions("pump")
		return len(trs) == 2 && !trs[1].On
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDeviceFailureAbortsBlockingNode(t *testing.T) {
	f := newFixture(t)
	f.mock.FailWith("pump", assert.AnError)
	g := graph(t,
		page("p1",
			node(KindPump, &PumpPayload{Device: "pump", Action: "timed", Duration: 0.05, BlockContinue: true}),
		),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	snap := f.waitDone(t, id)
	assert.Equal(t, StatusAborted, snap.Status)
	assert.NotEmpty(t, snap.Reason)
}

func TestParallelWaitsForSlowestChild(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindParallel, &ParallelPayload{Children: []*Node{
				node(KindSetVariable, &SetVariablePayload{Name: "instant", Value: "1"}),
				node(KindDelay, &DelayPayload{Seconds: 0.1}),
				node(KindMockPump, &PumpPayload{Device: "mock_pump", Action: "timed", Duration: 0.05}),
			}}),
		),
	)

	start := time.Now()
	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	snap := f.waitDone(t, id)
	elapsed := time.Since(start)

	assert.Equal(t, StatusCompleted, snap.Status)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.True(t, f.store.Exists("Flow:instant"))

	trs := f.mock.Transitions("mock_pump")
	require.Len(t, trs, 2)
}

func TestParallelWithOnlyInstantChildrenIsImmediate(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindParallel, &ParallelPayload{Children: []*Node{
				node(KindSetVariable, &SetVariablePayload{Name: "a", Value: "1"}),
				node(KindSetVariable, &SetVariablePayload{Name: "b", Value: "2"}),
			}}),
		),
	)

	start := time.Now()
	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)
	f.waitDone(t, id)

	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestUntilThresholdAdvancesOnJump(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetCapacity(40)
	g := graph(t,
		page("p1",
			node(KindPump, &PumpPayload{
				Device: "pump", Action: "on",
				UntilEnabled: true, UntilType: session.LevelCapacity, UntilValue: 50,
				BlockContinue: true,
			}),
			node(KindSetVariable, &SetVariablePayload{Name: "past", Value: "1"}),
		),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	// Still blocked below the threshold.
	time.Sleep(50 * time.Millisecond)
	snap, err := f.engine.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, snap.Status)
	assert.False(t, f.store.Exists("Flow:past"))

	// One jump straight past the threshold must not be missed.
	f.monitor.SetCapacity(70)

	final := f.waitDone(t, id)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.True(t, f.store.Exists("Flow:past"))
}

func TestCancelDuringBlockedPump(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindPump, &PumpPayload{
				Device: "pump", Action: "on",
				UntilEnabled: true, UntilType: session.LevelCapacity, UntilValue: 50,
				BlockContinue: true,
			}),
			node(KindSetVariable, &SetVariablePayload{Name: "never", Value: "1"}),
		),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)
	f.wait(t, id, func(s Snapshot) bool {
		return len(f.mock.Transitions("pump")) >= 1
	})

	require.NoError(t, f.engine.Cancel(id, "changed my mind"))
	snap := f.waitDone(t, id)

	assert.Equal(t, StatusAborted, snap.Status)
	assert.Equal(t, "changed my mind", snap.Reason)
	assert.False(t, f.store.Exists("Flow:never"))

	trs := f.mock.Transitions("pump")
	assert.False(t, trs[len(trs)-1].On, "device must end up off")

	// Idempotent after completion.
	require.NoError(t, f.engine.Cancel(id, "again"))
	snap, err = f.engine.Status(id)
	require.NoError(t, err)
	assert.Equal(t, "changed my mind", snap.Reason)
}

func TestEmergencyStopDuringBlockedPump(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindPump, &PumpPayload{
				Device: "pump", Action: "on",
				UntilEnabled: true, UntilType: session.LevelCapacity, UntilValue: 50,
				BlockContinue: true,
			}),
			node(KindSetVariable, &SetVariablePayload{Name: "never", Value: "1"}),
		),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)
	f.wait(t, id, func(s Snapshot) bool {
		return len(f.mock.Transitions("pump")) >= 1
	})

	require.NoError(t, f.engine.EmergencyStop(context.Background()))
	snap := f.waitDone(t, id)

	assert.Equal(t, StatusAborted, snap.Status)
	assert.Equal(t, "emergency stop", snap.Reason)
	assert.False(t, f.store.Exists("Flow:never"))

	trs := f.mock.Transitions("pump")
	assert.False(t, trs[len(trs)-1].On)

	// Second stop with nothing running is a no-op.
	require.NoError(t, f.engine.EmergencyStop(context.Background()))
}

func TestPopupConfirmAndCancel(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindPopup, &PopupPayload{Text: "Ready?"}),
			node(KindSetVariable, &SetVariablePayload{Name: "after", Value: "1"}),
		),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)
	f.wait(t, id, suspended)
	require.NoError(t, f.engine.Confirm(id, true))
	snap := f.waitDone(t, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.True(t, f.store.Exists("Flow:after"))

	// Cancel on the popup aborts the execution.
	id2, err := f.engine.Start(g, trig())
	require.NoError(t, err)
	f.wait(t, id2, suspended)
	require.NoError(t, f.engine.Confirm(id2, false))
	snap2 := f.waitDone(t, id2)
	assert.Equal(t, StatusAborted, snap2.Status)
	assert.Equal(t, "popup cancelled", snap2.Reason)
}

// A duplicate choice answer that is still in flight when the flow advances
// to a popup must be dropped, not read as the popup's (negative) confirm.
func TestStaleChoiceDoesNotAnswerPopup(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindPopup, &PopupPayload{Text: "Ready?"}),
			node(KindEnd, &EndPayload{Ending: EndingGood}),
		),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)
	f.wait(t, id, suspended)

	exec, err := f.engine.get(id)
	require.NoError(t, err)

	// Queue a choice answer directly, as a delivery that passed the prompt
	// check just before the popup suspended would.
	go func() {
		select {
		case exec.interactions <- interaction{kind: InteractChoice, option: 0}:
		case <-exec.Finished():
		}
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, f.engine.Confirm(id, true))
	snap := f.waitDone(t, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, EndingGood, snap.Ending)
}

// seedForRoll finds a seed whose first Intn(n)+1 is the wanted face, so the
// dice scenario goes through the engine's real sampling path.
func seedForRoll(t *testing.T, diceType, want int) int64 {
	t.Helper()
	for seed := int64(0); seed < 10000; seed++ {
		if rand.New(rand.NewSource(seed)).Intn(diceType)+1 == want {
			return seed
		}
	}
	t.Fatalf("no seed rolls %d on a d%d", want, diceType)
	return 0
}

func TestDiceChallengeThroughEngine(t *testing.T) {
	f := newFixture(t)
	f.engine.SeedChallenges(seedForRoll(t, 6, 5))

	g := graph(t,
		page("p1",
			node(KindChallengeDice, &DicePayload{
				ChallengeCommon: ChallengeCommon{ResultVariable: "roll"},
				DiceType:        6,
				Mode:            "ranges",
				Ranges: []DiceRange{
					{Min: 1, Max: 3, Label: "low", TargetPageID: "PageA"},
					{Min: 4, Max: 6, Label: "high", TargetPageID: "PageB"},
				},
			}),
		),
		page("PageA", node(KindEnd, &EndPayload{Ending: EndingBad})),
		page("PageB", node(KindEnd, &EndPayload{Ending: EndingGood})),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	snap := f.waitDone(t, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, EndingGood, snap.Ending)
	assert.Equal(t, "PageB", snap.PageID)

	v, _ := f.store.Get("Flow:roll")
	assert.Equal(t, "5", v)
}

func TestChallengeSkipEscape(t *testing.T) {
	f := newFixture(t)
	g := graph(t,
		page("p1",
			node(KindChallengeCoin, &CoinPayload{
				ChallengeCommon:   ChallengeCommon{SkipTargetPageID: "skipped"},
				HeadsTargetPageID: "skipped",
				TailsTargetPageID: "skipped",
			}),
		),
		page("skipped", node(KindEnd, &EndPayload{})),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	snap := f.wait(t, id, suspended)
	require.Equal(t, InteractConfirm, snap.Prompt.Kind)

	require.NoError(t, f.engine.Confirm(id, false))
	final := f.waitDone(t, id)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, "skipped", final.PageID)
}

func TestGuessGameThroughEngine(t *testing.T) {
	f := newFixture(t)
	f.engine.SeedChallenges(1)
	target := NewGuessGame(&GuessPayload{Min: 1, Max: 10}, rand.New(rand.NewSource(1))).Target()

	g := graph(t,
		page("p1",
			node(KindChallengeGuess, &GuessPayload{
				ChallengeCommon:     ChallengeCommon{ResultVariable: "number"},
				Min:                 1,
				Max:                 10,
				Hints:               true,
				SuccessTargetPageID: "won",
			}),
		),
		page("won", node(KindEnd, &EndPayload{Ending: EndingGood})),
	)

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	snap := f.wait(t, id, suspended)
	require.Equal(t, InteractGuess, snap.Prompt.Kind)

	wrong := target - 1
	if wrong < 1 {
		wrong = target + 1
	}
	require.NoError(t, f.engine.Guess(id, wrong))

	snap = f.wait(t, id, func(s Snapshot) bool {
		return suspended(s) && s.Prompt.Hint != ""
	})
	if wrong < target {
		assert.Equal(t, "higher", snap.Prompt.Hint)
	} else {
		assert.Equal(t, "lower", snap.Prompt.Hint)
	}

	require.NoError(t, f.engine.Guess(id, target))
	final := f.waitDone(t, id)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, "won", final.PageID)
}

func TestConcurrentExecutionsDoNotBlockEachOther(t *testing.T) {
	f := newFixture(t)
	blocked := graph(t,
		page("p1", node(KindPopup, &PopupPayload{Text: "wait"})),
	)
	quick := graph(t,
		page("p1", node(KindSetVariable, &SetVariablePayload{Name: "quick", Value: "1"})),
	)

	blockedID, err := f.engine.Start(blocked, trig())
	require.NoError(t, err)
	f.wait(t, blockedID, suspended)

	quickID, err := f.engine.Start(quick, trig())
	require.NoError(t, err)
	snap := f.waitDone(t, quickID)
	assert.Equal(t, StatusCompleted, snap.Status)

	// The first execution is still suspended, untouched.
	still, err := f.engine.Status(blockedID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, still.Status)

	require.NoError(t, f.engine.Cancel(blockedID, "cleanup"))
	f.waitDone(t, blockedID)
}

func TestDanglingPageAbortsExecution(t *testing.T) {
	f := newFixture(t)
	// Built by hand to bypass load-time validation, as a stale saved
	// reference would.
	g := &FlowGraph{
		ID:          "stale",
		StartPageID: "gone",
		Pages: map[string]*Page{
			"p1": page("p1", node(KindNarration, &TextPayload{Text: "x"})),
		},
		PageOrder: []string{"p1"},
	}

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)

	snap := f.waitDone(t, id)
	assert.Equal(t, StatusAborted, snap.Status)
	assert.Contains(t, snap.Reason, "gone")
}

func TestInteractionRejectedWhenNotWaiting(t *testing.T) {
	f := newFixture(t)
	g := graph(t, page("p1", node(KindEnd, &EndPayload{})))

	id, err := f.engine.Start(g, trig())
	require.NoError(t, err)
	f.waitDone(t, id)

	assert.Error(t, f.engine.Choose(id, 0))
	assert.Error(t, f.engine.Confirm(id, true))
	assert.Error(t, f.engine.Guess(id, 3))
	assert.Error(t, f.engine.Choose("no-such-exec", 0))
}
