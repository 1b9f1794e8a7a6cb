package device

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenloom/session"
)

func testGateway(t *testing.T) (*Gateway, *Mock, *session.Monitor) {
	t.Helper()
	mock := NewMock()
	reg := NewRegistry()
	reg.Register("pump", mock)
	monitor := session.NewMonitor()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return NewGateway(reg, monitor, logger), mock, monitor
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func waitResult(t *testing.T, h Handle) Result {
	t.Helper()
	select {
	case res := <-h.Done():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("actuation did not reach a terminal state")
		return Result{}
	}
}

func TestOffCompletesImmediately(t *testing.T) {
	g, mock, _ := testGateway(t)
	h, err := g.Actuate(context.Background(), Request{Device: "pump", Action: ActionOff})
	require.NoError(t, err)
	res := waitResult(t, h)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	on, _ := mock.State(context.Background(), "pump")
	assert.False(t, on)
}

func TestOnWithoutUntilCompletesAndStaysOn(t *testing.T) {
	g, mock, _ := testGateway(t)
	h, err := g.Actuate(context.Background(), Request{Device: "pump", Action: ActionOn})
	require.NoError(t, err)
	res := waitResult(t, h)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	on, _ := mock.State(context.Background(), "pump")
	assert.True(t, on)
}

func TestCycleRunsExactCount(t *testing.T) {
	g, mock, _ := testGateway(t)
	h, err := g.Actuate(context.Background(), Request{
		Device:   "pump",
		Action:   ActionCycle,
		Duration: 10 * time.Millisecond,
		Interval: 5 * time.Millisecond,
		Cycles:   3,
	})
	require.NoError(t, err)
	res := waitResult(t, h)
	require.Equal(t, OutcomeCompleted, res.Outcome)

	trs := mock.Transitions("pump")
	require.Len(t, trs, 6)
	for i, tr := range trs {
		assert.Equal(t, i%2 == 0, tr.On, "transition %d", i)
	}
	// Each on-period must at least span the configured duration.
	for i := 0; i < 6; i += 2 {
		assert.GreaterOrEqual(t, trs[i+1].At.Sub(trs[i].At), 10*time.Millisecond)
	}
}

func TestTimedTurnsOffAfterDuration(t *testing.T) {
	g, mock, _ := testGateway(t)
	h, err := g.Actuate(context.Background(), Request{
		Device:   "pump",
		Action:   ActionTimed,
		Duration: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	res := waitResult(t, h)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	on, _ := mock.State(context.Background(), "pump")
	assert.False(t, on)
}

func TestPulseEmitsRequestedBursts(t *testing.T) {
	g, mock, _ := testGateway(t)
	h, err := g.Actuate(context.Background(), Request{
		Device:   "pump",
		Action:   ActionPulse,
		Duration: 5 * time.Millisecond,
		Interval: 5 * time.Millisecond,
		Pulses:   4,
	})
	require.NoError(t, err)
	res := waitResult(t, h)
	require.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Len(t, mock.Transitions("pump"), 8)
}

func TestUntilCompletesOnThresholdJump(t *testing.T) {
	g, _, monitor := testGateway(t)
	monitor.SetCapacity(40)

	h, err := g.Actuate(context.Background(), Request{
		Device: "pump",
		Action: ActionOn,
		Until:  &Until{Kind: session.LevelCapacity, Value: 50},
	})
	require.NoError(t, err)

	select {
	case <-h.Done():
		t.Fatal("actuation completed below the threshold")
	case <-time.After(30 * time.Millisecond):
	}

	// A jump straight past the threshold must still complete the actuation.
	monitor.SetCapacity(70)
	res := waitResult(t, h)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
}

func TestUntilAlreadyPastThreshold(t *testing.T) {
	g, _, monitor := testGateway(t)
	monitor.SetCapacity(80)
	h, err := g.Actuate(context.Background(), Request{
		Device: "pump",
		Action: ActionOn,
		Until:  &Until{Kind: session.LevelCapacity, Value: 50},
	})
	require.NoError(t, err)
	res := waitResult(t, h)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
}

func TestCancelInterruptsAndTurnsOff(t *testing.T) {
	g, mock, _ := testGateway(t)
	h, err := g.Actuate(context.Background(), Request{
		Device:   "pump",
		Action:   ActionTimed,
		Duration: 10 * time.Second,
	})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	h.Cancel()
	res := waitResult(t, h)
	assert.Equal(t, OutcomeInterrupted, res.Outcome)
	on, _ := mock.State(context.Background(), "pump")
	assert.False(t, on)
}

func TestCancelIsIdempotentAfterCompletion(t *testing.T) {
	g, _, _ := testGateway(t)
	h, err := g.Actuate(context.Background(), Request{Device: "pump", Action: ActionOff})
	require.NoError(t, err)
	waitResult(t, h)
	h.Cancel()
	h.Cancel()
	assert.Equal(t, 0, g.Active())
}

func TestActuationFailureReportsReason(t *testing.T) {
	g, mock, _ := testGateway(t)
	mock.FailWith("pump", errors.New("plug unreachable"))
	h, err := g.Actuate(context.Background(), Request{Device: "pump", Action: ActionOn})
	require.NoError(t, err)
	res := waitResult(t, h)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorContains(t, res.Err, "plug unreachable")
}

func TestStopAllInterruptsEverything(t *testing.T) {
	g, mock, _ := testGateway(t)
	h1, err := g.Actuate(context.Background(), Request{Device: "pump", Action: ActionCycle, Duration: time.Second, Cycles: 0})
	require.NoError(t, err)
	h2, err := g.Actuate(context.Background(), Request{
		Device: "pump", Action: ActionOn,
		Until: &Until{Kind: session.LevelCapacity, Value: 50},
	})
	require.NoError(t, err)

	require.NoError(t, g.StopAll(context.Background()))

	assert.Equal(t, OutcomeInterrupted, waitResult(t, h1).Outcome)
	assert.Equal(t, OutcomeInterrupted, waitResult(t, h2).Outcome)
	on, _ := mock.State(context.Background(), "pump")
	assert.False(t, on)
	// Second invocation is a no-op.
	require.NoError(t, g.StopAll(context.Background()))
}

func TestUnknownDeviceIsRejected(t *testing.T) {
	g, _, _ := testGateway(t)
	_, err := g.Actuate(context.Background(), Request{Device: "ghost", Action: ActionOn})
	assert.Error(t, err)
}

func TestContextCancelPropagates(t *testing.T) {
	g, _, _ := testGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	h, err := g.Actuate(ctx, Request{Device: "pump", Action: ActionTimed, Duration: 10 * time.Second})
	require.NoError(t, err)
	cancel()
	assert.Equal(t, OutcomeInterrupted, waitResult(t, h).Outcome)
}
