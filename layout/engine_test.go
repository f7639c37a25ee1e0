package layout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameLog struct {
	mu     sync.Mutex
	frames []Frame
	errs   []error
}

func (l *frameLog) onFrame(f Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, f)
}

func (l *frameLog) onError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *frameLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

func (l *frameLog) last() (Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.frames) == 0 {
		return Frame{}, false
	}
	return l.frames[len(l.frames)-1], true
}

func (l *frameLog) errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

func newTestEngine(t *testing.T, log *frameLog, tick func(State, Params) State) *Engine {
	t.Helper()
	_, s, p := fixture(t)
	e := NewEngine(s, EngineOptions{
		Params:       p,
		TickInterval: time.Millisecond,
		FrameEvery:   5,
		OnFrame:      log.onFrame,
		OnError:      log.onError,
		TickFunc:     tick,
	})
	t.Cleanup(e.Stop)
	return e
}

func stableFrame(log *frameLog) func() bool {
	return func() bool {
		f, ok := log.last()
		return ok && f.Stable
	}
}

func TestEngine_RunsUntilStable(t *testing.T) {
	log := &frameLog{}
	e := newTestEngine(t, log, nil)

	require.True(t, e.Start(context.Background()))
	assert.False(t, e.Start(context.Background()), "already running")

	require.Eventually(t, stableFrame(log), 10*time.Second, 5*time.Millisecond)
	f, _ := log.last()
	assert.Len(t, f.Positions, 4)
	assert.Equal(t, e.Positions(), f.Positions)
	assert.True(t, e.Running(), "idle engine waits for drags")

	e.Stop()
	assert.False(t, e.Running())
}

func TestEngine_NoFramesAfterStop(t *testing.T) {
	log := &frameLog{}
	e := newTestEngine(t, log, nil)
	e.Start(context.Background())

	require.Eventually(t, func() bool { return log.count() > 2 }, 5*time.Second, time.Millisecond)
	e.Stop()
	n := log.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, log.count())
}

func TestEngine_ContextCancel(t *testing.T) {
	log := &frameLog{}
	e := newTestEngine(t, log, nil)
	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)
	cancel()
	require.Eventually(t, func() bool { return !e.Running() }, 5*time.Second, time.Millisecond)
}

func TestEngine_TickPanicIsReported(t *testing.T) {
	var calls atomic.Int32
	tick := func(s State, p Params) State {
		if calls.Add(1) == 3 {
			panic("boom")
		}
		return Tick(s, p)
	}
	log := &frameLog{}
	e := newTestEngine(t, log, tick)
	e.Start(context.Background())

	require.Eventually(t, func() bool { return len(log.errors()) == 1 }, 5*time.Second, time.Millisecond)
	assert.Contains(t, log.errors()[0].Error(), "boom")
	require.Eventually(t, func() bool { return !e.Running() }, 5*time.Second, time.Millisecond)
	assert.Equal(t, 2, e.State().Ticks, "failed tick leaves the last good state")

	// retry continues from the last good state
	require.True(t, e.Start(context.Background()))
	require.Eventually(t, stableFrame(log), 10*time.Second, 5*time.Millisecond)
	assert.Len(t, log.errors(), 1)
}

func TestEngine_Drag(t *testing.T) {
	log := &frameLog{}
	e := newTestEngine(t, log, nil)
	e.Start(context.Background())
	require.Eventually(t, stableFrame(log), 10*time.Second, 5*time.Millisecond)

	target := Pos{X: 900, Y: -400}
	require.NoError(t, e.DragStart("I3", target))
	require.NoError(t, e.DragMove("I3", target))
	assert.False(t, e.State().Stable(DefaultParams()))

	require.Eventually(t, func() bool {
		f, ok := log.last()
		return ok && !f.Stable && f.Positions["I3"] == target
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, e.DragEnd("I3"))
	require.Eventually(t, stableFrame(log), 10*time.Second, 5*time.Millisecond)
	n, _ := e.State().Node("I3")
	assert.False(t, n.Pinned)

	assert.ErrorIs(t, e.DragStart("ghost", target), ErrUnknownNode)
	assert.ErrorIs(t, e.DragEnd("ghost"), ErrUnknownNode)
}

func TestEngine_MaxTicks(t *testing.T) {
	log := &frameLog{}
	_, s, p := fixture(t)
	e := NewEngine(s, EngineOptions{
		Params:       p,
		TickInterval: time.Millisecond,
		MaxTicks:     10,
		OnFrame:      log.onFrame,
	})
	t.Cleanup(e.Stop)
	e.Start(context.Background())

	require.Eventually(t, func() bool { return log.count() == 10 }, 5*time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 10, log.count(), "run parks after MaxTicks")
	assert.Equal(t, 10, e.State().Ticks)
}
