package layout

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Frame is a position update published by a running engine.
type Frame struct {
	Epoch     uint64         `json:"epoch"`
	Tick      int            `json:"tick"`
	Alpha     float64        `json:"alpha"`
	Stable    bool           `json:"stable"`
	Positions map[string]Pos `json:"positions"`
}

type EngineOptions struct {
	Params       Params
	TickInterval time.Duration
	// MaxTicks caps a run between wake-ups; 0 runs until stable.
	MaxTicks int
	// FrameEvery publishes every n-th tick. The final tick of a run is always published.
	FrameEvery int

	OnFrame func(Frame)
	OnError func(error)

	// TickFunc replaces Tick, mainly for tests.
	TickFunc func(State, Params) State
}

// Engine runs a simulation on its own goroutine. Callbacks never run after Stop
// returns, and a failing tick stops the loop without touching the state.
//
// Callbacks must not call Stop.
type Engine struct {
	opts EngineOptions

	mu       sync.Mutex
	state    State
	runTicks int
	cancel   context.CancelFunc
	done     chan struct{}

	epoch atomic.Uint64
	wake  chan struct{}
}

func NewEngine(s State, opts EngineOptions) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 16 * time.Millisecond
	}
	if opts.FrameEvery <= 0 {
		opts.FrameEvery = 1
	}
	if opts.TickFunc == nil {
		opts.TickFunc = Tick
	}
	return &Engine{opts: opts, state: s, wake: make(chan struct{}, 1)}
}

// Start launches the tick loop. It returns false if the loop is already running.
// Calling Start again after a tick error retries from the last good state.
func (e *Engine) Start(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != nil {
		select {
		case <-e.done:
		default:
			return false
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.runTicks = 0
	epoch := e.epoch.Add(1)
	go e.loop(ctx, epoch, e.done)
	return true
}

// Stop cancels the loop and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.epoch.Add(1)
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Running reports whether the loop goroutine is alive.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// State returns the current simulation snapshot.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Positions returns current coordinates, suitable as a warm start.
func (e *Engine) Positions() map[string]Pos {
	return e.State().Positions()
}

// DragStart pins id under the pointer and reheats the simulation.
func (e *Engine) DragStart(id string, at Pos) error {
	return e.drag(id, at, e.opts.Params.DragAlpha)
}

// DragMove moves a pinned node.
func (e *Engine) DragMove(id string, at Pos) error {
	return e.drag(id, at, e.opts.Params.DragAlpha)
}

// DragEnd releases id back into the simulation, which then cools down.
func (e *Engine) DragEnd(id string) error {
	e.mu.Lock()
	next, err := e.state.Release(id)
	if err == nil {
		e.state = next.WithAlphaTarget(0)
		e.runTicks = 0
	}
	e.mu.Unlock()
	if err == nil {
		e.signal()
	}
	return err
}

func (e *Engine) drag(id string, at Pos, alpha float64) error {
	e.mu.Lock()
	next, err := e.state.Pin(id, at)
	if err == nil {
		e.state = next.WithAlphaTarget(alpha).Reheat(alpha)
		e.runTicks = 0
	}
	e.mu.Unlock()
	if err == nil {
		e.signal()
	}
	return err
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) loop(ctx context.Context, epoch uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, idle, err := e.step()
		if err != nil {
			e.emit(epoch, func() {
				if e.opts.OnError != nil {
					e.opts.OnError(err)
				}
			})
			return
		}
		if frame != nil {
			frame.Epoch = epoch
			e.emit(epoch, func() {
				if e.opts.OnFrame != nil {
					e.opts.OnFrame(*frame)
				}
			})
		}
		if idle {
			select {
			case <-ctx.Done():
				return
			case <-e.wake:
			}
		}
	}
}

// step advances one tick under the lock. idle is true when the run is over and
// the loop should wait for a drag.
func (e *Engine) step() (frame *Frame, idle bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := e.safeTick(e.state)
	if err != nil {
		return nil, false, err
	}
	e.state = next
	e.runTicks++

	p := e.opts.Params
	stable := next.Stable(p)
	capped := e.opts.MaxTicks > 0 && e.runTicks >= e.opts.MaxTicks && next.AlphaTarget < p.AlphaMin
	idle = stable || capped

	if idle || e.runTicks%e.opts.FrameEvery == 0 {
		frame = &Frame{
			Tick:      next.Ticks,
			Alpha:     next.Alpha,
			Stable:    stable,
			Positions: next.Positions(),
		}
	}
	return frame, idle, nil
}

func (e *Engine) safeTick(s State) (next State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("layout tick %d panicked: %v", s.Ticks+1, r)
		}
	}()
	return e.opts.TickFunc(s, e.opts.Params), nil
}

// emit runs fn only while epoch is still current.
func (e *Engine) emit(epoch uint64, fn func()) {
	if e.epoch.Load() != epoch {
		return
	}
	fn()
}
