package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"github.com/camden-git/familytree/layout"
	"github.com/camden-git/familytree/metrics"
	"github.com/camden-git/familytree/realtime"
	"github.com/camden-git/familytree/tree"
)

// maxHeadlessTicks bounds a single headless layout request.
const maxHeadlessTicks = 5000

// SnapshotSource yields the current tree of an id.
type SnapshotSource interface {
	Snapshot(treeID uint) (*tree.Tree, error)
}

type LayoutOptions struct {
	Params          layout.Params
	TickInterval    time.Duration
	BroadcastEvery  int
	MaxTicks        int
	RestartDebounce time.Duration
}

// LayoutRequest selects how a headless layout is computed.
type LayoutRequest struct {
	Ticks  int    `json:"ticks" validate:"gte=0,lte=5000"`
	Locale string `json:"locale" validate:"omitempty,max=16"`
}

// LayoutResult is a headless layout: node positions plus draw commands.
type LayoutResult struct {
	Nodes    []layout.Node        `json:"nodes"`
	Commands []layout.DrawCommand `json:"commands"`
	Bounds   *layout.Rect         `json:"bounds,omitempty"`
	Ticks    int                  `json:"ticks"`
	Stable   bool                 `json:"stable"`
}

// DragRequest drives a live engine from a pointer.
type DragRequest struct {
	Phase    string  `json:"phase" validate:"required,oneof=start move end"`
	PersonID string  `json:"personId" validate:"required"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type liveLayout struct {
	mu       sync.Mutex
	engine   *layout.Engine
	debounce func(func())
}

// LayoutService runs one live layout engine per tree and computes headless
// layouts on demand. Live engines restart from their last positions when the
// tree changes, with bursts of edits coalesced into one restart.
type LayoutService struct {
	Trees SnapshotSource
	Hub   realtime.Broadcaster
	opts  LayoutOptions

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	live map[uint]*liveLayout
	warm map[uint]map[string]layout.Pos
}

func NewLayoutService(trees SnapshotSource, hub realtime.Broadcaster, opts LayoutOptions) *LayoutService {
	if opts.Params == (layout.Params{}) {
		opts.Params = layout.DefaultParams()
	}
	if opts.BroadcastEvery <= 0 {
		opts.BroadcastEvery = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LayoutService{
		Trees:  trees,
		Hub:    hub,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		live:   make(map[uint]*liveLayout),
		warm:   make(map[uint]map[string]layout.Pos),
	}
}

// Compute runs a headless simulation of a tree, warm-started from the live
// engine or the previous computation.
func (s *LayoutService) Compute(treeID uint, req LayoutRequest) (*LayoutResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: ticks must be between 0 and %d", tree.ErrValidation, maxHeadlessTicks)
	}
	snapshot, err := s.Trees.Snapshot(treeID)
	if err != nil {
		return nil, err
	}
	ticks := req.Ticks
	if ticks == 0 {
		ticks = s.opts.MaxTicks
	}
	if ticks <= 0 {
		ticks = 300
	}

	p := s.opts.Params
	people := snapshot.People()
	links, gens := snapshot.Graph()
	state := layout.NewState(people, links, gens, s.positions(treeID), p)
	state = layout.Run(state, p, ticks)
	s.remember(treeID, state.Positions())

	result := &LayoutResult{
		Nodes:    state.Nodes,
		Commands: layout.Render(state, people, layout.RenderOptions{Style: p.Style, Locale: req.Locale}),
		Ticks:    state.Ticks,
		Stable:   state.Stable(p),
	}
	if result.Nodes == nil {
		result.Nodes = []layout.Node{}
	}
	if b, ok := layout.Bounds(state, p.Style); ok {
		result.Bounds = &b
	}
	return result, nil
}

// RenderSVG computes a layout and writes it as an SVG document.
func (s *LayoutService) RenderSVG(w io.Writer, treeID uint, req LayoutRequest, padding float64) error {
	result, err := s.Compute(treeID, req)
	if err != nil {
		return err
	}
	return layout.WriteSVG(w, result.Commands, layout.SvgOptions{Style: s.opts.Params.Style, Padding: padding})
}

// Fit returns the camera transform showing a whole tree inside vp.
func (s *LayoutService) Fit(treeID uint, req LayoutRequest, vp layout.Viewport, padding float64) (layout.Transform, error) {
	result, err := s.Compute(treeID, req)
	if err != nil {
		return layout.Identity, err
	}
	if result.Bounds == nil {
		return layout.Identity, nil
	}
	return layout.Fit(*result.Bounds, vp, padding), nil
}

// Drag forwards a pointer event to the live engine of a tree, starting the
// engine when needed.
func (s *LayoutService) Drag(treeID uint, req DragRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: phase must be start, move or end and personId is required", tree.ErrValidation)
	}
	ll, err := s.ensure(treeID)
	if err != nil {
		return err
	}

	ll.mu.Lock()
	defer ll.mu.Unlock()
	at := layout.Pos{X: req.X, Y: req.Y}
	switch req.Phase {
	case "start":
		err = ll.engine.DragStart(req.PersonID, at)
	case "move":
		err = ll.engine.DragMove(req.PersonID, at)
	default:
		err = ll.engine.DragEnd(req.PersonID)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", tree.ErrPersonNotFound, req.PersonID, err)
	}
	// a drag on an engine that stopped after a tick error retries it
	ll.engine.Start(s.ctx)
	return nil
}

// Start ensures a live engine runs for treeID.
func (s *LayoutService) Start(treeID uint) error {
	_, err := s.ensure(treeID)
	return err
}

func (s *LayoutService) ensure(treeID uint) (*liveLayout, error) {
	s.mu.Lock()
	ll, ok := s.live[treeID]
	s.mu.Unlock()
	if ok {
		return ll, nil
	}

	snapshot, err := s.Trees.Snapshot(treeID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ll, ok := s.live[treeID]; ok {
		return ll, nil
	}
	ll = &liveLayout{
		engine:   s.newEngine(treeID, snapshot, s.warm[treeID]),
		debounce: debounce.New(s.opts.RestartDebounce),
	}
	ll.engine.Start(s.ctx)
	s.live[treeID] = ll
	metrics.LayoutSessionsActive.Inc()
	zap.S().Infof("Started live layout for tree %d (%d people)", treeID, snapshot.Len())
	return ll, nil
}

// TreeChanged is a ChangeListener: live engines restart, deleted trees stop.
func (s *LayoutService) TreeChanged(treeID uint, snapshot *tree.Tree) {
	if snapshot == nil {
		s.Stop(treeID)
		s.mu.Lock()
		delete(s.warm, treeID)
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	ll, ok := s.live[treeID]
	s.mu.Unlock()
	if ok {
		ll.debounce(func() { s.restart(treeID, ll) })
	}
}

// Positions returns the latest known positions of a tree.
func (s *LayoutService) Positions(treeID uint) map[string]layout.Pos {
	return s.positions(treeID)
}

// Running reports whether a live engine exists for treeID.
func (s *LayoutService) Running(treeID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[treeID]
	return ok
}

// Stop halts the live engine of a tree, keeping its positions for later.
func (s *LayoutService) Stop(treeID uint) {
	s.mu.Lock()
	ll, ok := s.live[treeID]
	delete(s.live, treeID)
	s.mu.Unlock()
	if !ok {
		return
	}

	ll.mu.Lock()
	ll.engine.Stop()
	s.remember(treeID, ll.engine.Positions())
	ll.mu.Unlock()
	metrics.LayoutSessionsActive.Dec()
	zap.S().Infof("Stopped live layout for tree %d", treeID)
}

// Shutdown stops every live engine.
func (s *LayoutService) Shutdown() {
	s.cancel()
	s.mu.Lock()
	ids := make([]uint, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Stop(id)
	}
}

func (s *LayoutService) restart(treeID uint, ll *liveLayout) {
	snapshot, err := s.Trees.Snapshot(treeID)
	if err != nil {
		zap.S().Warnf("Layout restart for tree %d skipped: %v", treeID, err)
		return
	}

	ll.mu.Lock()
	defer ll.mu.Unlock()
	s.mu.Lock()
	current := s.live[treeID] == ll
	s.mu.Unlock()
	if !current {
		return
	}

	warm := ll.engine.Positions()
	ll.engine.Stop()
	s.remember(treeID, warm)
	ll.engine = s.newEngine(treeID, snapshot, warm)
	ll.engine.Start(s.ctx)
	zap.S().Debugf("Restarted live layout for tree %d", treeID)
}

func (s *LayoutService) newEngine(treeID uint, snapshot *tree.Tree, warm map[string]layout.Pos) *layout.Engine {
	p := s.opts.Params
	links, gens := snapshot.Graph()
	state := layout.NewState(snapshot.People(), links, gens, warm, p)
	return layout.NewEngine(state, layout.EngineOptions{
		Params:       p,
		TickInterval: s.opts.TickInterval,
		MaxTicks:     s.opts.MaxTicks,
		FrameEvery:   s.opts.BroadcastEvery,
		OnFrame: func(f layout.Frame) {
			metrics.LayoutTicksTotal.Inc()
			if s.Hub != nil {
				s.Hub.Broadcast(realtime.Event{Type: realtime.EventLayoutTick, TreeID: treeID, Data: f})
			}
		},
		OnError: func(err error) {
			zap.S().Errorf("Live layout for tree %d failed: %v", treeID, err)
			if s.Hub != nil {
				s.Hub.Broadcast(realtime.Event{Type: realtime.EventLayoutError, TreeID: treeID, Error: err.Error()})
			}
		},
	})
}

func (s *LayoutService) positions(treeID uint) map[string]layout.Pos {
	s.mu.Lock()
	ll, ok := s.live[treeID]
	warm := s.warm[treeID]
	s.mu.Unlock()
	if ok {
		ll.mu.Lock()
		defer ll.mu.Unlock()
		return ll.engine.Positions()
	}
	return warm
}

func (s *LayoutService) remember(treeID uint, pos map[string]layout.Pos) {
	if len(pos) == 0 {
		return
	}
	s.mu.Lock()
	s.warm[treeID] = pos
	s.mu.Unlock()
}
