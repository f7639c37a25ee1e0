package layout

import (
	"errors"
	"math"
	"slices"

	"github.com/camden-git/familytree/gedcom"
	"github.com/camden-git/familytree/tree"
)

var ErrUnknownNode = errors.New("unknown layout node")

// Node is one person in the simulation. Pinned nodes are held at (FX, FY).
type Node struct {
	ID     string  `json:"id"`
	Gen    int     `json:"gen"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Pinned bool    `json:"pinned,omitempty"`
	FX     float64 `json:"-"`
	FY     float64 `json:"-"`
}

func (n Node) Pos() Pos {
	return Pos{X: n.X, Y: n.Y}
}

// Edge is a tree.Link resolved to node indices.
type Edge struct {
	Source int
	Target int
	Type   tree.LinkType
}

// State is a simulation snapshot. Tick and the State methods never modify their
// receiver; they return a new State.
type State struct {
	Nodes       []Node  `json:"nodes"`
	Edges       []Edge  `json:"-"`
	Alpha       float64 `json:"alpha"`
	AlphaTarget float64 `json:"alphaTarget"`
	Ticks       int     `json:"ticks"`

	index  map[string]int
	degree []int
}

// initialAngle is the golden-angle phyllotaxis step used for cold seeding.
var initialAngle = math.Pi * (3 - math.Sqrt(5))

const initialRadius = 10

// NewState seeds a simulation. Nodes with a warm position start there; others
// are placed on a deterministic phyllotaxis spiral around their generation row.
func NewState(people []gedcom.Person, links []tree.Link, gens tree.Generations, warm map[string]Pos, p Params) State {
	s := State{
		Nodes: make([]Node, 0, len(people)),
		Alpha: p.Alpha,
		index: make(map[string]int, len(people)),
	}
	for _, person := range people {
		if _, dup := s.index[person.ID]; dup {
			continue
		}
		i := len(s.Nodes)
		n := Node{ID: person.ID, Gen: gens.Level(person.ID)}
		if w, ok := warm[person.ID]; ok {
			n.X, n.Y = w.X, w.Y
		} else {
			r := initialRadius * math.Sqrt(0.5+float64(i))
			a := float64(i) * initialAngle
			n.X = r * math.Cos(a)
			n.Y = p.Style.GenerationY(n.Gen) + r*math.Sin(a)
		}
		s.index[person.ID] = i
		s.Nodes = append(s.Nodes, n)
	}

	s.degree = make([]int, len(s.Nodes))
	for _, l := range links {
		si, okS := s.index[l.Source]
		ti, okT := s.index[l.Target]
		if !okS || !okT || si == ti {
			continue
		}
		s.Edges = append(s.Edges, Edge{Source: si, Target: ti, Type: l.Type})
		s.degree[si]++
		s.degree[ti]++
	}
	return s
}

// Index returns the node index of id.
func (s State) Index(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// Node returns the node with id.
func (s State) Node(id string) (Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return Node{}, false
	}
	return s.Nodes[i], true
}

// Positions returns the current coordinates by person id.
func (s State) Positions() map[string]Pos {
	out := make(map[string]Pos, len(s.Nodes))
	for _, n := range s.Nodes {
		out[n.ID] = n.Pos()
	}
	return out
}

// Stable reports whether the simulation has cooled down.
func (s State) Stable(p Params) bool {
	return s.Alpha < p.AlphaMin && s.AlphaTarget < p.AlphaMin
}

func (s State) withNodes() State {
	s.Nodes = slices.Clone(s.Nodes)
	return s
}

// Pin fixes id at pos, as during a drag.
func (s State) Pin(id string, pos Pos) (State, error) {
	i, ok := s.index[id]
	if !ok {
		return s, ErrUnknownNode
	}
	s = s.withNodes()
	n := &s.Nodes[i]
	n.Pinned, n.FX, n.FY = true, pos.X, pos.Y
	return s, nil
}

// Release lets a pinned node move again.
func (s State) Release(id string) (State, error) {
	i, ok := s.index[id]
	if !ok {
		return s, ErrUnknownNode
	}
	s = s.withNodes()
	s.Nodes[i].Pinned = false
	return s, nil
}

// Reheat raises alpha to at least alpha so a cooled simulation moves again.
func (s State) Reheat(alpha float64) State {
	s.Alpha = math.Max(s.Alpha, alpha)
	return s
}

// WithAlphaTarget sets the value alpha decays towards. Drags hold it above zero.
func (s State) WithAlphaTarget(target float64) State {
	s.AlphaTarget = target
	return s
}

// Tick advances the simulation by one step.
func Tick(s State, p Params) State {
	s = s.withNodes()
	s.Ticks++
	s.Alpha += (s.AlphaTarget - s.Alpha) * p.AlphaDecay

	nodes := s.Nodes
	alpha := s.Alpha

	applyLinks(s, p, alpha)
	applyCharge(nodes, p, alpha)
	applyCollide(nodes, p)
	applyGeneration(nodes, p, alpha)

	for i := range nodes {
		n := &nodes[i]
		if n.Pinned {
			n.X, n.Y, n.VX, n.VY = n.FX, n.FY, 0, 0
			continue
		}
		n.VX *= 1 - p.VelocityDecay
		n.VY *= 1 - p.VelocityDecay
		n.X += n.VX
		n.Y += n.VY
	}

	applyCenter(nodes, p)
	return s
}

// Run ticks until the simulation is stable or maxTicks steps have been taken.
func Run(s State, p Params, maxTicks int) State {
	for i := 0; i < maxTicks && !s.Stable(p); i++ {
		s = Tick(s, p)
	}
	return s
}

// jiggle is a tiny deterministic offset for coincident nodes.
func jiggle(i, j int) float64 {
	return float64(i-j) * 1e-6
}

// applyLinks pulls linked nodes toward their rest distance: short and stiff for
// couples, long and loose for parent-child edges.
func applyLinks(s State, p Params, alpha float64) {
	nodes := s.Nodes
	for _, e := range s.Edges {
		src, dst := &nodes[e.Source], &nodes[e.Target]

		distance, strength := p.Style.ChildDistance, p.ChildStrength
		if e.Type == tree.LinkCouple {
			distance, strength = p.Style.CoupleDistance, p.CoupleStrength
		}
		x := dst.X + dst.VX - src.X - src.VX
		y := dst.Y + dst.VY - src.Y - src.VY
		if x == 0 && y == 0 {
			x = jiggle(e.Target, e.Source) + 1e-6
		}
		l := math.Hypot(x, y)
		l = (l - distance) / l * alpha * strength
		x, y = x*l, y*l

		b := 0.5
		if total := s.degree[e.Source] + s.degree[e.Target]; total > 0 {
			b = float64(s.degree[e.Source]) / float64(total)
		}
		dst.VX -= x * b
		dst.VY -= y * b
		src.VX += x * (1 - b)
		src.VY += y * (1 - b)
	}
}

// applyCharge is pairwise many-body repulsion.
func applyCharge(nodes []Node, p Params, alpha float64) {
	maxD2 := p.ChargeDistanceMax * p.ChargeDistanceMax
	const minD2 = 1.0
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			a, b := &nodes[i], &nodes[j]
			x, y := b.X-a.X, b.Y-a.Y
			if x == 0 && y == 0 {
				x = jiggle(j, i)
			}
			l2 := x*x + y*y
			if l2 >= maxD2 {
				continue
			}
			if l2 < minD2 {
				l2 = math.Sqrt(minD2 * l2)
			}
			w := p.ChargeStrength * alpha / l2
			a.VX += x * w
			a.VY += y * w
			b.VX -= x * w
			b.VY -= y * w
		}
	}
}

// applyCollide separates nodes whose card footprints overlap.
func applyCollide(nodes []Node, p Params) {
	r := p.Style.CollideRadius()
	rr := 2 * r
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			a, b := &nodes[i], &nodes[j]
			x := a.X + a.VX - b.X - b.VX
			y := a.Y + a.VY - b.Y - b.VY
			l2 := x*x + y*y
			if l2 >= rr*rr {
				continue
			}
			if x == 0 {
				x = jiggle(i, j) + 1e-6
			}
			l := math.Sqrt(x*x + y*y)
			l = (rr - l) / l * p.CollideStrength / 2
			a.VX += x * l
			a.VY += y * l
			b.VX -= x * l
			b.VY -= y * l
		}
	}
}

// applyGeneration pins each node to its generation row and weakly to x = 0.
func applyGeneration(nodes []Node, p Params, alpha float64) {
	for i := range nodes {
		n := &nodes[i]
		n.VY += (p.Style.GenerationY(n.Gen) - n.Y) * p.GenStrength * alpha
		n.VX += (0 - n.X) * p.XStrength * alpha
	}
}

// applyCenter shifts free nodes so their mean sits on x = 0 and on the mean
// generation row.
func applyCenter(nodes []Node, p Params) {
	var sx, sy, ty float64
	free := 0
	for _, n := range nodes {
		if n.Pinned {
			continue
		}
		sx += n.X
		sy += n.Y
		ty += p.Style.GenerationY(n.Gen)
		free++
	}
	if free == 0 {
		return
	}
	dx := (sx / float64(free)) * p.CenterStrength
	dy := ((sy - ty) / float64(free)) * p.CenterStrength
	for i := range nodes {
		if nodes[i].Pinned {
			continue
		}
		nodes[i].X -= dx
		nodes[i].Y -= dy
	}
}
