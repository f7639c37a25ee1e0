package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/familytree/gedcom"
	"github.com/camden-git/familytree/tree"
)

const familyGedcom = "0 @I1@ INDI\n1 NAME John /Smith/\n1 SEX M\n1 BIRT\n2 DATE 1900\n" +
	"0 @I2@ INDI\n1 NAME Jane /Doe/\n1 SEX F\n" +
	"0 @I3@ INDI\n1 NAME Bob /Smith/\n" +
	"0 @I4@ INDI\n1 NAME Ann /Smith/\n1 SEX F\n1 DEAT Y\n" +
	"0 @F1@ FAM\n1 HUSB @I1@\n1 WIFE @I2@\n1 CHIL @I3@\n1 CHIL @I4@\n0 TRLR"

func fixture(t *testing.T) ([]gedcom.Person, State, Params) {
	t.Helper()
	tr := tree.New(gedcom.Parse(familyGedcom).People)
	links, gens := tr.Graph()
	p := DefaultParams()
	people := tr.People()
	return people, NewState(people, links, gens, nil, p), p
}

func TestNewState_Seeding(t *testing.T) {
	_, s, p := fixture(t)
	require.Len(t, s.Nodes, 4)
	assert.Len(t, s.Edges, 5, "four child edges and one couple edge")
	assert.Equal(t, p.Alpha, s.Alpha)

	n, ok := s.Node("I3")
	require.True(t, ok)
	assert.Equal(t, 1, n.Gen)

	seen := make(map[Pos]bool)
	for _, n := range s.Nodes {
		assert.False(t, seen[n.Pos()], "cold seeds must not coincide")
		seen[n.Pos()] = true
	}
}

func TestNewState_WarmStart(t *testing.T) {
	people, _, p := fixture(t)
	links, gens := tree.New(people).Graph()
	warm := map[string]Pos{"I1": {X: 300, Y: -20}}

	s := NewState(people, links, gens, warm, p)
	n, _ := s.Node("I1")
	assert.Equal(t, Pos{X: 300, Y: -20}, n.Pos())
}

func TestTick_IsPure(t *testing.T) {
	_, s, p := fixture(t)
	before := append([]Node(nil), s.Nodes...)

	a := Tick(s, p)
	b := Tick(s, p)
	assert.Equal(t, before, s.Nodes, "input state untouched")
	assert.Equal(t, a.Nodes, b.Nodes, "deterministic")
	assert.Equal(t, 1, a.Ticks)
	assert.Less(t, a.Alpha, s.Alpha)
}

func TestRun_ConvergesToGenerationRows(t *testing.T) {
	people, s, p := fixture(t)
	s = Run(s, p, 2000)
	require.True(t, s.Stable(p))

	pos := s.Positions()
	require.Len(t, pos, len(people))
	john, jane, bob, ann := pos["I1"], pos["I2"], pos["I3"], pos["I4"]

	assert.InDelta(t, john.Y, jane.Y, p.Style.CardHeight/2, "couple shares a row")
	assert.Greater(t, bob.Y, john.Y+p.Style.CardHeight, "children sit below parents")
	assert.Greater(t, ann.Y, jane.Y+p.Style.CardHeight)
	assert.InDelta(t, bob.Y, ann.Y, p.Style.CardHeight/2)

	for i, a := range s.Nodes {
		for _, b := range s.Nodes[i+1:] {
			assert.Greater(t, a.Pos().Sub(b.Pos()).Len(), p.Style.CardHeight, "%s and %s overlap", a.ID, b.ID)
		}
	}

	sumX := 0.0
	for _, n := range s.Nodes {
		sumX += n.X
	}
	assert.InDelta(t, 0, sumX/float64(len(s.Nodes)), 1, "centered on x")
}

func TestPin_HoldsPosition(t *testing.T) {
	_, s, p := fixture(t)

	pinned, err := s.Pin("I3", Pos{X: 500, Y: 500})
	require.NoError(t, err)
	orig, _ := s.Node("I3")
	assert.False(t, orig.Pinned, "Pin returns a copy")

	for i := 0; i < 10; i++ {
		pinned = Tick(pinned, p)
	}
	n, _ := pinned.Node("I3")
	assert.Equal(t, Pos{X: 500, Y: 500}, n.Pos())

	released, err := pinned.Release("I3")
	require.NoError(t, err)
	released = Tick(released.Reheat(0.5), p)
	n, _ = released.Node("I3")
	assert.NotEqual(t, Pos{X: 500, Y: 500}, n.Pos())

	_, err = s.Pin("ghost", Pos{})
	assert.ErrorIs(t, err, ErrUnknownNode)
	_, err = s.Release("ghost")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestReheat(t *testing.T) {
	_, s, p := fixture(t)
	s = Run(s, p, 2000)
	require.True(t, s.Stable(p))

	hot := s.Reheat(0.3)
	assert.False(t, hot.Stable(p))
	assert.Equal(t, 0.3, hot.Alpha)
	assert.Equal(t, 1.0, s.Reheat(0.3).Reheat(1).Alpha)

	target := s.WithAlphaTarget(0.3)
	for i := 0; i < 50; i++ {
		target = Tick(target, p)
	}
	assert.Greater(t, target.Alpha, 0.1, "alpha decays toward the target, not zero")
}

func TestTick_EmptyState(t *testing.T) {
	p := DefaultParams()
	s := NewState(nil, nil, tree.Generations{}, nil, p)
	s = Run(s, p, 10)
	assert.Empty(t, s.Nodes)
	assert.False(t, math.IsNaN(s.Alpha))
}
