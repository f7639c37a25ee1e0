package tree

import "github.com/camden-git/familytree/gedcom"

// DefaultMaxPasses bounds the generation solver so relationship cycles terminate.
const DefaultMaxPasses = 50

// Generations holds the solved level per person id. Converged is false when the
// pass bound was hit, which only happens on cyclic data.
type Generations struct {
	Levels    map[string]int `json:"levels"`
	Passes    int            `json:"passes"`
	Converged bool           `json:"converged"`
}

// Level returns the generation of id, 0 for unknown ids.
func (g Generations) Level(id string) int {
	return g.Levels[id]
}

// Max returns the deepest generation.
func (g Generations) Max() int {
	m := 0
	for _, l := range g.Levels {
		m = max(m, l)
	}
	return m
}

// SolveGenerations propagates levels to a fixed point: a child edge pushes the
// child at least one level below its parent, a couple edge levels both partners
// to the deeper of the two. maxPasses <= 0 selects DefaultMaxPasses.
func SolveGenerations(people []gedcom.Person, links []Link, maxPasses int) Generations {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}

	levels := make(map[string]int, len(people))
	for _, p := range people {
		levels[p.ID] = 0
	}

	g := Generations{Levels: levels}
	for g.Passes < maxPasses {
		g.Passes++
		changed := false
		for _, l := range links {
			s, okS := levels[l.Source]
			t, okT := levels[l.Target]
			if !okS || !okT {
				continue
			}
			switch l.Type {
			case LinkChild:
				if t < s+1 {
					levels[l.Target] = s + 1
					changed = true
				}
			case LinkCouple:
				if s != t {
					m := max(s, t)
					levels[l.Source], levels[l.Target] = m, m
					changed = true
				}
			}
		}
		if !changed {
			g.Converged = true
			break
		}
	}
	return g
}
