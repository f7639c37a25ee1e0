package layout

import (
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/camden-git/familytree/gedcom"
)

type DrawKind string

const (
	DrawCard        DrawKind = "card"
	DrawCoupleOuter DrawKind = "couple-outer"
	DrawCoupleInner DrawKind = "couple-inner"
	DrawChildPath   DrawKind = "child-path"
)

// DrawCommand is one backend-independent drawing primitive. Cards use Rect;
// strokes and paths use Points.
type DrawCommand struct {
	Kind     DrawKind `json:"kind"`
	ID       string   `json:"id"`
	Rect     *Rect    `json:"rect,omitempty"`
	Points   []Pos    `json:"points,omitempty"`
	Label    string   `json:"label,omitempty"`
	Detail   string   `json:"detail,omitempty"`
	Fill     string   `json:"fill,omitempty"`
	Stroke   string   `json:"stroke,omitempty"`
	Text     string   `json:"text,omitempty"`
	Width    float64  `json:"width,omitempty"`
	Deceased bool     `json:"deceased,omitempty"`
}

type RenderOptions struct {
	Style  Style
	Locale string
}

// Render turns a simulation state into draw commands: child paths first, couple
// strokes above them, cards on top. People missing from the state are skipped.
func Render(s State, people []gedcom.Person, opts RenderOptions) []DrawCommand {
	st := opts.Style
	locale := opts.Locale
	if locale == "" {
		locale = gedcom.DefaultLocale
	}

	byID := make(map[string]*gedcom.Person, len(people))
	for i := range people {
		byID[people[i].ID] = &people[i]
	}
	card := func(id string) (Rect, bool) {
		n, ok := s.Node(id)
		if !ok {
			return Rect{}, false
		}
		return CenteredRect(n.Pos(), st.CardWidth, st.CardHeight), true
	}

	var cmds []DrawCommand

	for _, p := range people {
		child, ok := card(p.ID)
		if !ok {
			continue
		}
		father, hasF := card(p.Father)
		mother, hasM := card(p.Mother)
		var start Pos
		switch {
		case hasF && hasM:
			line := coupleLine(father, mother)
			start = line[0].Mid(line[1])
		case hasF:
			start = father.ToPos("bm")
		case hasM:
			start = mother.ToPos("bm")
		default:
			continue
		}
		cmds = append(cmds, DrawCommand{
			Kind:   DrawChildPath,
			ID:     p.Father + ">" + p.Mother + ">" + p.ID,
			Points: ElbowPath(start, child.ToPos("tm")),
			Stroke: st.LinkColor,
			Width:  st.ChildLinkWidth,
		})
	}

	seen := make(map[string]bool)
	for _, p := range people {
		a, okA := card(p.ID)
		b, okB := card(p.Spouse)
		if !okA || !okB || p.Spouse == p.ID {
			continue
		}
		key := gedcom.SortedPairKey(p.ID, p.Spouse)
		if seen[key] {
			continue
		}
		seen[key] = true
		line := coupleLine(a, b)
		cmds = append(cmds,
			DrawCommand{Kind: DrawCoupleOuter, ID: key, Points: line, Stroke: st.LinkColor, Width: st.CoupleOuterWidth},
			DrawCommand{Kind: DrawCoupleInner, ID: key, Points: line, Stroke: st.ContrastColor, Width: st.CoupleInnerWidth},
		)
	}

	for _, n := range s.Nodes {
		r := CenteredRect(n.Pos(), st.CardWidth, st.CardHeight)
		cmd := DrawCommand{Kind: DrawCard, ID: n.ID, Rect: &r, Label: gedcom.UnknownLabel, Fill: st.UnknownColor, Stroke: st.LinkColor, Width: 1}
		if p, ok := byID[n.ID]; ok {
			cmd.Label = p.Label(locale)
			cmd.Detail = lifespan(*p)
			cmd.Deceased = p.Deceased || p.DeathDate != ""
			cmd.Fill = cardFill(*p, st)
		}
		cmd.Text = textColor(cmd.Fill, st)
		cmds = append(cmds, cmd)
	}

	return cmds
}

// coupleLine joins the facing edges of two cards at their mean height. The
// left card is whichever is further left.
func coupleLine(a, b Rect) []Pos {
	if b.Center().X < a.Center().X {
		a, b = b, a
	}
	y := (a.Center().Y + b.Center().Y) / 2
	x1, x2 := a.Right(), b.X
	if x2 < x1 {
		// overlapping cards: connect the centres instead
		x1, x2 = a.Center().X, b.Center().X
	}
	return []Pos{{X: x1, Y: y}, {X: x2, Y: y}}
}

// ElbowPath routes an orthogonal path from start down to a bar halfway to the
// child, across, and down into end.
func ElbowPath(start, end Pos) []Pos {
	barY := start.Y + (end.Y-start.Y)/2
	return []Pos{
		start,
		{X: start.X, Y: barY},
		{X: end.X, Y: barY},
		end,
	}
}

func cardFill(p gedcom.Person, st Style) string {
	if c := strings.TrimSpace(p.Color); c != "" {
		return c
	}
	switch gedcom.NormalizeGender(p.Gender) {
	case "M":
		return st.MaleColor
	case "F":
		return st.FemaleColor
	}
	return st.UnknownColor
}

// textColor picks the label color with enough contrast against fill.
func textColor(fill string, st Style) string {
	c, err := colorful.Hex(fill)
	if err != nil {
		return st.TextColor
	}
	if l, _, _ := c.Lab(); l < 0.55 {
		return st.ContrastColor
	}
	return st.TextColor
}

func lifespan(p gedcom.Person) string {
	birth, death := strings.TrimSpace(p.BirthYear), strings.TrimSpace(p.DeathDate)
	switch {
	case birth != "" && death != "":
		return birth + " - " + death
	case birth != "":
		if p.Deceased {
			return birth + " - ?"
		}
		return birth
	case death != "":
		return "? - " + death
	}
	return ""
}
