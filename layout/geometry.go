package layout

import (
	"fmt"
	"math"
)

type Pos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Pos) Move(x, y float64) Pos {
	p.X += x
	p.Y += y
	return p
}

func (p Pos) Sub(o Pos) Pos {
	return Pos{X: p.X - o.X, Y: p.Y - o.Y}
}

func (p Pos) Len() float64 {
	return math.Hypot(p.X, p.Y)
}

// Mid returns the point halfway between p and o.
func (p Pos) Mid(o Pos) Pos {
	return Pos{X: (p.X + o.X) / 2, Y: (p.Y + o.Y) / 2}
}

type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`

	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CenteredRect returns a w x h rect centred on c.
func CenteredRect(c Pos, w, h float64) Rect {
	return Rect{X: c.X - w/2, Y: c.Y - h/2, Width: w, Height: h}
}

func (r Rect) Right() float64 {
	return r.X + r.Width
}

func (r Rect) Bottom() float64 {
	return r.Y + r.Height
}

func (r Rect) Center() Pos {
	return Pos{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// ToPos returns an anchor point of the rect: tl, tm, tr, ml, mr, bl, bm or br.
func (r Rect) ToPos(t string) Pos {
	pos := Pos{X: r.X, Y: r.Y}

	switch t {
	case "tl":
		return pos
	case "tm":
		pos.X += r.Width / 2
	case "tr":
		pos.X += r.Width
	case "ml":
		pos.Y += r.Height / 2
	case "mr":
		pos.X += r.Width
		pos.Y += r.Height / 2
	case "bl":
		pos.Y += r.Height
	case "bm":
		pos.X += r.Width / 2
		pos.Y += r.Height
	case "br":
		pos.X += r.Width
		pos.Y += r.Height
	default:
		panic("invalid ToPos type: " + t)
	}

	return pos
}

func (r Rect) Move(x, y float64) Rect {
	r.X += x
	r.Y += y
	return r
}

// Union returns the smallest rect containing r and o.
func (r Rect) Union(o Rect) Rect {
	x, y := math.Min(r.X, o.X), math.Min(r.Y, o.Y)
	return Rect{
		X:      x,
		Y:      y,
		Width:  math.Max(r.Right(), o.Right()) - x,
		Height: math.Max(r.Bottom(), o.Bottom()) - y,
	}
}

// Pad grows the rect by d on every side.
func (r Rect) Pad(d float64) Rect {
	return Rect{X: r.X - d, Y: r.Y - d, Width: r.Width + 2*d, Height: r.Height + 2*d}
}

// Transform maps world coordinates to screen coordinates: screen = world*K + (X, Y).
type Transform struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	K float64 `json:"k"`
}

// Identity is the transform that leaves coordinates unchanged.
var Identity = Transform{K: 1}

func (t Transform) Apply(p Pos) Pos {
	return Pos{X: p.X*t.K + t.X, Y: p.Y*t.K + t.Y}
}

func (t Transform) Invert(p Pos) Pos {
	return Pos{X: (p.X - t.X) / t.K, Y: (p.Y - t.Y) / t.K}
}

// String renders the transform as an SVG transform attribute.
func (t Transform) String() string {
	return fmt.Sprintf("translate(%s,%s) scale(%s)", num(t.X), num(t.Y), num(t.K))
}
