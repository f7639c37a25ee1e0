package layout

import "math"

const (
	MinZoom = 0.1
	MaxZoom = 4
)

type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bounds returns the box covering every card of s.
func Bounds(s State, st Style) (Rect, bool) {
	if len(s.Nodes) == 0 {
		return Rect{}, false
	}
	b := CenteredRect(s.Nodes[0].Pos(), st.CardWidth, st.CardHeight)
	for _, n := range s.Nodes[1:] {
		b = b.Union(CenteredRect(n.Pos(), st.CardWidth, st.CardHeight))
	}
	return b, true
}

// Fit returns the transform that centres bounds in vp with padding on every side,
// clamped to [MinZoom, MaxZoom].
func Fit(bounds Rect, vp Viewport, padding float64) Transform {
	if vp.Width <= 0 || vp.Height <= 0 {
		return Identity
	}
	k := 1.0
	availW, availH := vp.Width-2*padding, vp.Height-2*padding
	if bounds.Width > 0 && bounds.Height > 0 && availW > 0 && availH > 0 {
		k = math.Min(availW/bounds.Width, availH/bounds.Height)
	}
	k = clampZoom(k)
	c := bounds.Center()
	return Transform{
		X: vp.Width/2 - c.X*k,
		Y: vp.Height/2 - c.Y*k,
		K: k,
	}
}

// Zoom scales by factor around the screen point at, which stays fixed.
func (t Transform) Zoom(factor float64, at Pos) Transform {
	world := t.Invert(at)
	k := clampZoom(t.K * factor)
	return Transform{X: at.X - world.X*k, Y: at.Y - world.Y*k, K: k}
}

// Pan moves the view by a screen-space offset.
func (t Transform) Pan(dx, dy float64) Transform {
	t.X += dx
	t.Y += dy
	return t
}

// Interpolate returns the transform at progress p in [0, 1] of an eased
// animation from a to b. Scale is interpolated geometrically.
func Interpolate(a, b Transform, p float64) Transform {
	p = math.Max(0, math.Min(1, p))
	e := easeCubicInOut(p)
	if a.K <= 0 || b.K <= 0 {
		return Transform{X: lerp(a.X, b.X, e), Y: lerp(a.Y, b.Y, e), K: lerp(a.K, b.K, e)}
	}
	return Transform{
		X: lerp(a.X, b.X, e),
		Y: lerp(a.Y, b.Y, e),
		K: a.K * math.Pow(b.K/a.K, e),
	}
}

// Animate returns frames+1 transforms from a to b inclusive.
func Animate(a, b Transform, frames int) []Transform {
	if frames < 1 {
		return []Transform{b}
	}
	out := make([]Transform, frames+1)
	for i := range out {
		out[i] = Interpolate(a, b, float64(i)/float64(frames))
	}
	out[frames] = b
	return out
}

func easeCubicInOut(t float64) float64 {
	t *= 2
	if t <= 1 {
		return t * t * t / 2
	}
	t -= 2
	return (t*t*t + 2) / 2
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clampZoom(k float64) float64 {
	return math.Max(MinZoom, math.Min(MaxZoom, k))
}
