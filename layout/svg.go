package layout

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// SvgOptions control the document wrapper around the draw commands.
type SvgOptions struct {
	Style     Style
	Padding   float64
	Transform *Transform
}

// CommandBounds returns the box covering every command.
func CommandBounds(cmds []DrawCommand) (Rect, bool) {
	var b Rect
	found := false
	add := func(r Rect) {
		if !found {
			b, found = r, true
			return
		}
		b = b.Union(r)
	}
	for _, c := range cmds {
		if c.Rect != nil {
			add(*c.Rect)
		}
		for _, p := range c.Points {
			add(Rect{X: p.X, Y: p.Y})
		}
	}
	return b, found
}

// WriteSVG renders draw commands as a standalone SVG document.
func WriteSVG(w io.Writer, cmds []DrawCommand, opts SvgOptions) error {
	st := opts.Style
	bounds, ok := CommandBounds(cmds)
	if !ok {
		bounds = Rect{Width: st.CardWidth, Height: st.CardHeight}
	}
	bounds = bounds.Pad(opts.Padding)

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="%s %s %s %s" width="%s" height="%s">`+"\n",
		num(bounds.X), num(bounds.Y), num(bounds.Width), num(bounds.Height), num(bounds.Width), num(bounds.Height))
	if opts.Transform != nil {
		fmt.Fprintf(bw, `<g transform="%s">`+"\n", opts.Transform)
	} else {
		bw.WriteString("<g>\n")
	}

	for _, c := range cmds {
		switch c.Kind {
		case DrawChildPath:
			fmt.Fprintf(bw, `<path class="child-link" d="%s" fill="none" stroke="%s" stroke-width="%s"/>`+"\n",
				pathData(c.Points), attr(c.Stroke), num(c.Width))
		case DrawCoupleOuter, DrawCoupleInner:
			if len(c.Points) < 2 {
				continue
			}
			a, b := c.Points[0], c.Points[len(c.Points)-1]
			fmt.Fprintf(bw, `<line class="%s" x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="%s"/>`+"\n",
				c.Kind, num(a.X), num(a.Y), num(b.X), num(b.Y), attr(c.Stroke), num(c.Width))
		case DrawCard:
			writeCard(bw, c, st)
		}
	}

	bw.WriteString("</g>\n</svg>\n")
	return bw.Flush()
}

func writeCard(bw *bufio.Writer, c DrawCommand, st Style) {
	if c.Rect == nil {
		return
	}
	r := *c.Rect
	dash := ""
	if c.Deceased {
		dash = ` stroke-dasharray="4 2"`
	}
	fmt.Fprintf(bw, `<g class="person" data-id="%s">`+"\n", attr(c.ID))
	fmt.Fprintf(bw, `<rect x="%s" y="%s" width="%s" height="%s" rx="6" fill="%s" stroke="%s" stroke-width="%s"%s/>`+"\n",
		num(r.X), num(r.Y), num(r.Width), num(r.Height), attr(c.Fill), attr(c.Stroke), num(c.Width), dash)

	center := r.Center()
	nameY := center.Y
	if c.Detail != "" {
		nameY -= st.DetailSize / 2
	}
	fmt.Fprintf(bw, `<text x="%s" y="%s" font-size="%s" text-anchor="middle" dominant-baseline="middle" fill="%s">%s</text>`+"\n",
		num(center.X), num(nameY), num(st.NameSize), attr(c.Text), text(c.Label))
	if c.Detail != "" {
		fmt.Fprintf(bw, `<text x="%s" y="%s" font-size="%s" text-anchor="middle" dominant-baseline="middle" fill="%s">%s</text>`+"\n",
			num(center.X), num(nameY+st.NameSize), num(st.DetailSize), attr(c.Text), text(c.Detail))
	}
	bw.WriteString("</g>\n")
}

func pathData(points []Pos) string {
	var sb strings.Builder
	for i, p := range points {
		if i == 0 {
			sb.WriteString("M")
		} else {
			sb.WriteString(" L")
		}
		sb.WriteString(num(p.X))
		sb.WriteByte(' ')
		sb.WriteString(num(p.Y))
	}
	return sb.String()
}

// num formats a coordinate with at most two decimals.
func num(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}

func text(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}

func attr(s string) string {
	return text(s)
}
