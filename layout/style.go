package layout

import "math"

// DefaultStyle holds the card and link geometry used by the renderer and by the
// simulation's distance constraints.
var DefaultStyle = Style{
	CardWidth:        160,
	CardHeight:       56,
	GenerationGap:    170,
	CoupleDistance:   200,
	ChildDistance:    190,
	CollidePadding:   12,
	CoupleOuterWidth: 4,
	CoupleInnerWidth: 1.5,
	ChildLinkWidth:   1.5,
	LinkColor:        "#5b6770",
	ContrastColor:    "#ffffff",
	MaleColor:        "#dbe9f6",
	FemaleColor:      "#f8dde6",
	UnknownColor:     "#ececec",
	TextColor:        "#1f2328",
	NameSize:         13,
	DetailSize:       10,
}

type Style struct {
	CardWidth      float64 `json:"cardWidth"`
	CardHeight     float64 `json:"cardHeight"`
	GenerationGap  float64 `json:"generationGap"`
	CoupleDistance float64 `json:"coupleDistance"`
	ChildDistance  float64 `json:"childDistance"`
	CollidePadding float64 `json:"collidePadding"`

	CoupleOuterWidth float64 `json:"coupleOuterWidth"`
	CoupleInnerWidth float64 `json:"coupleInnerWidth"`
	ChildLinkWidth   float64 `json:"childLinkWidth"`

	LinkColor     string `json:"linkColor"`
	ContrastColor string `json:"contrastColor"`
	MaleColor     string `json:"maleColor"`
	FemaleColor   string `json:"femaleColor"`
	UnknownColor  string `json:"unknownColor"`
	TextColor     string `json:"textColor"`

	NameSize   float64 `json:"nameSize"`
	DetailSize float64 `json:"detailSize"`
}

// CollideRadius is the collision footprint of one card.
func (s Style) CollideRadius() float64 {
	return s.CardWidth/2 + s.CollidePadding
}

// GenerationY is the y coordinate a generation is pinned to.
func (s Style) GenerationY(gen int) float64 {
	return float64(gen) * s.GenerationGap
}

// Params are the force strengths and cooling schedule of the simulation.
type Params struct {
	Style Style `json:"style"`

	ChargeStrength    float64 `json:"chargeStrength"`
	ChargeDistanceMax float64 `json:"chargeDistanceMax"`
	CenterStrength    float64 `json:"centerStrength"`
	CollideStrength   float64 `json:"collideStrength"`
	GenStrength       float64 `json:"genStrength"`
	XStrength         float64 `json:"xStrength"`
	CoupleStrength    float64 `json:"coupleStrength"`
	ChildStrength     float64 `json:"childStrength"`

	Alpha         float64 `json:"alpha"`
	AlphaMin      float64 `json:"alphaMin"`
	AlphaDecay    float64 `json:"alphaDecay"`
	VelocityDecay float64 `json:"velocityDecay"`
	DragAlpha     float64 `json:"dragAlpha"`
}

// DefaultParams cools from alpha 1 to AlphaMin in roughly 300 ticks.
func DefaultParams() Params {
	return Params{
		Style:             DefaultStyle,
		ChargeStrength:    -900,
		ChargeDistanceMax: 1200,
		CenterStrength:    1,
		CollideStrength:   0.8,
		GenStrength:       0.6,
		XStrength:         0.02,
		CoupleStrength:    0.9,
		ChildStrength:     0.15,
		Alpha:             1,
		AlphaMin:          0.001,
		AlphaDecay:        1 - math.Pow(0.001, 1.0/300),
		VelocityDecay:     0.4,
		DragAlpha:         0.3,
	}
}
