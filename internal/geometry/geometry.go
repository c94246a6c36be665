// Package geometry resolves pointer coordinates to sectors of the circular
// map and describes the wedge layout for clients that paint it.
//
// Angles are measured in radians from 12 o'clock, clockwise, in screen
// coordinates (y grows downwards).
package geometry

import (
	"math"

	"github.com/starford/tera/internal/models"
)

const (
	// OuterRatio is the outer ring radius as a fraction of the shorter
	// viewport side.
	OuterRatio = 0.34
	// InnerRatio is the inner radius as a fraction of the outer radius.
	InnerRatio = 0.45
	// ImageSize is the side of the square a sector image is drawn into.
	ImageSize = 48
	// ImageAlpha is the opacity sector images are drawn with.
	ImageAlpha = 0.15
)

// Viewport is the drawing surface size.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a screen coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Ring is the interactive annulus of a viewport.
type Ring struct {
	Center Point   `json:"center"`
	Outer  float64 `json:"outer"`
	Inner  float64 `json:"inner"`
}

// RingFor returns the ring centred in v.
func RingFor(v Viewport) Ring {
	outer := math.Min(v.Width, v.Height) * OuterRatio
	return Ring{
		Center: Point{X: v.Width / 2, Y: v.Height / 2},
		Outer:  outer,
		Inner:  outer * InnerRatio,
	}
}

// Contains reports whether p lies on the ring, borders included.
func (r Ring) Contains(p Point) bool {
	d := math.Hypot(p.X-r.Center.X, p.Y-r.Center.Y)
	return d >= r.Inner && d <= r.Outer
}

// SectorAt returns the function id under p, or false when p is outside the
// ring. In four-sector mode a wedge resolves to the first function of its
// group.
func SectorAt(mode models.SectorMode, v Viewport, p Point) (int, bool) {
	ring := RingFor(v)
	if ring.Outer <= 0 || !ring.Contains(p) {
		return 0, false
	}
	n := mode.SectorCount()
	ang := math.Atan2(p.Y-ring.Center.Y, p.X-ring.Center.X) + math.Pi/2
	if ang < 0 {
		ang += 2 * math.Pi
	}
	idx := int(math.Floor(ang / (2 * math.Pi / float64(n))))
	if idx >= n {
		idx = n - 1
	}
	return mode.WedgeFunction(idx)
}

// Wedge describes one drawn sector.
type Wedge struct {
	Index      int     `json:"index"`
	FunctionID int     `json:"function_id"`
	Label      string  `json:"label"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	// Anchor is the centre of the sector image: mid-angle, mid-radius.
	Anchor Point `json:"anchor"`
}

// Layout is the full description of the diagram for one viewport.
type Layout struct {
	Mode   models.SectorMode `json:"sector_mode"`
	Ring   Ring              `json:"ring"`
	Wedges []Wedge           `json:"wedges"`
}

// Wedges returns the layout of every sector in mode.
func Wedges(mode models.SectorMode, v Viewport) Layout {
	ring := RingFor(v)
	n := mode.SectorCount()
	step := 2 * math.Pi / float64(n)
	mid := (ring.Outer + ring.Inner) / 2

	out := Layout{Mode: mode, Ring: ring, Wedges: make([]Wedge, 0, n)}
	for i := 0; i < n; i++ {
		fid, _ := mode.WedgeFunction(i)
		label, _ := models.FunctionName(fid)
		if mode == models.SectorMode4 {
			label = models.FunctionGroups[i].Name
		}
		// Screen angle of the wedge middle, measured from 3 o'clock.
		am := -math.Pi/2 + (float64(i)+0.5)*step
		out.Wedges = append(out.Wedges, Wedge{
			Index:      i,
			FunctionID: fid,
			Label:      label,
			Start:      float64(i) * step,
			End:        float64(i+1) * step,
			Anchor: Point{
				X: ring.Center.X + math.Cos(am)*mid,
				Y: ring.Center.Y + math.Sin(am)*mid,
			},
		})
	}
	return out
}
