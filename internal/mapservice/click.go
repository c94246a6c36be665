package mapservice

import (
	"context"

	"github.com/starford/tera/internal/geometry"
)

// Pointer actions.
const (
	ActionIgnored     = "ignored"
	ActionSelectImage = "select_image"
	ActionDeleteImage = "delete_image"
)

// ClickRequest is a pointer press on the canvas.
type ClickRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Shift  bool    `json:"shift"`
}

// ClickResult tells the client what the press did. For select_image the
// client opens its image picker and then sets the image for FunctionID.
type ClickResult struct {
	Action     string  `json:"action"`
	FunctionID int     `json:"function_id,omitempty"`
	Result     *Result `json:"result,omitempty"`
}

// Click applies the pointer contract: a press outside the ring is ignored,
// a shifted press deletes the sector image, and a plain press selects the
// sector for image selection.
func (s *Session) Click(ctx context.Context, ifMatch string, req ClickRequest) (ClickResult, error) {
	mode, err := s.Mode()
	if err != nil {
		return ClickResult{}, err
	}
	vp := geometry.Viewport{Width: req.Width, Height: req.Height}
	fid, ok := geometry.SectorAt(mode, vp, geometry.Point{X: req.X, Y: req.Y})
	if !ok {
		return ClickResult{Action: ActionIgnored}, nil
	}
	if !req.Shift {
		return ClickResult{Action: ActionSelectImage, FunctionID: fid}, nil
	}
	res, err := s.DeleteSectorImage(ctx, ifMatch, fid)
	if err != nil {
		return ClickResult{}, err
	}
	return ClickResult{Action: ActionDeleteImage, FunctionID: fid, Result: &res}, nil
}

// Layout returns the wedge layout for the active mode.
func (s *Session) Layout(vp geometry.Viewport) (geometry.Layout, error) {
	mode, err := s.Mode()
	if err != nil {
		return geometry.Layout{}, err
	}
	return geometry.Wedges(mode, vp), nil
}
