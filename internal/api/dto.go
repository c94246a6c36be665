package api

import (
	"github.com/starford/tera/internal/geometry"
	"github.com/starford/tera/internal/mapservice"
	"github.com/starford/tera/internal/models"
	"github.com/starford/tera/internal/onboarding"
)

// MapResponse is the document with its revision (aliased from the domain layer).
type MapResponse = mapservice.Result

// PatchMapRequest is the request body for PATCH /map.
type PatchMapRequest = mapservice.Patch

// ClickRequest is a pointer press (aliased from the domain layer).
type ClickRequest = mapservice.ClickRequest

// ClickResponse describes what a pointer press did.
type ClickResponse = mapservice.ClickResult

// LayoutResponse is the wedge layout for a viewport.
type LayoutResponse = geometry.Layout

// OnboardingResponse is the guarded UI copy.
type OnboardingResponse = onboarding.Copy

// SetSectorImageRequest is the request body for PUT /map/sectors/{fid}/image.
type SetSectorImageRequest struct {
	Image string `json:"image" example:"data:image/png;base64,iVBORw0KGgo=" validate:"required"`
}

// NodeResponse is returned after a node is added.
type NodeResponse struct {
	Node     models.Node `json:"node" validate:"required"`
	Revision string      `json:"revision" validate:"required"`
}

// EdgeResponse is returned after an edge is added.
type EdgeResponse struct {
	Edge     models.Edge `json:"edge" validate:"required"`
	Revision string      `json:"revision" validate:"required"`
}

// FunctionItem is one taxonomy function.
type FunctionItem struct {
	ID   int    `json:"id" example:"1" validate:"required"`
	Name string `json:"name" example:"1 Импульс" validate:"required"`
}

// FunctionsResponse lists the fixed taxonomy.
type FunctionsResponse struct {
	Functions []FunctionItem         `json:"functions" validate:"required"`
	Groups    []models.FunctionGroup `json:"groups" validate:"required"`
}

// CheckTextRequest is the request body for POST /guard/text. Text may be any
// JSON value; anything but a string is checked as empty text.
type CheckTextRequest struct {
	Text any `json:"text"`
}

// CheckTextResponse reports a passing check.
type CheckTextResponse struct {
	OK bool `json:"ok" example:"true"`
}
