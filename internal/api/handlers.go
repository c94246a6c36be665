package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tera/internal/checksum"
	"github.com/starford/tera/internal/geometry"
	"github.com/starford/tera/internal/guard"
	"github.com/starford/tera/internal/mapservice"
	"github.com/starford/tera/internal/models"
	"github.com/starford/tera/internal/onboarding"
)

const maxBodyBytes = 16 << 20 // base64 images inflate by a third

// Handler holds API route handlers.
type Handler struct {
	sess *mapservice.Session
}

// NewHandler creates a new Handler.
func NewHandler(sess *mapservice.Session) *Handler {
	return &Handler{sess: sess}
}

func ifMatch(r *http.Request) string {
	return r.Header.Get("If-Match")
}

// functionID parses the {fid} URL parameter.
func functionID(r *http.Request) (int, bool) {
	fid, err := strconv.Atoi(chi.URLParam(r, "fid"))
	return fid, err == nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// GetMap handles GET /api/map.
//
//	@Summary		Get the active map
//	@Tags			map
//	@Produce		json
//	@Success		200	{object}	MapResponse
//	@Security		BearerAuth
//	@Router			/map [get]
func (h *Handler) GetMap(w http.ResponseWriter, r *http.Request) {
	res, err := h.sess.Current()
	if err != nil {
		writeServiceError(w, "get map", err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

// PatchMap handles PATCH /api/map.
//
//	@Summary		Change the map title or sector mode
//	@Tags			map
//	@Accept			json
//	@Produce		json
//	@Param			If-Match	header	string			false	"Revision for optimistic concurrency"
//	@Param			body		body	PatchMapRequest	true	"Fields to change"
//	@Success		200	{object}	MapResponse
//	@Failure		400	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/map [patch]
func (h *Handler) PatchMap(w http.ResponseWriter, r *http.Request) {
	var req PatchMapRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.sess.Update(r.Context(), ifMatch(r), req)
	if err != nil {
		writeServiceError(w, "patch map", err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

// Layout handles GET /api/map/layout?width=&height=.
func (h *Handler) Layout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	width, werr := strconv.ParseFloat(q.Get("width"), 64)
	height, herr := strconv.ParseFloat(q.Get("height"), 64)
	if werr != nil || herr != nil || width <= 0 || height <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("positive width and height are required"))
		return
	}
	layout, err := h.sess.Layout(geometry.Viewport{Width: width, Height: height})
	if err != nil {
		writeServiceError(w, "layout", err)
		return
	}
	writeJSON(w, http.StatusOK, layout)
}

// Click handles POST /api/map/click.
//
//	@Summary		Apply a pointer press to the sector ring
//	@Tags			map
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ClickRequest	true	"Pointer position, viewport and modifier"
//	@Success		200		{object}	ClickResponse
//	@Security		BearerAuth
//	@Router			/map/click [post]
func (h *Handler) Click(w http.ResponseWriter, r *http.Request) {
	var req ClickRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := h.sess.Click(r.Context(), ifMatch(r), req)
	if err != nil {
		writeServiceError(w, "click", err)
		return
	}
	if out.Result != nil {
		w.Header().Set("ETag", checksum.ETag(out.Result.Revision))
	}
	writeJSON(w, http.StatusOK, out)
}

// SetSectorImage handles PUT /api/map/sectors/{fid}/image.
//
//	@Summary		Set the image of a sector
//	@Tags			sectors
//	@Accept			json
//	@Produce		json
//	@Param			fid			path	int						true	"Function id"
//	@Param			If-Match	header	string					false	"Revision for optimistic concurrency"
//	@Param			body		body	SetSectorImageRequest	true	"Image data URI"
//	@Success		200	{object}	MapResponse
//	@Failure		400	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/map/sectors/{fid}/image [put]
func (h *Handler) SetSectorImage(w http.ResponseWriter, r *http.Request) {
	fid, ok := functionID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("function id must be an integer"))
		return
	}
	var req SetSectorImageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Image == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("image is required"))
		return
	}
	res, err := h.sess.SetSectorImage(r.Context(), ifMatch(r), fid, req.Image)
	if err != nil {
		writeServiceError(w, "set sector image", err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

// DeleteSectorImage handles DELETE /api/map/sectors/{fid}/image. Deleting
// an absent image succeeds without changing the revision.
func (h *Handler) DeleteSectorImage(w http.ResponseWriter, r *http.Request) {
	fid, ok := functionID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("function id must be an integer"))
		return
	}
	res, err := h.sess.DeleteSectorImage(r.Context(), ifMatch(r), fid)
	if err != nil {
		writeServiceError(w, "delete sector image", err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

// AddNode handles POST /api/map/nodes. Unknown keys in the body are kept
// and checked by the guard.
//
//	@Summary		Add a node
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Success		201	{object}	NodeResponse
//	@Failure		400	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/map/nodes [post]
func (h *Handler) AddNode(w http.ResponseWriter, r *http.Request) {
	var n models.Node
	if !decodeBody(w, r, &n) {
		return
	}
	added, res, err := h.sess.AddNode(r.Context(), ifMatch(r), n)
	if err != nil {
		writeServiceError(w, "add node", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(res.Revision))
	writeJSON(w, http.StatusCreated, NodeResponse{Node: added, Revision: res.Revision})
}

// MoveNode handles PATCH /api/map/nodes/{id}/position.
func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	var pos models.Position
	if !decodeBody(w, r, &pos) {
		return
	}
	res, err := h.sess.MoveNode(r.Context(), ifMatch(r), chi.URLParam(r, "id"), pos)
	if err != nil {
		writeServiceError(w, "move node", err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

// RemoveNode handles DELETE /api/map/nodes/{id}.
func (h *Handler) RemoveNode(w http.ResponseWriter, r *http.Request) {
	res, err := h.sess.RemoveNode(r.Context(), ifMatch(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "remove node", err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

// AddEdge handles POST /api/map/edges.
func (h *Handler) AddEdge(w http.ResponseWriter, r *http.Request) {
	var ed models.Edge
	if !decodeBody(w, r, &ed) {
		return
	}
	added, res, err := h.sess.AddEdge(r.Context(), ifMatch(r), ed)
	if err != nil {
		writeServiceError(w, "add edge", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(res.Revision))
	writeJSON(w, http.StatusCreated, EdgeResponse{Edge: added, Revision: res.Revision})
}

// Functions handles GET /api/functions.
//
//	@Summary		List the fixed function taxonomy
//	@Tags			taxonomy
//	@Produce		json
//	@Success		200	{object}	FunctionsResponse
//	@Router			/functions [get]
func (h *Handler) Functions(w http.ResponseWriter, _ *http.Request) {
	items := make([]FunctionItem, 0, models.FunctionCount)
	for i, name := range models.FunctionNames {
		items = append(items, FunctionItem{ID: i + 1, Name: name})
	}
	writeJSON(w, http.StatusOK, FunctionsResponse{
		Functions: items,
		Groups:    models.FunctionGroups[:],
	})
}

// Onboarding handles GET /api/onboarding.
func (h *Handler) Onboarding(w http.ResponseWriter, _ *http.Request) {
	c := onboarding.Default()
	if err := c.Verify(nil); err != nil {
		slog.Error("onboarding copy rejected", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CheckText handles POST /api/guard/text.
//
//	@Summary		Check free text for system-voice terms
//	@Tags			guard
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CheckTextRequest	true	"Text to check"
//	@Success		200		{object}	CheckTextResponse
//	@Failure		422		{object}	errResponse
//	@Router			/guard/text [post]
func (h *Handler) CheckText(w http.ResponseWriter, r *http.Request) {
	var req CheckTextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := guard.CheckValue(req.Text); err != nil {
		writeServiceError(w, "check text", err)
		return
	}
	writeJSON(w, http.StatusOK, CheckTextResponse{OK: true})
}
