package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tera/internal/mapservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(sess *mapservice.Session, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(sess)

	r := chi.NewRouter()

	// Static reference data and the text check need no token.
	r.Get("/functions", h.Functions)
	r.Get("/onboarding", h.Onboarding)
	r.Post("/guard/text", h.CheckText)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		r.Get("/map", h.GetMap)
		r.Patch("/map", h.PatchMap)
		r.Get("/map/layout", h.Layout)
		r.Post("/map/click", h.Click)

		r.Route("/map/sectors/{fid}/image", func(r chi.Router) {
			r.Put("/", h.SetSectorImage)
			r.Delete("/", h.DeleteSectorImage)
			r.Post("/upload", h.UploadSectorImage)
		})

		r.Get("/map/sector-images/export", h.ExportSectorImages)
		r.Post("/map/sector-images/import", h.ImportSectorImages)

		r.Post("/map/nodes", h.AddNode)
		r.Patch("/map/nodes/{id}/position", h.MoveNode)
		r.Delete("/map/nodes/{id}", h.RemoveNode)
		r.Post("/map/edges", h.AddEdge)

		// SSE endpoint (protected by same auth middleware).
		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}
