package server

import (
	"net/http"

	"github.com/cedarridge/idm-trainer/internal/content"
)

// CatalogHandler serves the read-only course catalog: module structure,
// boss narration, and the character registry. The content is immutable for
// the process lifetime, so the response is precomputed once.
type CatalogHandler struct {
	payload catalogPayload
}

type catalogPayload struct {
	Courses    []content.Course             `json:"courses"`
	Characters map[string]content.Character `json:"characters"`
}

// NewCatalogHandler precomputes the catalog response.
func NewCatalogHandler(library *content.Library) *CatalogHandler {
	characters := library.Characters
	if characters == nil {
		characters = map[string]content.Character{}
	}
	return &CatalogHandler{payload: catalogPayload{
		Courses:    library.Courses,
		Characters: characters,
	}}
}

// Register mounts the catalog route.
func (h *CatalogHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/content/catalog", h.handleGet)
}

func (h *CatalogHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.payload)
}
