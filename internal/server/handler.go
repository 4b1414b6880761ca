package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cedarridge/idm-trainer/internal/progress"
)

// UserIDHeader carries the caller identity resolved by the auth layer in
// front of this service. A missing header is a 401.
const UserIDHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

// progressSchema validates inbound progress payloads before they land in
// storage. Unknown fields are tolerated for forward compatibility; known
// fields must have the right shape.
const progressSchema = `{
	"type": "object",
	"properties": {
		"completed_scenarios": {"type": "array", "items": {"type": "string"}},
		"completed_modules": {"type": "array", "items": {"type": "string"}},
		"scores": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"properties": {
					"guided": {"$ref": "#/definitions/bucket"},
					"unguided": {"$ref": "#/definitions/bucket"}
				}
			}
		},
		"coach_marks_enabled": {"type": "boolean"},
		"idm_setup_complete": {"type": "boolean"},
		"state_version": {"type": "integer", "minimum": 1}
	},
	"definitions": {
		"bucket": {
			"type": ["object", "null"],
			"properties": {
				"correct": {"type": "integer", "minimum": 0},
				"total": {"type": "integer", "minimum": 0},
				"startTime": {"type": "integer"},
				"timeMs": {"type": ["integer", "null"]}
			}
		}
	}
}`

const sessionSchema = `{
	"type": "object",
	"properties": {
		"active_scenario_id": {"type": ["string", "null"]},
		"current_step_id": {"type": ["string", "null"]}
	}
}`

// Handler serves the per-user persistence REST API.
type Handler struct {
	store          ProgressStore
	progressSchema *gojsonschema.Schema
	sessionSchema  *gojsonschema.Schema
}

// NewHandler compiles the payload schemas and returns the handler.
func NewHandler(store ProgressStore) (*Handler, error) {
	ps, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(progressSchema))
	if err != nil {
		return nil, err
	}
	ss, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(sessionSchema))
	if err != nil {
		return nil, err
	}
	return &Handler{store: store, progressSchema: ps, sessionSchema: ss}, nil
}

// Register mounts the REST routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/progress", h.handleGetProgress)
	mux.HandleFunc("PUT /api/progress", h.handlePutProgress)
	mux.HandleFunc("GET /api/progress/session", h.handleGetSession)
	mux.HandleFunc("PUT /api/progress/session", h.handlePutSession)
	mux.HandleFunc("GET /api/progress/wizard", h.handleGetWizard)
	mux.HandleFunc("PUT /api/progress/wizard", h.handlePutWizard)
}

func (h *Handler) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	rec, err := h.store.GetProgress(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		// A user with no saved progress gets the defaults, not a 404;
		// clients treat the endpoint as always-present state.
		rec = progress.NewState().ToWire()
	} else if err != nil {
		serverError(w, "load progress", err)
		return
	}

	writeJSON(w, rec)
}

func (h *Handler) handlePutProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if !h.validate(w, h.progressSchema, body) {
		return
	}

	rec := &progress.ProgressRecord{}
	if err := json.Unmarshal(body, rec); err != nil {
		badRequest(w, "malformed progress payload")
		return
	}

	if err := h.store.PutProgress(r.Context(), userID, rec); err != nil {
		serverError(w, "save progress", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	rec, err := h.store.GetSession(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		rec = &progress.SessionRecord{}
	} else if err != nil {
		serverError(w, "load session", err)
		return
	}

	writeJSON(w, rec)
}

func (h *Handler) handlePutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if !h.validate(w, h.sessionSchema, body) {
		return
	}

	rec := &progress.SessionRecord{}
	if err := json.Unmarshal(body, rec); err != nil {
		badRequest(w, "malformed session payload")
		return
	}

	if err := h.store.PutSession(r.Context(), userID, rec); err != nil {
		serverError(w, "save session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetWizard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	rec, err := h.store.GetWizard(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		rec = &progress.WizardRecord{WizardData: json.RawMessage("null")}
	} else if err != nil {
		serverError(w, "load wizard", err)
		return
	}

	writeJSON(w, rec)
}

func (h *Handler) handlePutWizard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	// The wizard blob is opaque; only well-formed JSON is required.
	rec := &progress.WizardRecord{}
	if err := json.Unmarshal(body, rec); err != nil {
		badRequest(w, "malformed wizard payload")
		return
	}

	if err := h.store.PutWizard(r.Context(), userID, rec); err != nil {
		serverError(w, "save wizard", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validate(w http.ResponseWriter, schema *gojsonschema.Schema, body []byte) bool {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		badRequest(w, "malformed JSON")
		return false
	}
	if !result.Valid() {
		errs := result.Errors()
		msg := "invalid payload"
		if len(errs) > 0 {
			msg = errs[0].String()
		}
		badRequest(w, msg)
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		http.Error(w, `{"error":"missing user identity"}`, http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, "reading body")
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func serverError(w http.ResponseWriter, op string, err error) {
	slog.Error(op, "error", err)
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}
