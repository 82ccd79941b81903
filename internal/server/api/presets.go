package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/event"
	"github.com/ayusman/framepipe/internal/store"
)

// PresetHandler stores and restores named pipeline configurations.
//
//	GET    /api/presets               list presets
//	GET    /api/presets/{name}        one preset
//	PUT    /api/presets/{name}        save the live configuration under name
//	POST   /api/presets/{name}/apply  load a preset into the live configuration
//	DELETE /api/presets/{name}        remove a preset
type PresetHandler struct {
	store    *store.Store
	pipeline *config.Pipeline
	events   *event.Bus
}

// NewPresetHandler creates a PresetHandler. events may be nil.
func NewPresetHandler(s *store.Store, p *config.Pipeline, events *event.Bus) *PresetHandler {
	return &PresetHandler{store: s, pipeline: p, events: events}
}

type presetResponse struct {
	Name      string          `json:"name"`
	Config    config.Snapshot `json:"config"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

type listPresetsResponse struct {
	Presets []presetResponse `json:"presets"`
}

func toPresetResponse(p *store.Preset) presetResponse {
	return presetResponse{
		Name:      p.Name,
		Config:    p.Config,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *PresetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/presets")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w)
		return
	}

	if name, ok := strings.CutSuffix(path, "/apply"); ok {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.apply(w, name)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, path)
	case http.MethodPut:
		h.save(w, path)
	case http.MethodDelete:
		h.delete(w, path)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// list handles GET /api/presets.
func (h *PresetHandler) list(w http.ResponseWriter) {
	presets, err := h.store.Presets().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list presets")
		return
	}

	resp := listPresetsResponse{Presets: make([]presetResponse, 0, len(presets))}
	for _, p := range presets {
		resp.Presets = append(resp.Presets, toPresetResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// get handles GET /api/presets/{name}.
func (h *PresetHandler) get(w http.ResponseWriter, name string) {
	p, err := h.store.Presets().Get(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "preset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get preset")
		return
	}
	writeJSON(w, http.StatusOK, toPresetResponse(p))
}

// save handles PUT /api/presets/{name}.
func (h *PresetHandler) save(w http.ResponseWriter, name string) {
	if err := h.store.Presets().Save(name, h.pipeline.Snapshot()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save preset")
		return
	}

	p, err := h.store.Presets().Get(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get preset")
		return
	}
	writeJSON(w, http.StatusOK, toPresetResponse(p))
}

// apply handles POST /api/presets/{name}/apply.
func (h *PresetHandler) apply(w http.ResponseWriter, name string) {
	p, err := h.store.Presets().Get(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "preset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get preset")
		return
	}

	if err := h.pipeline.Restore(p.Config); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.store.Settings().Set(store.SettingActivePreset, name); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record active preset")
		return
	}

	h.events.Emit(event.ConfigChanged, "", map[string]any{"preset": name})
	writeJSON(w, http.StatusOK, h.pipeline.Snapshot())
}

// delete handles DELETE /api/presets/{name}.
func (h *PresetHandler) delete(w http.ResponseWriter, name string) {
	if err := h.store.Presets().Delete(name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "preset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete preset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
