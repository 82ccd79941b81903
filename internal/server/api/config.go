package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/event"
)

// ConfigHandler serves and changes the live pipeline configuration.
//
//	GET   /api/config                  current snapshot
//	PATCH /api/config                  partial update, same shape as the config file
//	POST  /api/config/toggle/{filter}  flip one filter
//	PUT   /api/config/roi              replace the region of interest
type ConfigHandler struct {
	pipeline *config.Pipeline
	events   *event.Bus
}

// NewConfigHandler creates a ConfigHandler. events may be nil.
func NewConfigHandler(p *config.Pipeline, events *event.Bus) *ConfigHandler {
	return &ConfigHandler{pipeline: p, events: events}
}

type toggleResponse struct {
	Filter  string `json:"filter"`
	Enabled bool   `json:"enabled"`
}

func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/config")
	path = strings.Trim(path, "/")

	switch {
	case path == "":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, h.pipeline.Snapshot())
		case http.MethodPatch:
			h.patch(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	case strings.HasPrefix(path, "toggle/"):
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.toggle(w, strings.TrimPrefix(path, "toggle/"))

	case path == "roi":
		if r.Method != http.MethodPut {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.setROI(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// patch handles PATCH /api/config.
func (h *ConfigHandler) patch(w http.ResponseWriter, r *http.Request) {
	var f config.File
	if err := decodeBody(r, &f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if f.BufferSize != nil || f.CapturePolicy != nil || f.OutputPolicy != nil || f.PutTimeout != nil || f.GetTimeout != nil {
		writeError(w, http.StatusBadRequest, "buffer settings can only be changed at startup")
		return
	}
	if err := f.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := f.Apply(h.pipeline); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := h.pipeline.Snapshot()
	h.events.Emit(event.ConfigChanged, "", map[string]any{"filters": snap.EnabledFilters()})
	writeJSON(w, http.StatusOK, snap)
}

// toggle handles POST /api/config/toggle/{filter}.
func (h *ConfigHandler) toggle(w http.ResponseWriter, name string) {
	f, err := config.ParseFilter(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	on, err := h.pipeline.Toggle(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.events.Emit(event.ConfigChanged, "", map[string]any{"filter": string(f), "enabled": on})
	writeJSON(w, http.StatusOK, toggleResponse{Filter: string(f), Enabled: on})
}

// setROI handles PUT /api/config/roi.
func (h *ConfigHandler) setROI(w http.ResponseWriter, r *http.Request) {
	var roi config.ROI
	if err := decodeBody(r, &roi); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.pipeline.SetROI(roi); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrInvalidROI) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	current := h.pipeline.ROI()
	h.events.Emit(event.ConfigChanged, "", map[string]any{"roi": current.String()})
	writeJSON(w, http.StatusOK, current)
}
