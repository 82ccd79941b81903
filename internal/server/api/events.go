package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/framepipe/internal/event"
	"github.com/ayusman/framepipe/internal/store"
)

// maxEventLimit caps the limit query parameter.
const maxEventLimit = 1000

// EventHandler serves the recorded event log.
//
//	GET /api/events?limit=N&kind=K
type EventHandler struct {
	store *store.Store
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

type listEventsResponse struct {
	Events []event.Event `json:"events"`
}

func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := store.DefaultEventLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := h.store.Events().List(event.Kind(r.URL.Query().Get("kind")), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events})
}
