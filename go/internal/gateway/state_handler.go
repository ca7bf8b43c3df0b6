package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// StateHandler serves the current session view over plain HTTP.
type StateHandler struct {
	session Controller
}

func NewStateHandler(sess Controller) *StateHandler {
	return &StateHandler{session: sess}
}

// HandleGetView handles GET /api/session/view
func (h *StateHandler) HandleGetView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.session.View()); err != nil {
		log.Error().Err(err).Msg("failed to encode session view")
	}
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/session/view", h.HandleGetView)
}
