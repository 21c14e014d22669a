package handler

import (
	"encoding/json"
	"net/http"

	"rdmquota/internal/auth"
	"rdmquota/internal/domain"
	"rdmquota/internal/service"
)

// EventHandler ingests file-lifecycle events from the storage-operation
// subsystem over the internal signed API. Accounting is best-effort:
// unresolvable nodes or regions are logged inside the ledger and still
// answered with 200; only malformed requests and infrastructure failures get
// error statuses.
type EventHandler struct {
	ledger *service.LedgerService
}

func NewEventHandler(ledger *service.LedgerService) *EventHandler {
	return &EventHandler{ledger: ledger}
}

func (h *EventHandler) HandleFileEvent(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyInternalToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var event domain.FileEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if event.Type == "" {
		http.Error(w, "event_type is required", http.StatusBadRequest)
		return
	}

	if err := h.ledger.HandleFileEvent(r.Context(), &event); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
