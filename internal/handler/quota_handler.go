package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rdmquota/internal/auth"
	"rdmquota/internal/service"
)

type QuotaHandler struct {
	queryService  *service.QueryService
	recalcService *service.RecalcService
}

func NewQuotaHandler(queryService *service.QueryService, recalcService *service.RecalcService) *QuotaHandler {
	return &QuotaHandler{
		queryService:  queryService,
		recalcService: recalcService,
	}
}

// GetQuotaInfo reports {max, used} for a project, browser-facing.
func (h *QuotaHandler) GetQuotaInfo(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.respondQuotaInfo(w, r)
}

// GetQuotaInfoInternal is the signed server-to-server variant. Both return
// the identical shape for the same project state.
func (h *QuotaHandler) GetQuotaInfoInternal(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyInternalToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.respondQuotaInfo(w, r)
}

func (h *QuotaHandler) respondQuotaInfo(w http.ResponseWriter, r *http.Request) {
	guid := chi.URLParam(r, "guid")

	info, err := h.queryService.GetQuotaInfo(r.Context(), guid)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// GetInstitutionStorageQuotaInfo reports {max, used} for a project's
// institutional storage. Missing provider or path is a client error.
func (h *QuotaHandler) GetInstitutionStorageQuotaInfo(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	guid := chi.URLParam(r, "guid")
	provider := r.URL.Query().Get("provider")
	path := r.URL.Query().Get("path")

	info, err := h.queryService.GetInstitutionStorageQuotaInfo(r.Context(), guid, provider, path)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// UpdateStorageMaxQuota is the administrator endpoint for setting a user's
// per-storage ceiling.
func (h *QuotaHandler) UpdateStorageMaxQuota(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		UserGUID string `json:"user_id"`
		RegionID int64  `json:"region_id"`
		MaxQuota int64  `json:"max_quota"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.queryService.SetInstitutionalStorageMaxQuota(r.Context(), req.UserGUID, req.RegionID, req.MaxQuota)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Recalculate triggers a full recomputation of one (user, region) counter.
func (h *QuotaHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyInternalToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		UserGUID string `json:"user_id"`
		RegionID int64  `json:"region_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	used, err := h.recalcService.RecalculateByUserGUID(r.Context(), req.UserGUID, req.RegionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"used": used})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrMissingParameter):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
