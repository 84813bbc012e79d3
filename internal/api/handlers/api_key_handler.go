package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	apiContext "portal/internal/api/context"
	"portal/internal/engine/keys"
	pkgErrors "portal/internal/pkg/errors"
	"portal/internal/platform/auth"
	"portal/internal/platform/gateway"
)

type APIKeyHandler struct {
	svc *keys.Service
}

func NewAPIKeyHandler(svc *keys.Service) *APIKeyHandler {
	return &APIKeyHandler{svc: svc}
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	result, err := h.svc.List(r.Context(), claims.UserID)
	if err != nil {
		writeKeyError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkgErrors.WriteError(w, http.StatusBadRequest, pkgErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	created, err := h.svc.Create(r.Context(), claims.UserID, claims.OrganizationID, req.Name)
	if err != nil {
		writeKeyError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	keyID := params.ByName("key_id")

	if err := h.svc.Revoke(r.Context(), claims.UserID, keyID); err != nil {
		writeKeyError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeKeyError maps service failures onto the HTTP surface: validation to
// 400, gateway-unreachable to 503, classified gateway errors passed through
// with their upstream status.
func writeKeyError(w http.ResponseWriter, err error) {
	var vErr *keys.ValidationError
	if errors.As(err, &vErr) {
		pkgErrors.WriteError(w, http.StatusBadRequest, pkgErrors.ErrCodeInvalidInput, vErr.Msg, nil)
		return
	}

	if errors.Is(err, keys.ErrUnavailable) {
		pkgErrors.WriteError(w, http.StatusServiceUnavailable, pkgErrors.ErrCodeServiceUnavailable, "API key service temporarily unavailable", nil)
		return
	}

	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == gateway.StatusConnectionFailed {
			pkgErrors.WriteError(w, http.StatusServiceUnavailable, pkgErrors.ErrCodeServiceUnavailable, "API key service temporarily unavailable", nil)
			return
		}
		pkgErrors.WriteError(w, apiErr.StatusCode, codeForStatus(apiErr.StatusCode), apiErr.Message, apiErr.Fields)
		return
	}

	log.Error().Err(err).Msg("api key operation failed")
	pkgErrors.WriteError(w, http.StatusInternalServerError, pkgErrors.ErrCodeInternal, "Internal server error", nil)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return pkgErrors.ErrCodeInvalidInput
	case http.StatusUnauthorized:
		return pkgErrors.ErrCodeUnauthorized
	case http.StatusNotFound:
		return pkgErrors.ErrCodeNotFound
	case http.StatusConflict:
		return pkgErrors.ErrCodeConflict
	default:
		return pkgErrors.ErrCodeUpstream
	}
}
