package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"rutas/internal/geo"
	"rutas/internal/store"
)

type errorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func respondErrorDetails(w http.ResponseWriter, status int, message string, details map[string]interface{}) {
	respondJSON(w, status, errorResponse{Error: message, Details: details})
}

// respondEngineError maps catalog and search errors to HTTP responses.
func respondEngineError(w http.ResponseWriter, err error) {
	var (
		parseErr *store.ParseError
		validErr *store.ValidationError
	)

	switch {
	case errors.As(err, &validErr):
		details := map[string]interface{}{
			"field": validErr.Field,
			"rule":  validErr.Tag,
		}
		if validErr.RouteID != "" {
			details["route_id"] = validErr.RouteID
		}
		if validErr.Limit != "" {
			details["limit"] = validErr.Limit
		}
		respondErrorDetails(w, http.StatusBadRequest, "catalog validation failed", details)
	case errors.As(err, &parseErr):
		respondErrorDetails(w, http.StatusBadRequest, "invalid catalog document", map[string]interface{}{
			"cause": parseErr.Err.Error(),
		})
	case errors.Is(err, store.ErrEmptyCatalog):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrPayloadTooLarge):
		respondErrorDetails(w, http.StatusRequestEntityTooLarge, "catalog payload too large", map[string]interface{}{
			"limit_bytes": store.MaxPayloadBytes,
		})
	case errors.Is(err, store.ErrNotLoaded):
		w.Header().Set("Retry-After", "30")
		respondError(w, http.StatusServiceUnavailable, "catalog not loaded yet")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// queryFloat reads a required float query parameter.
func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s parameter", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return v, nil
}

// queryPoint reads and validates prefix_lat and prefix_lng, or lat and lng
// when prefix is empty.
func queryPoint(r *http.Request, prefix string) (float64, float64, error) {
	latName, lngName := "lat", "lng"
	if prefix != "" {
		latName, lngName = prefix+"_lat", prefix+"_lng"
	}

	lat, err := queryFloat(r, latName)
	if err != nil {
		return 0, 0, err
	}
	lng, err := queryFloat(r, lngName)
	if err != nil {
		return 0, 0, err
	}

	if err := geo.ValidateLatitude(lat, latName); err != nil {
		return 0, 0, err
	}
	if err := geo.ValidateLongitude(lng, lngName); err != nil {
		return 0, 0, err
	}
	return lat, lng, nil
}

func queryInt(r *http.Request, name string, defaultVal, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return defaultVal
	}
	if v > max {
		return max
	}
	return v
}

func respondParamError(w http.ResponseWriter, err error) {
	var coordErr *geo.CoordinateError
	if errors.As(err, &coordErr) {
		respondErrorDetails(w, http.StatusBadRequest, "invalid coordinates", map[string]interface{}{
			"field":  coordErr.Field,
			"reason": coordErr.Message,
		})
		return
	}
	respondError(w, http.StatusBadRequest, err.Error())
}
