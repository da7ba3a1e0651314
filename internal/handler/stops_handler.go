package handler

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"rutas/internal/domain"
	"rutas/internal/engine"
)

const maxNearbyRadiusKm = 10.0

type StopsHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewStopsHandler(e *engine.Engine, logger *slog.Logger) *StopsHandler {
	return &StopsHandler{
		engine: e,
		logger: logger.With("handler", "stops"),
	}
}

type NearestResponse struct {
	Stop  *domain.StopInfo `json:"stop"`
	Found bool             `json:"found"`
}

func (h *StopsHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := queryPoint(r, "")
	if err != nil {
		respondParamError(w, err)
		return
	}

	stop, err := h.engine.FindNearestStop(lat, lng)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, NearestResponse{Stop: stop, Found: stop != nil})
}

type NearbyResponse struct {
	Stops    []domain.StopInfo `json:"stops"`
	Count    int               `json:"count"`
	RadiusKm float64           `json:"radius_km"`
}

func (h *StopsHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := queryPoint(r, "")
	if err != nil {
		respondParamError(w, err)
		return
	}

	radius := 1.0
	if raw := r.URL.Query().Get("radius_km"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || !(radius > 0) || radius > maxNearbyRadiusKm {
			respondError(w, http.StatusBadRequest, "radius_km must be in (0, 10]")
			return
		}
	}
	limit := queryInt(r, "limit", 20, 100)

	stops, err := h.engine.StopsWithin(lat, lng, radius, limit)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if stops == nil {
		stops = []domain.StopInfo{}
	}
	respondJSON(w, http.StatusOK, NearbyResponse{Stops: stops, Count: len(stops), RadiusKm: radius})
}

func (h *StopsHandler) Gap(w http.ResponseWriter, r *http.Request) {
	userLat, userLng, err := queryPoint(r, "user")
	if err != nil {
		respondParamError(w, err)
		return
	}
	destLat, destLng, err := queryPoint(r, "dest")
	if err != nil {
		respondParamError(w, err)
		return
	}

	gap, err := h.engine.AnalyzeGap(userLat, userLng, destLat, destLng)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, gap)
}

type BalanceResponse struct {
	Amount float64 `json:"amount"`
	Valid  bool    `json:"valid"`
}

func (h *StopsHandler) ValidateBalance(w http.ResponseWriter, r *http.Request) {
	amount, err := queryFloat(r, "amount")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		respondError(w, http.StatusBadRequest, "amount must be a finite number")
		return
	}
	respondJSON(w, http.StatusOK, BalanceResponse{Amount: amount, Valid: h.engine.ValidateBalance(amount)})
}
