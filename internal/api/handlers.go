package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/serveone/serveone/internal/auth"
	"github.com/serveone/serveone/internal/store"
)

// requireRestaurant checks that the request carries a session bound to the
// restaurant named in the URL. It writes the error response itself when the
// check fails.
func (a *API) requireRestaurant(w http.ResponseWriter, r *http.Request) (string, bool) {
	restaurantID := chi.URLParam(r, "restaurantID")
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	if sess.RestaurantID != restaurantID {
		writeError(w, http.StatusForbidden, "session is bound to a different restaurant")
		return "", false
	}
	return restaurantID, true
}

func (a *API) handleConnectionCount(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := a.requireRestaurant(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"restaurantId": restaurantID,
		"connections":  a.hub.Count(restaurantID),
	})
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := a.requireRestaurant(w, r)
	if !ok {
		return
	}

	var in store.OrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := a.store.CreateOrder(r.Context(), restaurantID, in)
	if err != nil {
		a.logger.Error().Err(err).Str("restaurant_id", restaurantID).Msg("Failed to create order")
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (a *API) handleSetOrderStatus(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := a.requireRestaurant(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")

	var in struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Status == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := a.store.SetOrderStatus(r.Context(), restaurantID, orderID, in.Status)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("order_id", orderID).Msg("Failed to update order status")
		writeError(w, http.StatusInternalServerError, "failed to update order status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": orderID, "status": in.Status})
}

func (a *API) handleUpsertCategory(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := a.requireRestaurant(w, r)
	if !ok {
		return
	}

	var in struct {
		Name     string `json:"name"`
		Position int    `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.store.UpsertCategory(r.Context(), restaurantID, in.Name, in.Position); err != nil {
		a.logger.Error().Err(err).Str("restaurant_id", restaurantID).Msg("Failed to upsert category")
		writeError(w, http.StatusInternalServerError, "failed to upsert category")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": in.Name})
}

func (a *API) handleClockIn(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := a.requireRestaurant(w, r)
	if !ok {
		return
	}

	var in struct {
		StaffID string `json:"staffId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.StaffID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.store.RecordClockIn(r.Context(), restaurantID, in.StaffID); err != nil {
		a.logger.Error().Err(err).Str("staff_id", in.StaffID).Msg("Failed to record clock-in")
		writeError(w, http.StatusInternalServerError, "failed to record clock-in")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"staffId": in.StaffID})
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := a.requireRestaurant(w, r)
	if !ok {
		return
	}

	var in struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := a.store.UpdateRestaurantProfile(r.Context(), restaurantID, in.Name, in.Address)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "restaurant not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("restaurant_id", restaurantID).Msg("Failed to update restaurant profile")
		writeError(w, http.StatusInternalServerError, "failed to update restaurant profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": restaurantID})
}

func (a *API) handleCreateQROrder(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := a.requireRestaurant(w, r)
	if !ok {
		return
	}

	var in store.OrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := a.store.CreateQROrder(r.Context(), restaurantID, in)
	if err != nil {
		a.logger.Error().Err(err).Str("restaurant_id", restaurantID).Msg("Failed to create QR order")
		writeError(w, http.StatusInternalServerError, "failed to create QR order")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
