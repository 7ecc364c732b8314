package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/username/sharepool/src/config"
	"github.com/username/sharepool/src/logger"
	"github.com/username/sharepool/src/models"
	"github.com/username/sharepool/src/services"
	"github.com/username/sharepool/src/utils"
)

type EventHandler struct {
	uploadService services.UploadService
	priceService  services.PriceService
}

func NewEventHandler(uploadService services.UploadService, priceService services.PriceService) *EventHandler {
	return &EventHandler{
		uploadService: uploadService,
		priceService:  priceService,
	}
}

// HandleGetEvents returns the user's canonical event ledger in processing order.
func (h *EventHandler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	events, err := h.uploadService.GetEvents(userID)
	if err != nil {
		logger.L.Error("Error retrieving events", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving events for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.EventRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		logger.L.Error("Error generating JSON response for events", "userID", userID, "error", err)
	}
}

// HandleDeleteAllEvents wipes the user's event ledger and cached report.
func (h *EventHandler) HandleDeleteAllEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := h.uploadService.DeleteAllEvents(userID); err != nil {
		logger.L.Error("Error deleting events", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error deleting events for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}

	logger.L.Info("Deleted all events", "userID", userID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddExercise records a manually keyed option exercise as an acquisition.
func (h *EventHandler) HandleAddExercise(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var entry services.ExerciseEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := h.uploadService.AddExercise(userID, entry)
	if err != nil {
		logger.L.Warn("Failed to add exercise entry", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Failed to add exercise entry: %v", err), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(record); err != nil {
		logger.L.Error("Error encoding exercise entry response", "userID", userID, "error", err)
	}
}

// HandleRefreshMarketData re-downloads stock closes, GBPUSD rates and the US
// holiday calendar, then reloads the vest price calculator.
func (h *EventHandler) HandleRefreshMarketData(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var requestBody struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	from := utils.ParseISODate(requestBody.From)
	to := utils.ParseISODate(requestBody.To)
	if from.IsZero() || to.IsZero() || to.Before(from) {
		utils.SendJSONError(w, "Both 'from' and 'to' must be valid ISO dates with from <= to", http.StatusBadRequest)
		return
	}

	start := time.Now()
	if err := h.priceService.RefreshMarketData(config.Cfg.StockTicker, from, to); err != nil {
		logger.L.Error("Market data refresh failed", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Market data refresh failed: %v", err), http.StatusBadGateway)
		return
	}

	if err := h.uploadService.ReloadMarketData(); err != nil {
		logger.L.Error("Failed to reload market data after refresh", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Failed to reload market data: %v", err), http.StatusInternalServerError)
		return
	}

	logger.L.Info("Market data refreshed", "userID", userID, "duration", time.Since(start))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Market data refreshed successfully",
	})
}
