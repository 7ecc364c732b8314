package handlers

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/username/sharepool/src/logger"
	"github.com/username/sharepool/src/models"
	"github.com/username/sharepool/src/processors"
	"github.com/username/sharepool/src/security/validation"
	"github.com/username/sharepool/src/services"
	"github.com/username/sharepool/src/utils"
)

// CGTHandler serves the capital gains report endpoints. All of them run or
// reuse the cached matching result for the authenticated user.
type CGTHandler struct {
	uploadService services.UploadService
}

func NewCGTHandler(service services.UploadService) *CGTHandler {
	return &CGTHandler{
		uploadService: service,
	}
}

func (h *CGTHandler) report(w http.ResponseWriter, r *http.Request) (int64, *processors.RunResult, bool) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return 0, nil, false
	}

	result, err := h.uploadService.GetReport(userID)
	if err != nil {
		if errors.Is(err, services.ErrProcessingFailed) {
			logger.L.Warn("Matching run aborted", "userID", userID, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Matching failed: %v", err), http.StatusUnprocessableEntity)
		} else {
			logger.L.Error("Error computing capital gains report", "userID", userID, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error computing report for userID %d: %v", userID, err), http.StatusInternalServerError)
		}
		return 0, nil, false
	}
	return userID, result, true
}

// HandleGetReport returns the full matching result with ETag support so the
// frontend can skip re-downloading an unchanged report.
func (h *CGTHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	userID, result, ok := h.report(w, r)
	if !ok {
		return
	}

	// The service owns and shares the result across requests; normalize a
	// local copy so nil slices encode as empty arrays without mutating it.
	out := *result
	if out.Disposals == nil {
		out.Disposals = []models.RealizedDisposal{}
	}
	if out.AuditTrail == nil {
		out.AuditTrail = []models.MatchRecord{}
	}

	currentETag, etagErr := utils.GenerateETag(out)
	if etagErr != nil {
		logger.L.Error("Failed to generate ETag for report", "userID", userID, "error", etagErr)
	}

	w.Header().Set("Cache-Control", "no-cache, private")

	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		for _, cETag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
			if strings.TrimSpace(cETag) == quotedETag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		logger.L.Error("Error generating JSON response for report", "userID", userID, "error", err)
	}
}

// HandleGetPool returns just the closing pool position.
func (h *CGTHandler) HandleGetPool(w http.ResponseWriter, r *http.Request) {
	userID, result, ok := h.report(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result.Pool); err != nil {
		logger.L.Error("Error generating JSON response for pool", "userID", userID, "error", err)
	}
}

// HandleGetAuditTrail returns the per-match audit trail.
func (h *CGTHandler) HandleGetAuditTrail(w http.ResponseWriter, r *http.Request) {
	userID, result, ok := h.report(w, r)
	if !ok {
		return
	}

	trail := result.AuditTrail
	if trail == nil {
		trail = []models.MatchRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(trail); err != nil {
		logger.L.Error("Error generating JSON response for audit trail", "userID", userID, "error", err)
	}
}

// HandleExportDisposalsCSV streams the realized disposals as a CSV download.
// Text cells are sanitized against spreadsheet formula injection.
func (h *CGTHandler) HandleExportDisposalsCSV(w http.ResponseWriter, r *http.Request) {
	userID, result, ok := h.report(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="disposals.csv"`)

	writer := csv.NewWriter(w)
	header := []string{"Date", "Quantity", "Sell Price GBP", "Sell Price USD", "Exchange Rate", "Proceeds GBP", "Matched Cost GBP", "Gain/Loss GBP"}
	if err := writer.Write(header); err != nil {
		logger.L.Error("Error writing CSV header", "userID", userID, "error", err)
		return
	}

	for _, d := range result.Disposals {
		row := []string{
			validation.SanitizeForFormulaInjection(d.Date),
			formatAmount(d.Quantity),
			formatAmount(d.SellUnitPriceGBP),
			formatAmount(d.SellUnitPriceUSD),
			formatAmount(d.FxRate),
			formatAmount(d.ProceedsGBP),
			formatAmount(d.MatchedCostGBP),
			formatAmount(d.GainLossGBP),
		}
		if err := writer.Write(row); err != nil {
			logger.L.Error("Error writing CSV row", "userID", userID, "error", err)
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		logger.L.Error("Error flushing CSV export", "userID", userID, "error", err)
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
