package handlers

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/leadforge/truthtable-backend/internal/pkg/logger"
	"github.com/leadforge/truthtable-backend/internal/store"
	"github.com/leadforge/truthtable-backend/internal/types"
)

// filterParams maps query parameter names to Truth table columns for
// search and export.
var filterParams = map[string]string{
	"email":       types.ColEmail,
	"company":     types.ColCompanyName,
	"country":     types.ColCountry,
	"first_name":  types.ColFirstName,
	"last_name":   types.ColLastName,
	"job_title":   types.ColJobTitle,
	"industry":    types.ColIndustry,
	"state":       types.ColState,
	"website":     types.ColWebsite,
	"lead_source": types.ColLeadSource,
	"client_type": types.ColClientType,
	"email_send":  types.ColEmailSend,
}

const exportLimit = 1_000_000

type RecordsHandler struct {
	log   *logger.Logger
	store store.Store
}

func NewRecordsHandler(log *logger.Logger, s store.Store) *RecordsHandler {
	return &RecordsHandler{
		log:   log.With("handler", "RecordsHandler"),
		store: s,
	}
}

type listResponse struct {
	Records []types.Record `json:"records"`
	Total   int64          `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// GET /api/records
func (h *RecordsHandler) List(c *gin.Context) {
	filters := buildFilters(c)
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	records, total, err := h.store.Search(c.Request.Context(), filters, limit, offset)
	if err != nil {
		h.log.Error("Record search failed", "error", err.Error())
		RespondError(c, http.StatusInternalServerError, "search_failed", err)
		return
	}
	if records == nil {
		records = []types.Record{}
	}
	RespondOK(c, listResponse{Records: records, Total: total, Limit: limit, Offset: offset})
}

// GET /api/records/columns
func (h *RecordsHandler) Columns(c *gin.Context) {
	cols, err := h.store.Columns(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "columns_failed", err)
		return
	}
	RespondOK(c, gin.H{"columns": cols})
}

// GET /api/export
// Streams the (optionally filtered) Truth table as CSV, honoring the
// current dynamic column list.
func (h *RecordsHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	cols, err := h.store.Columns(ctx)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "export_failed", err)
		return
	}
	records, _, err := h.store.Search(ctx, buildFilters(c), exportLimit, 0)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "export_failed", err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="truth_export.csv"`)
	w := csv.NewWriter(c.Writer)
	if err := w.Write(cols); err != nil {
		h.log.Error("CSV export failed writing header", "error", err.Error())
		return
	}
	row := make([]string, len(cols))
	for _, rec := range records {
		for i, col := range cols {
			row[i] = rec[col]
		}
		if err := w.Write(row); err != nil {
			h.log.Error("CSV export failed writing row", "error", err.Error())
			return
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.log.Error("CSV export flush failed", "error", err.Error())
	}
	h.log.Info("Exported records to CSV", "rows", len(records), "columns", len(cols))
}

func buildFilters(c *gin.Context) map[string]string {
	filters := map[string]string{}
	for param, col := range filterParams {
		if v := strings.TrimSpace(c.Query(param)); v != "" {
			filters[col] = v
		}
	}
	return filters
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// StatsHandler exposes aggregate Truth table statistics.
type StatsHandler struct {
	log   *logger.Logger
	store store.Store
}

func NewStatsHandler(log *logger.Logger, s store.Store) *StatsHandler {
	return &StatsHandler{
		log:   log.With("handler", "StatsHandler"),
		store: s,
	}
}

// GET /api/stats
func (h *StatsHandler) Get(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	RespondOK(c, stats)
}
