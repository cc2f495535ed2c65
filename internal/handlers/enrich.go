package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/leadforge/truthtable-backend/internal/ingest"
	"github.com/leadforge/truthtable-backend/internal/normalize"
	"github.com/leadforge/truthtable-backend/internal/pkg/logger"
	"github.com/leadforge/truthtable-backend/internal/platform/apierr"
	"github.com/leadforge/truthtable-backend/internal/types"
)

type EnrichHandler struct {
	log             *logger.Logger
	pipeline        *ingest.Pipeline
	maxFileBytes    int64
	enrichPeople    bool
	enrichCompanies bool
}

func NewEnrichHandler(log *logger.Logger, pipeline *ingest.Pipeline, maxFileSizeMB int, enrichPeople, enrichCompanies bool) *EnrichHandler {
	return &EnrichHandler{
		log:             log.With("handler", "EnrichHandler"),
		pipeline:        pipeline,
		maxFileBytes:    int64(maxFileSizeMB) * 1024 * 1024,
		enrichPeople:    enrichPeople,
		enrichCompanies: enrichCompanies,
	}
}

// POST /api/enrich/upload
// Multipart CSV upload; runs the full normalize -> enrich -> persist run.
func (h *EnrichHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondErr(c, apierr.Invalid("missing_file", fmt.Errorf("form field 'file' is required: %w", err)))
		return
	}
	if h.maxFileBytes > 0 && fileHeader.Size > h.maxFileBytes {
		RespondErr(c, apierr.Invalid("file_too_large",
			fmt.Errorf("%w: %d bytes (max %d)", ingest.ErrFileTooLarge, fileHeader.Size, h.maxFileBytes)))
		return
	}

	opts := ingest.Options{
		EnrichPeople:    h.formBool(c, "enrich_people", h.enrichPeople),
		EnrichCompanies: h.formBool(c, "enrich_companies", h.enrichCompanies),
		LeadSource:      c.PostForm("lead_source"),
	}

	f, err := fileHeader.Open()
	if err != nil {
		RespondErr(c, apierr.Invalid("unreadable_file", err))
		return
	}
	defer f.Close()

	headers, rows, warnings, err := ingest.ParseCSV(f)
	if err != nil {
		RespondErr(c, apierr.Invalid("invalid_csv", err))
		return
	}

	result, err := h.pipeline.ProcessTable(c.Request.Context(), headers, rows, opts, nil)
	if err != nil {
		h.respondPipelineError(c, err)
		return
	}
	result.Warnings = append(warnings, result.Warnings...)
	RespondOK(c, result)
}

type scrapeItemsRequest struct {
	Items           []types.ScrapeItem `json:"items" binding:"required"`
	EnrichPeople    *bool              `json:"enrich_people"`
	EnrichCompanies *bool              `json:"enrich_companies"`
}

// POST /api/enrich/scrape-items
// Accepts pre-extracted page items from the scraping collaborator.
func (h *EnrichHandler) ScrapeItems(c *gin.Context) {
	var req scrapeItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondErr(c, apierr.Invalid("invalid_body", err))
		return
	}
	opts := ingest.Options{
		EnrichPeople:    boolOr(req.EnrichPeople, h.enrichPeople),
		EnrichCompanies: boolOr(req.EnrichCompanies, h.enrichCompanies),
	}
	result, err := h.pipeline.ProcessScrapeItems(c.Request.Context(), req.Items, opts, nil)
	if err != nil {
		h.respondPipelineError(c, err)
		return
	}
	RespondOK(c, result)
}

func (h *EnrichHandler) respondPipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, normalize.ErrNoEmailColumn):
		RespondErr(c, apierr.Invalid("no_email_column", err))
	case errors.Is(err, ingest.ErrTooManyRows):
		RespondErr(c, apierr.Invalid("too_many_rows", err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		RespondErr(c, apierr.New(http.StatusRequestTimeout, "canceled", err))
	default:
		h.log.Error("Pipeline run failed", "error", err.Error())
		RespondErr(c, apierr.New(http.StatusInternalServerError, "pipeline_failed", err))
	}
}

func (h *EnrichHandler) formBool(c *gin.Context, field string, def bool) bool {
	raw := c.PostForm(field)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
