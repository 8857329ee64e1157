package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"platetrack/internal/service"
)

// Handler serves the persisted plate records: the read side of the system,
// replacing direct database browsing.
type Handler struct {
	records *service.RecordService
	log     zerolog.Logger
}

func NewHandler(records *service.RecordService, log zerolog.Logger) *Handler {
	return &Handler{
		records: records,
		log:     log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	public := r.Group("/api/v1")
	{
		public.GET("/records", h.listRecords)
		public.GET("/records/:id/image", h.getRecordImage)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.DELETE("/records/:id", h.deleteRecord)
	}
}

func (h *Handler) listRecords(c *gin.Context) {
	var textQuery *string
	if text := strings.TrimSpace(c.Query("plate")); text != "" {
		textQuery = &text
	}

	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	records, err := h.records.FindRecords(c.Request.Context(), textQuery, from, to, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(records))
}

func (h *Handler) getRecordImage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid record id"))
		return
	}

	image, err := h.records.GetImage(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", image)
}

func (h *Handler) deleteRecord(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid record id"))
		return
	}

	if err := h.records.DeleteRecord(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
