package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"plate-history-service/internal/config"
	"plate-history-service/internal/domain/recognition"
	"plate-history-service/internal/recognizer"
	"plate-history-service/internal/service"
	"plate-history-service/internal/storage"
)

const maxUploadBytes = 10 << 20

type Handler struct {
	history    *service.HistoryService
	recognizer *recognizer.Client
	r2         *storage.R2Client
	config     *config.Config
	log        zerolog.Logger
}

func NewHandler(
	history *service.HistoryService,
	rec *recognizer.Client,
	r2 *storage.R2Client,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		history:    history,
		recognizer: rec,
		r2:         r2,
		config:     cfg,
		log:        log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Recognition intake stays public so cameras can post directly
	public := r.Group("/api/v1")
	{
		public.POST("/recognitions", h.createRecognition)
		public.POST("/recognitions/url", h.createRecognitionFromURL)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/history", h.listHistory)
		protected.GET("/history/filter-options", h.filterOptions)
		protected.GET("/history/export", h.exportHistory)
	}
}

func (h *Handler) createRecognition(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("image file is required"))
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, errorResponse("image exceeds the upload limit"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("failed to open uploaded image"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("failed to read uploaded image"))
		return
	}

	// Durable object URL when storage is configured, upload filename
	// otherwise
	identifier := fileHeader.Filename
	if h.r2 != nil {
		url, err := h.r2.UploadSourceImage(c.Request.Context(), string(recognition.SourceUpload), fileHeader.Filename, data)
		if err != nil {
			h.log.Warn().Err(err).Str("filename", fileHeader.Filename).Msg("image upload to storage failed, keeping filename reference")
		} else {
			identifier = url
		}
	}

	resp, err := h.recognizer.RecognizeFile(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		h.log.Error().Err(err).Str("filename", fileHeader.Filename).Msg("recognition call failed")
		c.JSON(http.StatusBadGateway, errorResponse("recognition service unavailable"))
		return
	}

	h.respondWithIngest(c, resp, recognition.SourceUpload, identifier)
}

type recognizeURLRequest struct {
	ImageURL string `json:"image_url" binding:"required"`
	Source   string `json:"source"`
}

func (h *Handler) createRecognitionFromURL(c *gin.Context) {
	var req recognizeURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	source := recognition.SourceAPI
	if req.Source != "" {
		source = recognition.Source(req.Source)
		if !source.Valid() {
			c.JSON(http.StatusBadRequest, errorResponse(fmt.Sprintf("unknown source %q", req.Source)))
			return
		}
	}

	resp, err := h.recognizer.RecognizeURL(c.Request.Context(), req.ImageURL)
	if err != nil {
		h.log.Error().Err(err).Str("image_url", req.ImageURL).Msg("recognition call failed")
		c.JSON(http.StatusBadGateway, errorResponse("recognition service unavailable"))
		return
	}

	h.respondWithIngest(c, resp, source, req.ImageURL)
}

// respondWithIngest stores the recognition response and reports the
// outcome. Recognition already succeeded at this point, so an ingestion
// failure is reported as partial success: the detections are returned with
// saved=false instead of being hidden behind a 500.
func (h *Handler) respondWithIngest(c *gin.Context, resp *recognition.Response, source recognition.Source, identifier string) {
	detection, err := h.history.Ingest(c.Request.Context(), resp, source, identifier)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		h.log.Error().
			Err(err).
			Str("source", string(source)).
			Str("image", identifier).
			Msg("recognition succeeded but ingestion failed")
		c.JSON(http.StatusOK, gin.H{
			"saved":     false,
			"detection": nil,
			"results":   resp.Results,
			"error":     "failed to store detection",
		})
		return
	}

	if detection == nil {
		c.JSON(http.StatusOK, gin.H{
			"saved":     false,
			"detection": nil,
			"results":   []recognition.PlateDetection{},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"saved":     true,
		"detection": detection,
		"results":   resp.Results,
	})
}

func (h *Handler) listHistory(c *gin.Context) {
	query := parseHistoryQuery(c.Request.URL.Query())

	page, err := h.history.History(c.Request.Context(), query)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *Handler) filterOptions(c *gin.Context) {
	opts, err := h.history.FilterOptions(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, opts)
}

func (h *Handler) exportHistory(c *gin.Context) {
	query := parseHistoryQuery(c.Request.URL.Query())

	workbook, err := h.history.ExportHistory(c.Request.Context(), query)
	if err != nil {
		h.handleError(c, err)
		return
	}

	filename := fmt.Sprintf("history-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := workbook.Write(c.Writer); err != nil {
		h.log.Error().Err(err).Msg("failed to stream export workbook")
	}
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

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
