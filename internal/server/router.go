package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Ferretttde/ProteinTracker/internal/archive"
	"github.com/Ferretttde/ProteinTracker/internal/live"
	"github.com/Ferretttde/ProteinTracker/internal/meals"
	"github.com/Ferretttde/ProteinTracker/internal/nutrition"
	"github.com/Ferretttde/ProteinTracker/internal/settings"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

var (
	errMissingMealsService    = errors.New("meals service dependency required")
	errMissingSettingsService = errors.New("settings service dependency required")
	errMissingArchiveService  = errors.New("archive service dependency required")
	errMissingDispatcher      = errors.New("dispatcher dependency required")
)

// Dependencies wires the HTTP surface to the core services.
type Dependencies struct {
	Meals      *meals.Service
	Settings   *settings.Service
	Archive    *archive.Service
	Barcode    *nutrition.BarcodeClient
	Analysis   *nutrition.AnalysisClient
	Dispatcher *live.Dispatcher
	Logger     *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Meals == nil {
		return nil, errMissingMealsService
	}
	if deps.Settings == nil {
		return nil, errMissingSettingsService
	}
	if deps.Archive == nil {
		return nil, errMissingArchiveService
	}
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		meals:      deps.Meals,
		settings:   deps.Settings,
		archive:    deps.Archive,
		barcode:    deps.Barcode,
		analysis:   deps.Analysis,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}

	api := router.Group("/api")
	api.POST("/meals", handler.handleAddMeal)
	api.GET("/meals", handler.handleListMeals)
	api.GET("/meals/:id", handler.handleGetMeal)
	api.PATCH("/meals/:id", handler.handleUpdateMeal)
	api.DELETE("/meals/:id", handler.handleDeleteMeal)
	api.GET("/meals/day/:date", handler.handleMealsForDay)
	api.GET("/meals/range", handler.handleMealsForRange)
	api.GET("/stats/daily/:date", handler.handleDailyStats)
	api.GET("/stats/range", handler.handleRangeBreakdown)
	api.GET("/settings", handler.handleGetSettings)
	api.PUT("/settings", handler.handleSaveSettings)
	api.GET("/export/json", handler.handleExportJSON)
	api.GET("/export/csv", handler.handleExportCSV)
	api.POST("/import/json", handler.handleImportJSON)
	api.GET("/products/:barcode", handler.handleBarcodeLookup)
	api.POST("/analysis/text", handler.handleAnalyzeText)
	api.POST("/analysis/photo", handler.handleAnalyzePhoto)
	api.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	meals      *meals.Service
	settings   *settings.Service
	archive    *archive.Service
	barcode    *nutrition.BarcodeClient
	analysis   *nutrition.AnalysisClient
	dispatcher *live.Dispatcher
	logger     *zap.Logger
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, meals.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
	case errors.Is(err, meals.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, archive.ErrParse):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_import", "detail": err.Error()})
	case errors.Is(err, settings.ErrInvalidGoal):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_goal", "detail": err.Error()})
	case errors.Is(err, nutrition.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found", "detail": err.Error()})
	case errors.Is(err, nutrition.ErrNoAPIKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key_missing", "detail": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

type addMealRequest struct {
	Timestamp   string   `json:"timestamp"`
	Description string   `json:"description"`
	ProteinG    float64  `json:"protein_g"`
	Calories    *float64 `json:"calories"`
	Source      string   `json:"source"`
	Confidence  *float64 `json:"confidence"`
	Barcode     string   `json:"barcode"`
	PhotoBase64 string   `json:"photo_base64"`
	MealType    string   `json:"meal_type"`
}

func (h *httpHandler) handleAddMeal(c *gin.Context) {
	var request addMealRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	timestamp := time.Now()
	if request.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, request.Timestamp)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_timestamp"})
			return
		}
		timestamp = parsed
	}

	photo, ok := decodePhoto(request.PhotoBase64)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_photo"})
		return
	}

	record, err := h.meals.Add(c.Request.Context(), meals.NewMeal{
		Timestamp:   timestamp,
		Description: request.Description,
		ProteinG:    request.ProteinG,
		Calories:    request.Calories,
		Source:      meals.Source(request.Source),
		Confidence:  request.Confidence,
		Barcode:     request.Barcode,
		Photo:       photo,
		MealType:    meals.MealType(request.MealType),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *httpHandler) handleListMeals(c *gin.Context) {
	records, err := h.meals.ListAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *httpHandler) handleGetMeal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	record, err := h.meals.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

type updateMealRequest struct {
	Description *string  `json:"description"`
	ProteinG    *float64 `json:"protein_g"`
	Calories    *float64 `json:"calories"`
	MealType    *string  `json:"meal_type"`
}

func (h *httpHandler) handleUpdateMeal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var request updateMealRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	patch := meals.MealPatch{
		Description: request.Description,
		ProteinG:    request.ProteinG,
		Calories:    request.Calories,
	}
	if request.MealType != nil {
		mealType := meals.MealType(*request.MealType)
		patch.MealType = &mealType
	}

	record, err := h.meals.Update(c.Request.Context(), id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleDeleteMeal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.meals.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMealsForDay(c *gin.Context) {
	date, err := time.ParseInLocation(dateLayout, c.Param("date"), time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}
	records, err := h.meals.MealsForDay(c.Request.Context(), date)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *httpHandler) handleMealsForRange(c *gin.Context) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	records, err := h.meals.MealsForRange(c.Request.Context(), from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *httpHandler) handleDailyStats(c *gin.Context) {
	date, err := time.ParseInLocation(dateLayout, c.Param("date"), time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}
	stats, err := h.meals.DailyStats(c.Request.Context(), date)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) handleRangeBreakdown(c *gin.Context) {
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	breakdown, err := h.meals.RangeBreakdown(c.Request.Context(), from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

type settingsResponse struct {
	DailyGoal int  `json:"daily_goal"`
	APIKeySet bool `json:"api_key_set"`
}

func (h *httpHandler) handleGetSettings(c *gin.Context) {
	current, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	// The credential itself never leaves the local store.
	c.JSON(http.StatusOK, settingsResponse{
		DailyGoal: current.DailyGoal,
		APIKeySet: current.APIKey != "",
	})
}

type saveSettingsRequest struct {
	DailyGoal *int    `json:"daily_goal"`
	APIKey    *string `json:"api_key"`
}

func (h *httpHandler) handleSaveSettings(c *gin.Context) {
	var request saveSettingsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	saved, err := h.settings.Save(c.Request.Context(), settings.Patch{
		DailyGoal: request.DailyGoal,
		APIKey:    request.APIKey,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsResponse{
		DailyGoal: saved.DailyGoal,
		APIKeySet: saved.APIKey != "",
	})
}

func (h *httpHandler) handleExportJSON(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="meals.json"`)
	if err := h.archive.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		h.logger.Error("json export failed", zap.Error(err))
	}
}

func (h *httpHandler) handleExportCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="meals.csv"`)
	if err := h.archive.ExportCSV(c.Request.Context(), c.Writer); err != nil {
		h.logger.Error("csv export failed", zap.Error(err))
	}
}

func (h *httpHandler) handleImportJSON(c *gin.Context) {
	count, err := h.archive.ImportJSON(c.Request.Context(), c.Request.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": count})
}

func (h *httpHandler) handleBarcodeLookup(c *gin.Context) {
	if h.barcode == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "barcode_lookup_unavailable"})
		return
	}
	product, err := h.barcode.Lookup(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response := gin.H{"product": product}
	if gramsParam := c.Query("grams"); gramsParam != "" {
		grams, err := strconv.ParseFloat(gramsParam, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grams"})
			return
		}
		proteinG, calories := product.Scale(grams)
		scaled := gin.H{"description": product.DisplayName(), "protein_g": proteinG}
		if calories != nil {
			scaled["calories"] = *calories
		}
		response["scaled"] = scaled
	}
	c.JSON(http.StatusOK, response)
}

type analyzeTextRequest struct {
	Description string `json:"description"`
}

func (h *httpHandler) handleAnalyzeText(c *gin.Context) {
	if h.analysis == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis_unavailable"})
		return
	}
	var request analyzeTextRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	candidates, err := h.analysis.AnalyzeText(c.Request.Context(), request.Description)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

type analyzePhotoRequest struct {
	PhotoBase64 string `json:"photo_base64"`
	MediaType   string `json:"media_type"`
}

func (h *httpHandler) handleAnalyzePhoto(c *gin.Context) {
	if h.analysis == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis_unavailable"})
		return
	}
	var request analyzePhotoRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.PhotoBase64 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	photo, ok := decodePhoto(request.PhotoBase64)
	if !ok || len(photo) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_photo"})
		return
	}
	candidates, err := h.analysis.AnalyzePhoto(c.Request.Context(), photo, request.MediaType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return uint(id), true
}

func parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := time.ParseInLocation(dateLayout, c.Query("from"), time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_from"})
		return time.Time{}, time.Time{}, false
	}
	to, err := time.ParseInLocation(dateLayout, c.Query("to"), time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_to"})
		return time.Time{}, time.Time{}, false
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_range"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
