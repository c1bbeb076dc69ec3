package handler

import (
	"net/http"

	"roastkit/internal/apierror"
	"roastkit/internal/dto"
	"roastkit/internal/middleware"
	"roastkit/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RoastingHandler covers the batch lifecycle, its telemetry and QC.
type RoastingHandler struct {
	batches   service.BatchService
	telemetry service.TelemetryService
}

func NewRoastingHandler(batches service.BatchService, telemetry service.TelemetryService) *RoastingHandler {
	return &RoastingHandler{batches: batches, telemetry: telemetry}
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return uuid.Nil, false
	}
	id, err := claims.UserUUID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, apierror.New("malformed token"))
		return uuid.Nil, false
	}
	return id, true
}

// Start godoc
// @Summary Start a roast
// @Description Debits the green stock of the variety and opens a batch for the calling roaster.
// @Tags roasting
// @Accept json
// @Produce json
// @Param body body dto.StartBatchRequest true "Batch"
// @Success 201 {object} dto.BatchResponse
// @Failure 409 {object} apierror.StockError
// @Failure 422 {object} apierror.APIError
// @Router /v1/roasting [post]
func (h *RoastingHandler) Start(c *gin.Context) {
	roasterID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req dto.StartBatchRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.batches.Start(c.Request.Context(), roasterID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *RoastingHandler) List(c *gin.Context) {
	resp, err := h.batches.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Active returns the caller's batch in progress, or null.
func (h *RoastingHandler) Active(c *gin.Context) {
	roasterID, ok := currentUserID(c)
	if !ok {
		return
	}
	h.writeActive(c, roasterID)
}

func (h *RoastingHandler) ActiveForRoaster(c *gin.Context) {
	roasterID, ok := parseID(c, "roasterId")
	if !ok {
		return
	}
	h.writeActive(c, roasterID)
}

func (h *RoastingHandler) writeActive(c *gin.Context, roasterID uuid.UUID) {
	resp, err := h.batches.FindActive(c.Request.Context(), roasterID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RoastingHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.batches.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RoastingHandler) AppendLog(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.LogEntryRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.telemetry.Append(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *RoastingHandler) ListLogs(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.telemetry.List(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Finish godoc
// @Summary Finish a roast
// @Description Multipart form with final_time, final_temp and an optional "photo";
// @Description a failed photo upload leaves the batch in progress.
// @Tags roasting
// @Accept mpfd,json
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} dto.BatchResponse
// @Failure 409 {object} apierror.APIError
// @Failure 502 {object} apierror.APIError
// @Router /v1/roasting/{id}/finish [patch]
func (h *RoastingHandler) Finish(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.FinishBatchRequest
	if !bindFormOrJSON(c, &req) {
		return
	}
	photo, err := readPhoto(c, "photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}

	var resp *dto.BatchResponse
	if photo != nil {
		resp, err = h.batches.FinishWithPhoto(c.Request.Context(), id, req, photo)
	} else {
		resp, err = h.batches.Finish(c.Request.Context(), id, req)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RoastingHandler) RecordQC(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.QCRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.batches.RecordQC(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
