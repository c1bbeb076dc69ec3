package handler

import (
	"net/http"
	"strconv"

	"roastkit/internal/apierror"
	"roastkit/internal/dto"
	"roastkit/internal/service"

	"github.com/gin-gonic/gin"
)

// BeansHandler exposes the green/roasted inventory of each bean variety.
type BeansHandler struct {
	svc           service.InventoryService
	lowStockGrams int
}

func NewBeansHandler(svc service.InventoryService, lowStockGrams int) *BeansHandler {
	return &BeansHandler{svc: svc, lowStockGrams: lowStockGrams}
}

// Create godoc
// @Summary Register a bean variety
// @Description JSON body, or multipart form with an optional "photo" of the sack.
// @Tags beans
// @Accept json,mpfd
// @Produce json
// @Param body body dto.CreateVarietyRequest true "Variety"
// @Success 201 {object} dto.VarietyResponse
// @Failure 422 {object} apierror.ValidationError
// @Router /v1/beans [post]
func (h *BeansHandler) Create(c *gin.Context) {
	var req dto.CreateVarietyRequest
	if !bindFormOrJSON(c, &req) {
		return
	}
	photo, err := readPhoto(c, "photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	resp, err := h.svc.CreateVariety(c.Request.Context(), req, photo)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *BeansHandler) List(c *gin.Context) {
	resp, err := h.svc.ListVarieties(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary Bean variety with its batch history, newest first
// @Tags beans
// @Produce json
// @Param id path string true "Variety ID"
// @Success 200 {object} dto.VarietyResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/beans/{id} [get]
func (h *BeansHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetVariety(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BeansHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateVarietyRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.UpdateVariety(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Restock godoc
// @Summary Credit green or roasted stock
// @Tags beans
// @Accept json,mpfd
// @Produce json
// @Param id path string true "Variety ID"
// @Param body body dto.RestockRequest true "Amount in grams and counter"
// @Success 200 {object} dto.VarietyResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/beans/{id}/restock [patch]
func (h *BeansHandler) Restock(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.RestockRequest
	if !bindFormOrJSON(c, &req) {
		return
	}
	photo, err := readPhoto(c, "photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	resp, err := h.svc.Restock(c.Request.Context(), id, req, photo)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BeansHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteVariety(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *BeansHandler) Movements(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	resp, err := h.svc.ListMovements(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// LowStock lists varieties below ?threshold= grams of green stock,
// defaulting to the configured alert level.
func (h *BeansHandler) LowStock(c *gin.Context) {
	threshold := h.lowStockGrams
	if q := c.Query("threshold"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, apierror.New("threshold must be a non-negative integer"))
			return
		}
		threshold = n
	}
	resp, err := h.svc.LowStock(c.Request.Context(), threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
