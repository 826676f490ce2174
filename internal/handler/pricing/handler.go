package pricing

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/internal/service/pricing"
	"github.com/lessslie/Pelu-PetShop/pkg/errors"
	"github.com/lessslie/Pelu-PetShop/pkg/httputil"
	"github.com/lessslie/Pelu-PetShop/pkg/validator"
)

type SetPricesRequest struct {
	Prices []model.PriceEntry `json:"prices" binding:"required,min=1,dive"`
}

type Handler struct {
	service pricing.Service
}

func NewHandler(service pricing.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the public listing; admin guards the write routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, admin gin.HandlerFunc) {
	prices := r.Group("/prices")
	{
		prices.GET("", h.GetPrices)
		prices.PUT("", admin, h.SetPrices)
		prices.POST("/invalidate", admin, h.Invalidate)
	}
}

func (h *Handler) GetPrices(c *gin.Context) {
	table, err := h.service.Table(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"currency": model.Currency, "prices": table.Entries()})
}

func (h *Handler) SetPrices(c *gin.Context) {
	var req SetPricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(validator.Describe(err), err))
		return
	}

	table, err := h.service.SetPrices(c.Request.Context(), req.Prices)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"currency": model.Currency, "prices": table.Entries()})
}

func (h *Handler) Invalidate(c *gin.Context) {
	h.service.Invalidate()
	c.Status(http.StatusNoContent)
}
