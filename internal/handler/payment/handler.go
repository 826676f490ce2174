package payment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/internal/service/payment"
	"github.com/lessslie/Pelu-PetShop/pkg/errors"
	"github.com/lessslie/Pelu-PetShop/pkg/httputil"
)

type Handler struct {
	service payment.Service
}

func NewHandler(service payment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.POST("/webhook", h.Webhook)
		payments.POST("/preferences/:appointmentId", h.CreatePreference)
		payments.GET("/:paymentId", h.GetPayment)
	}
}

// Webhook accepts provider notifications. The provider sends the identifiers
// in the body, the query string, or both.
func (h *Handler) Webhook(c *gin.Context) {
	var event model.PaymentEvent
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&event); err != nil {
			httputil.RespondWithError(c, errors.BadRequest("malformed notification body", err))
			return
		}
	}
	if event.Type == "" {
		event.Type = firstQuery(c, "type", "topic")
	}
	if event.Data.ID == "" {
		event.Data.ID = firstQuery(c, "data.id", "id")
	}
	if event.Type == "" {
		httputil.RespondWithError(c, errors.BadRequest("notification type is required", nil))
		return
	}

	summary, err := h.service.HandleEvent(c.Request.Context(), &event)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "received": true, "data": summary})
}

func (h *Handler) CreatePreference(c *gin.Context) {
	id, err := uuid.Parse(c.Param("appointmentId"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid appointment ID", err))
		return
	}

	pref, err := h.service.CreatePreference(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, pref)
}

func (h *Handler) GetPayment(c *gin.Context) {
	payment, err := h.service.GetPaymentStatus(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"payment":  payment,
		"status":   model.MapProviderStatus(payment.Status),
		"approved": payment.Status == model.ProviderStatusApproved,
	})
}

func firstQuery(c *gin.Context, keys ...string) string {
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			return v
		}
	}
	return ""
}
