package appointment

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lessslie/Pelu-PetShop/internal/model"
	"github.com/lessslie/Pelu-PetShop/internal/schedule"
	"github.com/lessslie/Pelu-PetShop/internal/service/appointment"
	"github.com/lessslie/Pelu-PetShop/pkg/errors"
	"github.com/lessslie/Pelu-PetShop/pkg/httputil"
	"github.com/lessslie/Pelu-PetShop/pkg/validator"
)

type Handler struct {
	service appointment.Service
}

func NewHandler(service appointment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/customer/:customerId", h.ListCustomerAppointments)
		appointments.GET("/slots/:date", h.ListAvailableSlots)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PUT("/:id", h.UpdateAppointment)
		appointments.DELETE("/:id", h.DeleteAppointment)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(validator.Describe(err), err))
		return
	}

	created, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, created)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := parseID(c, "id", "invalid appointment ID")
	if !ok {
		return
	}

	appointment, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, appointment)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	appointments, err := h.service.List(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, appointments)
}

func (h *Handler) ListCustomerAppointments(c *gin.Context) {
	customerID, ok := parseID(c, "customerId", "invalid customer ID")
	if !ok {
		return
	}

	appointments, err := h.service.ListByCustomer(c.Request.Context(), customerID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, appointments)
}

// ListAvailableSlots lists free starts; ?strict=true keeps only starts whose
// whole appointment fits.
func (h *Handler) ListAvailableSlots(c *gin.Context) {
	date, err := schedule.ParseDate(c.Param("date"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest(err.Error(), err))
		return
	}

	strict := false
	if raw := c.Query("strict"); raw != "" {
		if strict, err = strconv.ParseBool(raw); err != nil {
			httputil.RespondWithError(c, errors.BadRequest("strict must be true or false", err))
			return
		}
	}

	slots, err := h.service.ListAvailableSlots(c.Request.Context(), date, strict)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, slots)
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	id, ok := parseID(c, "id", "invalid appointment ID")
	if !ok {
		return
	}

	var req model.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(validator.Describe(err), err))
		return
	}

	appointment, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, appointment)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	id, ok := parseID(c, "id", "invalid appointment ID")
	if !ok {
		return
	}

	removed, err := h.service.Remove(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if !removed {
		httputil.RespondWithError(c, errors.NotFound("appointment", nil))
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"deleted": true})
}

func parseID(c *gin.Context, param, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest(message, err))
		return uuid.Nil, false
	}
	return id, true
}
