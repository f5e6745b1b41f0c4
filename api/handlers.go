package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"workshop_booking/application/notification"
	"workshop_booking/application/saga"
	"workshop_booking/domain/alert"
	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/payment"
	"workshop_booking/infrastructure/repository"
)

// BookingHandler exposes the booking saga over HTTP.
type BookingHandler struct {
	saga    *saga.BookingSaga
	devices *notification.DeviceRegistry
	alerts  repository.AlertStore
}

func NewBookingHandler(s *saga.BookingSaga, devices *notification.DeviceRegistry, alerts repository.AlertStore) *BookingHandler {
	return &BookingHandler{saga: s, devices: devices, alerts: alerts}
}

// POST /v1/bookings (customer)
func (h *BookingHandler) Create(c *gin.Context) {
	var in struct {
		WorkshopID      string    `json:"workshop_id" binding:"required"`
		VehicleID       string    `json:"vehicle_id" binding:"required"`
		ServiceID       string    `json:"service_id" binding:"required"`
		AppointmentDate time.Time `json:"appointment_date" binding:"required"`
		EstimatedPrice  int64     `json:"estimated_price"`
		Notes           string    `json:"notes"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return
	}

	b, err := h.saga.Create(c.Request.Context(), saga.CreateRequest{
		CustomerID:      actor(c).ID,
		WorkshopID:      in.WorkshopID,
		VehicleID:       in.VehicleID,
		ServiceID:       in.ServiceID,
		AppointmentDate: in.AppointmentDate,
		Notes:           in.Notes,
		EstimatedPrice:  in.EstimatedPrice,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toView(b))
}

// GET /v1/bookings
func (h *BookingHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.saga.List(c.Request.Context(), actor(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": rows})
}

// GET /v1/bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.saga.Get(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(b))
}

// GET /v1/bookings/:id/history
func (h *BookingHandler) History(c *gin.Context) {
	timeline, err := h.saga.History(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking_id": c.Param("id"), "events": timeline})
}

func (h *BookingHandler) respond(c *gin.Context, b *booking.Booking, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(b))
}

// POST /v1/bookings/:id/confirm (workshop)
func (h *BookingHandler) Confirm(c *gin.Context) {
	b, err := h.saga.Confirm(c.Request.Context(), c.Param("id"), actor(c).ID)
	h.respond(c, b, err)
}

// POST /v1/bookings/:id/reject (workshop)
func (h *BookingHandler) Reject(c *gin.Context) {
	var in struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return
	}
	b, err := h.saga.Reject(c.Request.Context(), c.Param("id"), actor(c).ID, in.Reason)
	h.respond(c, b, err)
}

// POST /v1/bookings/:id/suggest-time
func (h *BookingHandler) SuggestTime(c *gin.Context) {
	var in struct {
		ProposedDate time.Time `json:"proposed_date" binding:"required"`
		Reason       string    `json:"reason"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return
	}
	b, err := h.saga.SuggestNewTime(c.Request.Context(), c.Param("id"), actor(c), in.ProposedDate, in.Reason)
	h.respond(c, b, err)
}

// POST /v1/bookings/:id/respond-suggestion
func (h *BookingHandler) RespondSuggestion(c *gin.Context) {
	var in struct {
		Accept *bool `json:"accept" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return
	}
	b, err := h.saga.RespondToSuggestion(c.Request.Context(), c.Param("id"), actor(c), *in.Accept)
	h.respond(c, b, err)
}

// POST /v1/bookings/:id/finalize (workshop)
func (h *BookingHandler) Finalize(c *gin.Context) {
	var in struct {
		FinalPrice *int64 `json:"final_price"`
		Notes      string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return
	}
	b, err := h.saga.FinalizeByWorkshop(c.Request.Context(), c.Param("id"), actor(c).ID, in.FinalPrice, in.Notes)
	h.respond(c, b, err)
}

// POST /v1/bookings/:id/pay (customer)
func (h *BookingHandler) Pay(c *gin.Context) {
	b, sess, err := h.saga.ConfirmAndPay(c.Request.Context(), c.Param("id"), actor(c).ID)
	if err != nil {
		if b != nil && payment.IsUnknownOutcome(err) {
			c.JSON(http.StatusAccepted, gin.H{
				"booking":   toView(b),
				"code":      "awaiting_provider",
				"error":     err.Error(),
				"retryable": true,
			})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": toView(b), "session": toSessionView(sess)})
}

// POST /v1/bookings/:id/cancel
func (h *BookingHandler) Cancel(c *gin.Context) {
	var in struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return
	}
	b, err := h.saga.Cancel(c.Request.Context(), c.Param("id"), actor(c), in.Reason)
	h.respond(c, b, err)
}

// POST /v1/bookings/:id/no-show (workshop, platform)
func (h *BookingHandler) NoShow(c *gin.Context) {
	b, err := h.saga.MarkNoShow(c.Request.Context(), c.Param("id"), actor(c))
	h.respond(c, b, err)
}

// POST /v1/webhooks/payments (provider, signed)
func (h *BookingHandler) PaymentWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return
	}
	signature := c.GetHeader("X-Webhook-Signature")
	if signature == "" {
		signature = c.GetHeader("Omise-Signature")
	}

	b, err := h.saga.HandleWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrIgnoredEvent) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed", "booking_id": b.ID, "booking_status": b.Status})
}

// POST /v1/devices
func (h *BookingHandler) RegisterDevice(c *gin.Context) {
	var in struct {
		Token    string `json:"token" binding:"required"`
		Platform string `json:"platform" binding:"required,oneof=ios android web"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return
	}
	if err := h.devices.Register(c.Request.Context(), actor(c).ID, notification.Device{Token: in.Token, Platform: in.Platform}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /v1/alerts (platform)
func (h *BookingHandler) Alerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	alerts, err := h.alerts.List(c.Request.Context(), alert.Filter{
		Category: alert.Category(c.Query("category")),
		EntityID: c.Query("entity_id"),
		Limit:    limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}
