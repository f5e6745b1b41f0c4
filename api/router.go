package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"workshop_booking/domain/booking"
)

func NewRouter(h *BookingHandler, jwtSecret []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// provider callbacks authenticate by signature, not bearer token
	r.POST("/v1/webhooks/payments", h.PaymentWebhook)

	v1 := r.Group("/v1", JWTAuth(jwtSecret))
	{
		customer := RequireRole(booking.RoleCustomer)
		workshop := RequireRole(booking.RoleWorkshop)
		parties := RequireRole(booking.RoleCustomer, booking.RoleWorkshop)

		v1.POST("/bookings", customer, h.Create)
		v1.GET("/bookings", h.List)
		v1.GET("/bookings/:id", h.Get)
		v1.GET("/bookings/:id/history", h.History)
		v1.POST("/bookings/:id/confirm", workshop, h.Confirm)
		v1.POST("/bookings/:id/reject", workshop, h.Reject)
		v1.POST("/bookings/:id/suggest-time", parties, h.SuggestTime)
		v1.POST("/bookings/:id/respond-suggestion", parties, h.RespondSuggestion)
		v1.POST("/bookings/:id/finalize", workshop, h.Finalize)
		v1.POST("/bookings/:id/pay", customer, h.Pay)
		v1.POST("/bookings/:id/cancel", h.Cancel)
		v1.POST("/bookings/:id/no-show", RequireRole(booking.RoleWorkshop, booking.RolePlatform), h.NoShow)

		v1.POST("/devices", parties, h.RegisterDevice)
		v1.GET("/alerts", RequireRole(booking.RolePlatform), h.Alerts)
	}

	return r
}
