package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"workshop_booking/application/saga"
	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/payment"
)

// writeError maps the error taxonomy onto HTTP responses.
func writeError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	status := http.StatusInternalServerError

	var (
		ve  *booking.ValidationError
		se  *payment.SignatureError
		ce  *saga.CompensationError
		ge  *payment.GatewayError
		cur booking.Status
	)
	if s, ok := booking.CurrentStatus(err); ok {
		cur = s
	}

	switch {
	case errors.As(err, &ve):
		status = http.StatusUnprocessableEntity
		body["code"] = "validation_failed"
		body["field"] = ve.Field
	case errors.As(err, &se):
		status = http.StatusUnauthorized
		body["code"] = "invalid_signature"
	case errors.Is(err, saga.ErrRateLimited):
		status = http.StatusTooManyRequests
		body["code"] = "rate_limited"
		body["retryable"] = true
	case errors.As(err, &ce):
		if ce.Pending {
			status = http.StatusAccepted
			body["code"] = "refund_pending"
		} else {
			status = http.StatusBadGateway
			body["code"] = "compensation_failed"
			body["retryable"] = payment.IsRetryable(err)
		}
	case errors.As(err, &ge):
		body["retryable"] = ge.Retryable
		switch {
		case ge.Unknown:
			status = http.StatusAccepted
			body["code"] = "awaiting_provider"
		case ge.Retryable:
			status = http.StatusServiceUnavailable
			body["code"] = "gateway_unavailable"
		default:
			status = http.StatusBadGateway
			body["code"] = "gateway_rejected"
		}
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, payment.ErrSessionNotFound):
		status = http.StatusNotFound
		body["code"] = "not_found"
	case errors.Is(err, booking.ErrForbidden):
		status = http.StatusForbidden
		body["code"] = "forbidden"
	case errors.Is(err, booking.ErrConflict):
		status = http.StatusConflict
		body["code"] = "version_conflict"
	case errors.Is(err, booking.ErrIllegalState):
		status = http.StatusConflict
		body["code"] = "illegal_state"
	default:
		log.Printf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
		body["error"] = "internal error"
		body["code"] = "internal"
	}

	if cur != "" {
		body["current_status"] = cur
	}
	c.JSON(status, body)
}
