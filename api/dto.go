package api

import (
	"time"

	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/payment"
)

type paymentView struct {
	Step          booking.PaymentStep `json:"step,omitempty"`
	SessionID     string              `json:"session_id,omitempty"`
	Amount        int64               `json:"amount,omitempty"`
	Currency      string              `json:"currency,omitempty"`
	TransactionID string              `json:"transaction_id,omitempty"`
}

type bookingView struct {
	ID                 string                  `json:"id"`
	CustomerID         string                  `json:"customer_id"`
	WorkshopID         string                  `json:"workshop_id"`
	VehicleID          string                  `json:"vehicle_id"`
	ServiceID          string                  `json:"service_id"`
	AppointmentDate    time.Time               `json:"appointment_date"`
	Status             booking.Status          `json:"status"`
	StatusHistory      []booking.HistoryEntry  `json:"status_history"`
	Vehicle            booking.VehicleSnapshot `json:"vehicle_snapshot"`
	EstimatedPrice     int64                   `json:"estimated_price"`
	FinalPrice         *int64                  `json:"final_price,omitempty"`
	OrderID            string                  `json:"order_id,omitempty"`
	Commission         *int64                  `json:"commission,omitempty"`
	CustomerNotes      string                  `json:"customer_notes,omitempty"`
	WorkshopNotes      string                  `json:"workshop_notes,omitempty"`
	RejectionReason    string                  `json:"rejection_reason,omitempty"`
	CancellationReason string                  `json:"cancellation_reason,omitempty"`
	PendingSuggestion  *booking.Suggestion     `json:"pending_suggestion,omitempty"`
	Payment            *paymentView            `json:"payment,omitempty"`
	Version            int                     `json:"version"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

func toView(b *booking.Booking) bookingView {
	v := bookingView{
		ID:                 b.ID,
		CustomerID:         b.CustomerID,
		WorkshopID:         b.WorkshopID,
		VehicleID:          b.VehicleID,
		ServiceID:          b.ServiceID,
		AppointmentDate:    b.AppointmentDate,
		Status:             b.Status,
		StatusHistory:      b.StatusHistory,
		Vehicle:            b.VehicleSnapshot,
		EstimatedPrice:     b.EstimatedPrice,
		FinalPrice:         b.FinalPrice,
		OrderID:            b.OrderID,
		Commission:         b.Commission,
		CustomerNotes:      b.CustomerNotes,
		WorkshopNotes:      b.WorkshopNotes,
		RejectionReason:    b.RejectionReason,
		CancellationReason: b.CancellationReason,
		PendingSuggestion:  b.PendingSuggestion,
		Version:            b.Version,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
	if b.Payment.Step != booking.PaymentNone || b.Payment.TransactionID != "" {
		v.Payment = &paymentView{
			Step:          b.Payment.Step,
			SessionID:     b.Payment.SessionID,
			Amount:        b.Payment.Amount,
			Currency:      b.Payment.Currency,
			TransactionID: b.Payment.TransactionID,
		}
	}
	return v
}

type sessionView struct {
	ID          string                `json:"id"`
	OrderID     string                `json:"order_id"`
	Amount      int64                 `json:"amount"`
	Currency    string                `json:"currency"`
	Status      payment.SessionStatus `json:"status"`
	RedirectURL string                `json:"redirect_url,omitempty"`
}

func toSessionView(s *payment.Session) *sessionView {
	if s == nil {
		return nil
	}
	return &sessionView{
		ID:          s.ID,
		OrderID:     s.OrderID,
		Amount:      s.Amount,
		Currency:    s.Currency,
		Status:      s.Status,
		RedirectURL: s.RedirectURL,
	}
}
