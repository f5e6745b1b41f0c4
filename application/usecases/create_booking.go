package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"workshop_booking/application/aggregates"
	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/repository"
)

// CreateBookingUseCase checks the referenced workshop and vehicle, freezes a
// snapshot of the vehicle and stores the new booking.
type CreateBookingUseCase struct {
	aggregateStore *aggregates.AggregateStore
	workshops      repository.WorkshopDirectory
	vehicles       repository.VehicleDirectory
}

func NewCreateBookingUseCase(
	aggregateStore *aggregates.AggregateStore,
	workshops repository.WorkshopDirectory,
	vehicles repository.VehicleDirectory,
) *CreateBookingUseCase {
	return &CreateBookingUseCase{
		aggregateStore: aggregateStore,
		workshops:      workshops,
		vehicles:       vehicles,
	}
}

type CreateBookingRequest struct {
	BookingID       string
	CustomerID      string
	WorkshopID      string
	VehicleID       string
	ServiceID       string
	AppointmentDate time.Time
	EstimatedPrice  int64
	Notes           string
	At              time.Time
}

func (uc *CreateBookingUseCase) Execute(ctx context.Context, req CreateBookingRequest) (*booking.Booking, error) {
	w, err := uc.workshops.GetWorkshop(ctx, req.WorkshopID)
	if errors.Is(err, repository.ErrWorkshopNotFound) {
		return nil, &booking.ValidationError{Field: "workshop_id", Reason: "unknown workshop"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up workshop: %w", err)
	}
	if w.Status != repository.WorkshopApproved {
		return nil, &booking.ValidationError{Field: "workshop_id", Reason: "workshop is not approved (" + w.Status + ")"}
	}

	v, err := uc.vehicles.GetVehicle(ctx, req.VehicleID)
	if errors.Is(err, repository.ErrVehicleNotFound) {
		return nil, &booking.ValidationError{Field: "vehicle_id", Reason: "unknown vehicle"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up vehicle: %w", err)
	}
	if v.OwnerID != req.CustomerID {
		return nil, &booking.ValidationError{Field: "vehicle_id", Reason: "vehicle does not belong to customer"}
	}

	b, err := booking.Apply(nil, booking.Create{
		Meta:            booking.Meta{At: req.At},
		BookingID:       req.BookingID,
		CustomerID:      req.CustomerID,
		WorkshopID:      req.WorkshopID,
		VehicleID:       req.VehicleID,
		ServiceID:       req.ServiceID,
		AppointmentDate: req.AppointmentDate,
		Snapshot: booking.VehicleSnapshot{
			Brand:    v.Brand,
			Model:    v.Model,
			Year:     v.Year,
			Plate:    v.Plate,
			Odometer: v.Odometer,
		},
		EstimatedPrice: req.EstimatedPrice,
		Notes:          req.Notes,
	}, booking.Customer(req.CustomerID))
	if err != nil {
		return nil, err
	}

	if err := uc.aggregateStore.SaveBooking(ctx, b, "create"); err != nil {
		return nil, fmt.Errorf("failed to save booking events: %w", err)
	}

	log.Printf("✅ Booking %s created for workshop %s", b.ID, b.WorkshopID)
	return b, nil
}
