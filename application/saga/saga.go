// Package saga orchestrates the booking lifecycle: every operation loads the
// aggregate, runs the transition and appends the resulting events, calling the
// payment gateway before or after the transition where money moves.
package saga

import (
	"context"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"workshop_booking/application/aggregates"
	"workshop_booking/application/usecases"
	"workshop_booking/domain/booking"
	"workshop_booking/infrastructure/idempotency"
	"workshop_booking/infrastructure/kv"
	"workshop_booking/infrastructure/payment"
	"workshop_booking/infrastructure/repository"
	"workshop_booking/pkg/obs"
	"workshop_booking/pkg/retry"
)

// ErrRateLimited is returned when a customer creates bookings faster than the
// configured window allows.
var ErrRateLimited = errors.New("too many bookings created, try again later")

type Options struct {
	Currency         string
	Retry            retry.Policy
	GatewayTimeout   time.Duration
	CreateRateLimit  int64
	CreateRateWindow time.Duration
	SuggestionTTL    time.Duration
}

// BookingSaga is the single entry point for booking commands.
type BookingSaga struct {
	aggregateStore *aggregates.AggregateStore
	createUC       *usecases.CreateBookingUseCase
	settleUC       *usecases.SettleBookingUseCase
	historyUC      *usecases.BookingHistoryUseCase
	settlements    repository.SettlementRepository
	gateway        payment.Gateway
	sessions       payment.SessionStore
	processed      idempotency.Ledger
	limiter        kv.Store
	view           repository.BookingView
	opts           Options
	now            func() time.Time
}

func NewBookingSaga(
	aggregateStore *aggregates.AggregateStore,
	createUC *usecases.CreateBookingUseCase,
	settleUC *usecases.SettleBookingUseCase,
	historyUC *usecases.BookingHistoryUseCase,
	settlements repository.SettlementRepository,
	gateway payment.Gateway,
	sessions payment.SessionStore,
	processed idempotency.Ledger,
	limiter kv.Store,
	view repository.BookingView,
	opts Options,
) *BookingSaga {
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	return &BookingSaga{
		aggregateStore: aggregateStore,
		createUC:       createUC,
		settleUC:       settleUC,
		historyUC:      historyUC,
		settlements:    settlements,
		gateway:        gateway,
		sessions:       sessions,
		processed:      processed,
		limiter:        limiter,
		view:           view,
		opts:           opts,
		now:            time.Now,
	}
}

// WithClock replaces the saga's clock. Used by tests.
func (s *BookingSaga) WithClock(now func() time.Time) *BookingSaga {
	s.now = now
	return s
}

func (s *BookingSaga) meta() booking.Meta {
	return booking.Meta{At: s.now().UTC()}
}

func startSpan(ctx context.Context, name, bookingID string) (context.Context, trace.Span) {
	return obs.Tracer().Start(ctx, "saga."+name, trace.WithAttributes(attribute.String("booking.id", bookingID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// execute is the load, apply, append cycle shared by every plain transition.
func (s *BookingSaga) execute(ctx context.Context, bookingID string, cmd booking.Command, actor booking.Actor) (b *booking.Booking, err error) {
	ctx, span := startSpan(ctx, cmd.Name(), bookingID)
	defer func() { endSpan(span, err) }()

	current, err := s.aggregateStore.LoadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	next, err := booking.Apply(current, cmd, actor)
	if err != nil {
		log.Printf("⚠️  %s refused on booking %s: %v", cmd.Name(), bookingID, err)
		return nil, err
	}
	if err := s.aggregateStore.SaveBooking(ctx, next, cmd.Name()); err != nil {
		return nil, err
	}
	return next, nil
}

// callGateway runs one provider call under the gateway timeout, retrying
// transient failures with backoff.
func (s *BookingSaga) callGateway(ctx context.Context, op func(ctx context.Context) error) error {
	return retry.Do(ctx, s.opts.Retry, payment.IsRetryable, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
		defer cancel()
		return op(callCtx)
	})
}
