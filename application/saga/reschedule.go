package saga

import (
	"context"
	"errors"
	"log"
	"time"

	"workshop_booking/domain/booking"
)

const sweepBatch = 100

func (s *BookingSaga) SuggestNewTime(ctx context.Context, bookingID string, actor booking.Actor, proposedDate time.Time, reason string) (*booking.Booking, error) {
	b, err := s.execute(ctx, bookingID, booking.SuggestTime{
		Meta:         s.meta(),
		ProposedDate: proposedDate,
		Reason:       reason,
	}, actor)
	if err != nil {
		return nil, err
	}
	log.Printf("🕐 New time suggested for booking %s by %s", bookingID, actor.Role)
	return b, nil
}

func (s *BookingSaga) RespondToSuggestion(ctx context.Context, bookingID string, actor booking.Actor, accept bool) (*booking.Booking, error) {
	b, err := s.execute(ctx, bookingID, booking.RespondToSuggestion{Meta: s.meta(), Accept: accept}, actor)
	if err != nil {
		return nil, err
	}
	log.Printf("🕐 Suggestion on booking %s answered (accept=%v), now %s", bookingID, accept, b.Status)
	return b, nil
}

// ExpireSuggestions reverts suggestions left unanswered for longer than
// olderThan and returns how many bookings it moved.
func (s *BookingSaga) ExpireSuggestions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	ids, err := s.view.StaleSuggestions(ctx, string(booking.StatusAwaitingCounterpartyConfirmation), cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		// the listing may lag behind the event stream, so the aggregate decides
		b, err := s.aggregateStore.LoadBooking(ctx, id)
		if err != nil {
			log.Printf("❌ Sweep failed to load booking %s: %v", id, err)
			continue
		}
		if b.Status != booking.StatusAwaitingCounterpartyConfirmation ||
			b.PendingSuggestion == nil || b.PendingSuggestion.At.After(cutoff) {
			continue
		}

		_, err = s.execute(ctx, id, booking.ExpireSuggestion{Meta: booking.Meta{At: s.now().UTC(), ExpectedVersion: b.Version}}, booking.Platform())
		if errors.Is(err, booking.ErrConflict) || errors.Is(err, booking.ErrIllegalState) {
			continue
		}
		if err != nil {
			log.Printf("❌ Sweep failed to expire suggestion of %s: %v", id, err)
			continue
		}
		expired++
	}

	if expired > 0 {
		log.Printf("⌛ Expired %d stale time suggestions", expired)
	}
	return expired, nil
}

// RunSweeper expires stale suggestions every interval until ctx is done.
func (s *BookingSaga) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireSuggestions(ctx, s.opts.SuggestionTTL); err != nil {
				log.Printf("❌ Suggestion sweep failed: %v", err)
			}
		}
	}
}
