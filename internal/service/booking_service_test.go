package service

import (
	"context"
	"testing"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
	"github.com/quickcourt/court-booking/internal/dto"
	"github.com/quickcourt/court-booking/internal/pricing"
	"github.com/quickcourt/court-booking/internal/query"
	"github.com/quickcourt/court-booking/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type bookingFixture struct {
	svc         BookingService
	bookingRepo *repository.MemoryBookingRepository
	holdRepo    *repository.MemoryHoldRepository
	clock       *time.Time
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	now := testNow
	clock := func() time.Time { return now }

	provider := pricing.NewStaticProvider([]pricing.CourtRate{
		{
			Info: pricing.CourtInfo{
				CourtID:      "court-1",
				CourtName:    "Court A",
				FacilityName: "Riverside Sports Hub",
				Sport:        "badminton",
			},
			BasePrice: 500,
		},
		{
			Info: pricing.CourtInfo{
				CourtID:      "court-2",
				CourtName:    "Court B",
				FacilityName: "Riverside Sports Hub",
				Sport:        "tennis",
			},
			BasePrice: 733.30,
		},
	})

	bookingRepo := repository.NewMemoryBookingRepository()
	holdRepo := repository.NewMemoryHoldRepository()
	holdRepo.SetClock(clock)

	svc := NewBookingService(bookingRepo, holdRepo, provider, NewNoOpEventPublisher(), &BookingServiceConfig{
		HoldTTL:      15 * time.Minute,
		CancelWindow: 24 * time.Hour,
		SlotLength:   time.Hour,
		MaxSlots:     8,
		Currency:     "INR",
		Clock:        clock,
	})

	return &bookingFixture{
		svc:         svc,
		bookingRepo: bookingRepo,
		holdRepo:    holdRepo,
		clock:       &now,
	}
}

func slotAt(daysAhead, hour int) dto.SlotRequest {
	start := testNow.AddDate(0, 0, daysAhead).Truncate(24 * time.Hour).Add(time.Duration(hour) * time.Hour)
	return dto.SlotRequest{Start: start, End: start.Add(time.Hour)}
}

func TestBookingService_CreateBooking(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateBooking(ctx, "user-1", &dto.CreateBookingRequest{
		CourtID:     "court-1",
		Slots:       []dto.SlotRequest{slotAt(2, 10), slotAt(2, 11)},
		TotalAmount: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.BookingStatusPendingPayment), resp.Status)
	assert.Equal(t, 1000.0, resp.TotalAmount)
	assert.Equal(t, "INR", resp.Currency)
	assert.Equal(t, testNow.Add(15*time.Minute), resp.HoldExpiresAt)

	kind, err := f.holdRepo.Kind(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldTentative, kind)

	booking, err := f.bookingRepo.GetByID(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "Riverside Sports Hub", booking.FacilityName)
	assert.Equal(t, booking.StartTime().Add(-24*time.Hour), booking.CancelDeadline)
	for _, s := range booking.Slots {
		assert.Equal(t, 500.0, s.UnitPrice)
	}
}

func TestBookingService_CreateBooking_Validation(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		userID  string
		req     *dto.CreateBookingRequest
		wantErr error
	}{
		{
			name:    "missing user",
			userID:  "",
			req:     &dto.CreateBookingRequest{CourtID: "court-1", Slots: []dto.SlotRequest{slotAt(1, 10)}, TotalAmount: 500},
			wantErr: domain.ErrInvalidUserID,
		},
		{
			name:    "unknown court",
			userID:  "user-1",
			req:     &dto.CreateBookingRequest{CourtID: "court-404", Slots: []dto.SlotRequest{slotAt(1, 10)}, TotalAmount: 500},
			wantErr: domain.ErrInvalidCourtID,
		},
		{
			name:    "no slots",
			userID:  "user-1",
			req:     &dto.CreateBookingRequest{CourtID: "court-1", TotalAmount: 500},
			wantErr: domain.ErrNoSlots,
		},
		{
			name:   "too many slots",
			userID: "user-1",
			req: &dto.CreateBookingRequest{
				CourtID: "court-1",
				Slots: []dto.SlotRequest{
					slotAt(1, 8), slotAt(1, 9), slotAt(1, 10), slotAt(1, 11), slotAt(1, 12),
					slotAt(1, 13), slotAt(1, 14), slotAt(1, 15), slotAt(1, 16),
				},
				TotalAmount: 4500,
			},
			wantErr: domain.ErrTooManySlots,
		},
		{
			name:    "price mismatch",
			userID:  "user-1",
			req:     &dto.CreateBookingRequest{CourtID: "court-1", Slots: []dto.SlotRequest{slotAt(1, 10)}, TotalAmount: 450},
			wantErr: domain.ErrPriceMismatch,
		},
		{
			name:   "slots across dates",
			userID: "user-1",
			req: &dto.CreateBookingRequest{
				CourtID:     "court-1",
				Slots:       []dto.SlotRequest{slotAt(1, 10), slotAt(2, 10)},
				TotalAmount: 1000,
			},
			wantErr: domain.ErrSlotsAcrossDates,
		},
		{
			name:   "duplicate slots",
			userID: "user-1",
			req: &dto.CreateBookingRequest{
				CourtID:     "court-1",
				Slots:       []dto.SlotRequest{slotAt(1, 10), slotAt(1, 10)},
				TotalAmount: 1000,
			},
			wantErr: domain.ErrSlotConflict,
		},
		{
			name:   "off-grid start",
			userID: "user-1",
			req: &dto.CreateBookingRequest{
				CourtID: "court-1",
				Slots: []dto.SlotRequest{
					{Start: slotAt(1, 10).Start.Add(30 * time.Minute), End: slotAt(1, 10).Start.Add(90 * time.Minute)},
				},
				TotalAmount: 500,
			},
			wantErr: domain.ErrSlotNotAligned,
		},
		{
			name:   "slot longer than one unit",
			userID: "user-1",
			req: &dto.CreateBookingRequest{
				CourtID: "court-1",
				Slots: []dto.SlotRequest{
					{Start: slotAt(1, 10).Start, End: slotAt(1, 10).Start.Add(2 * time.Hour)},
				},
				TotalAmount: 500,
			},
			wantErr: domain.ErrSlotNotAligned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateBooking(ctx, tt.userID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBookingService_CreateBooking_SlotConflict(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateBooking(ctx, "user-1", &dto.CreateBookingRequest{
		CourtID:     "court-1",
		Slots:       []dto.SlotRequest{slotAt(2, 10)},
		TotalAmount: 500,
	})
	require.NoError(t, err)

	// Overlaps on the held slot, fails whole even with a free second slot
	_, err = f.svc.CreateBooking(ctx, "user-2", &dto.CreateBookingRequest{
		CourtID:     "court-1",
		Slots:       []dto.SlotRequest{slotAt(2, 10), slotAt(2, 11)},
		TotalAmount: 1000,
	})
	assert.ErrorIs(t, err, domain.ErrSlotConflict)

	// The free slot was not partially reserved
	_, err = f.svc.CreateBooking(ctx, "user-2", &dto.CreateBookingRequest{
		CourtID:     "court-1",
		Slots:       []dto.SlotRequest{slotAt(2, 11)},
		TotalAmount: 500,
	})
	require.NoError(t, err)

	// First booking is untouched
	kind, err := f.holdRepo.Kind(ctx, first.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldTentative, kind)
}

func TestBookingService_CreateBooking_OffsetRangeCannotDoubleBook(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateBooking(ctx, "user-1", &dto.CreateBookingRequest{
		CourtID:     "court-1",
		Slots:       []dto.SlotRequest{slotAt(2, 10)},
		TotalAmount: 500,
	})
	require.NoError(t, err)

	// A 10:30-11:30 range on the same court intersects the held
	// 10:00-11:00 slot but would miss its ledger key; the grid check
	// rejects it before any hold is placed.
	offset := slotAt(2, 10).Start.Add(30 * time.Minute)
	_, err = f.svc.CreateBooking(ctx, "user-2", &dto.CreateBookingRequest{
		CourtID:     "court-1",
		Slots:       []dto.SlotRequest{{Start: offset, End: offset.Add(time.Hour)}},
		TotalAmount: 500,
	})
	require.ErrorIs(t, err, domain.ErrSlotNotAligned)

	// Only the first booking holds court time
	bookings, err := f.bookingRepo.ListByUser(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, bookings)

	kind, err := f.holdRepo.Kind(ctx, first.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldTentative, kind)
}

func TestBookingService_CreateBooking_QuoteComparedInSubunits(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	// Three slots at 733.30 accumulate float error; the client-side
	// decimal total must still match.
	resp, err := f.svc.CreateBooking(ctx, "user-1", &dto.CreateBookingRequest{
		CourtID:     "court-2",
		Slots:       []dto.SlotRequest{slotAt(2, 9), slotAt(2, 10), slotAt(2, 11)},
		TotalAmount: 2199.90,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.BookingStatusPendingPayment), resp.Status)

	// A quote off by a whole subunit still fails
	_, err = f.svc.CreateBooking(ctx, "user-1", &dto.CreateBookingRequest{
		CourtID:     "court-2",
		Slots:       []dto.SlotRequest{slotAt(3, 9)},
		TotalAmount: 733.29,
	})
	assert.ErrorIs(t, err, domain.ErrPriceMismatch)
}

func TestBookingService_GetBooking_OwnerScoped(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateBooking(ctx, "user-1", &dto.CreateBookingRequest{
		CourtID:     "court-1",
		Slots:       []dto.SlotRequest{slotAt(2, 10)},
		TotalAmount: 500,
	})
	require.NoError(t, err)

	got, err := f.svc.GetBooking(ctx, resp.BookingID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, resp.BookingID, got.ID)

	_, err = f.svc.GetBooking(ctx, resp.BookingID, "user-2")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestBookingService_CancelBooking(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateBooking(ctx, "user-1", &dto.CreateBookingRequest{
		CourtID:     "court-1",
		Slots:       []dto.SlotRequest{slotAt(3, 10)},
		TotalAmount: 500,
	})
	require.NoError(t, err)

	// Pending bookings cannot be cancelled
	_, err = f.svc.CancelBooking(ctx, resp.BookingID, "user-1")
	assert.ErrorIs(t, err, domain.ErrNotCancellable)

	require.NoError(t, f.bookingRepo.Transition(ctx, resp.BookingID, domain.BookingStatusPendingPayment, domain.BookingStatusConfirmed))

	cancelled, err := f.svc.CancelBooking(ctx, resp.BookingID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, string(domain.BookingStatusCancelled), cancelled.Status)
	assert.Equal(t, testNow, cancelled.CancelledAt)

	// Holds were released, the slot can be rebooked
	_, err = f.holdRepo.Kind(ctx, resp.BookingID)
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)

	_, err = f.svc.CreateBooking(ctx, "user-2", &dto.CreateBookingRequest{
		CourtID:     "court-1",
		Slots:       []dto.SlotRequest{slotAt(3, 10)},
		TotalAmount: 500,
	})
	assert.NoError(t, err)
}

func TestBookingService_CancelBooking_WindowClosed(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	// Slot starts tomorrow at 09:00, already inside the 24h cancel window
	resp, err := f.svc.CreateBooking(ctx, "user-1", &dto.CreateBookingRequest{
		CourtID:     "court-1",
		Slots:       []dto.SlotRequest{slotAt(1, 9)},
		TotalAmount: 500,
	})
	require.NoError(t, err)
	require.NoError(t, f.bookingRepo.Transition(ctx, resp.BookingID, domain.BookingStatusPendingPayment, domain.BookingStatusConfirmed))

	_, err = f.svc.CancelBooking(ctx, resp.BookingID, "user-1")
	assert.ErrorIs(t, err, domain.ErrCancellationWindowClosed)

	booking, err := f.bookingRepo.GetByID(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
}

func TestBookingService_CancelBooking_AtExactDeadline(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateBooking(ctx, "user-1", &dto.CreateBookingRequest{
		CourtID:     "court-1",
		Slots:       []dto.SlotRequest{slotAt(2, 10)},
		TotalAmount: 500,
	})
	require.NoError(t, err)
	require.NoError(t, f.bookingRepo.Transition(ctx, resp.BookingID, domain.BookingStatusPendingPayment, domain.BookingStatusConfirmed))

	booking, err := f.bookingRepo.GetByID(ctx, resp.BookingID)
	require.NoError(t, err)

	// Advance the clock to exactly the deadline: window is closed
	*f.clock = booking.CancelDeadline

	_, err = f.svc.CancelBooking(ctx, resp.BookingID, "user-1")
	assert.ErrorIs(t, err, domain.ErrCancellationWindowClosed)
}

func TestBookingService_ListBookingsAndStats(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	for day := 1; day <= 3; day++ {
		_, err := f.svc.CreateBooking(ctx, "user-1", &dto.CreateBookingRequest{
			CourtID:     "court-1",
			Slots:       []dto.SlotRequest{slotAt(day, 10)},
			TotalAmount: 500,
		})
		require.NoError(t, err)
	}

	page, total, err := f.svc.ListBookings(ctx, "user-1", query.Query{Sort: query.SortDateAsc})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 3)
	assert.True(t, page[0].Date.Before(page[2].Date))

	stats, err := f.svc.GetStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.UpcomingCount)
	assert.Equal(t, 0, stats.CompletedCount)
	assert.Equal(t, 1500.0, stats.TotalAmount)

	// Other users see nothing
	_, total, err = f.svc.ListBookings(ctx, "user-2", query.Query{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
