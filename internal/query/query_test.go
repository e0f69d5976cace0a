package query

import (
	"fmt"
	"testing"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func booking(id string, daysFromNow int, status domain.BookingStatus, amount float64, created time.Time) *domain.Booking {
	return &domain.Booking{
		ID:           id,
		UserID:       "user-1",
		CourtID:      "court-1",
		CourtName:    "Court A",
		FacilityName: "Riverside Sports Hub",
		Sport:        "badminton",
		Date:         now.AddDate(0, 0, daysFromNow),
		TotalAmount:  amount,
		Status:       status,
		CreatedAt:    created,
	}
}

func TestDaysUntil(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want int
	}{
		{"same instant", now, 0},
		{"later today", now.Add(6 * time.Hour), 1},
		{"tomorrow", now.AddDate(0, 0, 1), 1},
		{"one hour ago", now.Add(-time.Hour), 0},
		{"yesterday", now.AddDate(0, 0, -1), -1},
		{"a week out", now.AddDate(0, 0, 7), 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, daysUntil(tt.date, now))
		})
	}
}

func TestApply_DateFilters(t *testing.T) {
	bookings := []*domain.Booking{
		booking("b1", -10, domain.BookingStatusCompleted, 500, now.Add(-240*time.Hour)),
		booking("b2", -1, domain.BookingStatusCompleted, 500, now.Add(-48*time.Hour)),
		booking("b3", 0, domain.BookingStatusConfirmed, 500, now.Add(-24*time.Hour)),
		booking("b4", 3, domain.BookingStatusConfirmed, 500, now.Add(-12*time.Hour)),
		booking("b5", 20, domain.BookingStatusConfirmed, 500, now.Add(-6*time.Hour)),
		booking("b6", 45, domain.BookingStatusConfirmed, 500, now.Add(-time.Hour)),
	}

	tests := []struct {
		filter  DateFilter
		wantIDs []string
	}{
		{DateAll, []string{"b1", "b2", "b3", "b4", "b5", "b6"}},
		{DateUpcoming, []string{"b3", "b4", "b5", "b6"}},
		{DatePast, []string{"b1", "b2"}},
		{DateThisWeek, []string{"b3", "b4"}},
		{DateThisMonth, []string{"b3", "b4", "b5"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			page, total := Apply(bookings, Query{DateFilter: tt.filter, Sort: SortCreatedAsc}, now)
			require.Len(t, page, len(tt.wantIDs))
			assert.Equal(t, len(tt.wantIDs), total)
			for i, id := range tt.wantIDs {
				assert.Equal(t, id, page[i].ID)
			}
		})
	}
}

func TestApply_StatusAndTextFilters(t *testing.T) {
	bookings := []*domain.Booking{
		booking("b1", 1, domain.BookingStatusConfirmed, 500, now),
		booking("b2", 2, domain.BookingStatusCancelled, 500, now),
		booking("b3", 3, domain.BookingStatusPendingPayment, 500, now),
	}
	bookings[2].FacilityName = "Lakeside Tennis Club"
	bookings[2].Sport = "tennis"

	page, total := Apply(bookings, Query{Status: string(domain.BookingStatusConfirmed)}, now)
	require.Equal(t, 1, total)
	assert.Equal(t, "b1", page[0].ID)

	page, total = Apply(bookings, Query{Text: "tennis"}, now)
	require.Equal(t, 1, total)
	assert.Equal(t, "b3", page[0].ID)

	page, total = Apply(bookings, Query{Text: "RIVERSIDE"}, now)
	assert.Equal(t, 2, total)
	assert.Len(t, page, 2)
}

func TestApply_Sorting(t *testing.T) {
	bookings := []*domain.Booking{
		booking("b1", 5, domain.BookingStatusConfirmed, 300, now.Add(-3*time.Hour)),
		booking("b2", 1, domain.BookingStatusConfirmed, 900, now.Add(-1*time.Hour)),
		booking("b3", 9, domain.BookingStatusConfirmed, 600, now.Add(-2*time.Hour)),
	}

	tests := []struct {
		sort    SortKey
		wantIDs []string
	}{
		{SortCreatedDesc, []string{"b2", "b3", "b1"}},
		{SortCreatedAsc, []string{"b1", "b3", "b2"}},
		{SortDateAsc, []string{"b2", "b1", "b3"}},
		{SortDateDesc, []string{"b3", "b1", "b2"}},
		{SortAmountDesc, []string{"b2", "b3", "b1"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			page, _ := Apply(bookings, Query{Sort: tt.sort}, now)
			require.Len(t, page, 3)
			for i, id := range tt.wantIDs {
				assert.Equal(t, id, page[i].ID)
			}
		})
	}
}

func TestApply_TieBreakByID(t *testing.T) {
	created := now.Add(-time.Hour)
	bookings := []*domain.Booking{
		booking("b-zz", 1, domain.BookingStatusConfirmed, 500, created),
		booking("b-aa", 1, domain.BookingStatusConfirmed, 500, created),
		booking("b-mm", 1, domain.BookingStatusConfirmed, 500, created),
	}

	for _, key := range []SortKey{SortCreatedDesc, SortCreatedAsc, SortDateAsc, SortDateDesc, SortAmountDesc} {
		page, _ := Apply(bookings, Query{Sort: key}, now)
		require.Len(t, page, 3)
		assert.Equal(t, []string{"b-aa", "b-mm", "b-zz"}, []string{page[0].ID, page[1].ID, page[2].ID}, "sort %s", key)
	}
}

func TestApply_Paging(t *testing.T) {
	var bookings []*domain.Booking
	for i := 0; i < 25; i++ {
		bookings = append(bookings, booking(
			fmt.Sprintf("b%02d", i), 1, domain.BookingStatusConfirmed, 500,
			now.Add(time.Duration(i)*time.Minute),
		))
	}

	page, total := Apply(bookings, Query{Sort: SortCreatedAsc, Page: 2, PageSize: 10}, now)
	assert.Equal(t, 25, total)
	require.Len(t, page, 10)
	assert.Equal(t, "b10", page[0].ID)

	page, total = Apply(bookings, Query{Sort: SortCreatedAsc, Page: 3, PageSize: 10}, now)
	assert.Equal(t, 25, total)
	assert.Len(t, page, 5)

	page, total = Apply(bookings, Query{Sort: SortCreatedAsc, Page: 9, PageSize: 10}, now)
	assert.Equal(t, 25, total)
	assert.Empty(t, page)

	page, _ = Apply(bookings, Query{Page: -1, PageSize: 5000}, now)
	assert.Len(t, page, 25)
}

func TestAggregate(t *testing.T) {
	bookings := []*domain.Booking{
		booking("b1", 2, domain.BookingStatusConfirmed, 500, now),
		booking("b2", -3, domain.BookingStatusCompleted, 400, now),
		booking("b3", 5, domain.BookingStatusCancelled, 600, now),
	}

	stats := Aggregate(bookings, now)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.UpcomingCount)
	assert.Equal(t, 1, stats.CompletedCount)
	assert.Equal(t, 1500.0, stats.TotalAmount)
}

func TestAggregate_Empty(t *testing.T) {
	stats := Aggregate(nil, now)
	assert.Equal(t, Stats{}, stats)
}
