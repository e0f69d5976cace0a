package dto

import (
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
	"github.com/quickcourt/court-booking/internal/query"
)

// SlotRequest is one court slot in a booking request
type SlotRequest struct {
	Start     time.Time `json:"start" binding:"required"`
	End       time.Time `json:"end" binding:"required"`
	UnitPrice float64   `json:"unit_price,omitempty"`
}

// CreateBookingRequest represents a request to book court slots
type CreateBookingRequest struct {
	CourtID     string        `json:"court_id" binding:"required"`
	Slots       []SlotRequest `json:"slots" binding:"required,min=1,max=8,dive"`
	TotalAmount float64       `json:"total_amount" binding:"required,gt=0"`
}

// CreateBookingResponse is returned after a booking is created and its
// payment order is opened.
type CreateBookingResponse struct {
	BookingID      string    `json:"booking_id"`
	Status         string    `json:"status"`
	PaymentOrderID string    `json:"payment_order_id,omitempty"`
	TotalAmount    float64   `json:"total_amount"`
	Currency       string    `json:"currency"`
	HoldExpiresAt  time.Time `json:"hold_expires_at"`
}

// OpenOrderResponse is returned when a payment order is (re)opened for
// an existing pending booking.
type OpenOrderResponse struct {
	BookingID      string  `json:"booking_id"`
	PaymentOrderID string  `json:"payment_order_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
}

// CancelBookingResponse is returned after a cancellation
type CancelBookingResponse struct {
	BookingID   string    `json:"booking_id"`
	Status      string    `json:"status"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// SlotResponse is one court slot in an API response
type SlotResponse struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	UnitPrice float64   `json:"unit_price"`
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	CourtID        string         `json:"court_id"`
	CourtName      string         `json:"court_name"`
	FacilityName   string         `json:"facility_name"`
	Sport          string         `json:"sport"`
	Date           time.Time      `json:"date"`
	Slots          []SlotResponse `json:"slots"`
	TotalAmount    float64        `json:"total_amount"`
	Currency       string         `json:"currency"`
	Status         string         `json:"status"`
	CancelDeadline time.Time      `json:"cancel_deadline"`
	CanCancel      bool           `json:"can_cancel"`
	PaymentOrderID string         `json:"payment_order_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CancelledAt    *time.Time     `json:"cancelled_at,omitempty"`
}

// ListBookingsRequest holds query parameters for the booking list
type ListBookingsRequest struct {
	Search     string `form:"search"`
	Status     string `form:"status"`
	DateFilter string `form:"date_filter"`
	Sort       string `form:"sort"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// ToQuery maps the request onto the query pipeline input
func (r *ListBookingsRequest) ToQuery() query.Query {
	return query.Query{
		Text:       r.Search,
		Status:     r.Status,
		DateFilter: query.DateFilter(r.DateFilter),
		Sort:       query.SortKey(r.Sort),
		Page:       r.Page,
		PageSize:   r.PageSize,
	}.Normalize()
}

// BookingStatsResponse is the aggregate view of a user's bookings
type BookingStatsResponse struct {
	Total          int     `json:"total"`
	UpcomingCount  int     `json:"upcoming_count"`
	CompletedCount int     `json:"completed_count"`
	TotalAmount    float64 `json:"total_amount"`
}

// FromDomain converts a domain Booking to its API representation.
// CanCancel is evaluated at response time so clients never have to
// re-implement the cancellation window.
func FromDomain(b *domain.Booking, now time.Time) *BookingResponse {
	slots := make([]SlotResponse, 0, len(b.Slots))
	for _, s := range b.Slots {
		slots = append(slots, SlotResponse{Start: s.Start, End: s.End, UnitPrice: s.UnitPrice})
	}
	return &BookingResponse{
		ID:             b.ID,
		UserID:         b.UserID,
		CourtID:        b.CourtID,
		CourtName:      b.CourtName,
		FacilityName:   b.FacilityName,
		Sport:          b.Sport,
		Date:           b.Date,
		Slots:          slots,
		TotalAmount:    b.TotalAmount,
		Currency:       b.Currency,
		Status:         string(b.Status),
		CancelDeadline: b.CancelDeadline,
		CanCancel:      b.CanCancelAt(now),
		PaymentOrderID: b.PaymentOrderID,
		CreatedAt:      b.CreatedAt,
		CancelledAt:    b.CancelledAt,
	}
}

// FromDomainList converts a page of bookings
func FromDomainList(bookings []*domain.Booking, now time.Time) []*BookingResponse {
	out := make([]*BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, FromDomain(b, now))
	}
	return out
}

// StatsFromQuery converts pipeline stats to the API shape
func StatsFromQuery(s query.Stats) *BookingStatsResponse {
	return &BookingStatsResponse{
		Total:          s.Total,
		UpcomingCount:  s.UpcomingCount,
		CompletedCount: s.CompletedCount,
		TotalAmount:    s.TotalAmount,
	}
}
