// Package query filters, sorts and aggregates a customer's bookings.
// Everything here is pure: no clocks, no stores, no side effects.
package query

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
)

// DateFilter selects bookings by distance of the play date from now
type DateFilter string

const (
	DateAll       DateFilter = "all"
	DateUpcoming  DateFilter = "upcoming"
	DatePast      DateFilter = "past"
	DateThisWeek  DateFilter = "thisWeek"
	DateThisMonth DateFilter = "thisMonth"
)

// SortKey is the total order applied to results
type SortKey string

const (
	SortCreatedDesc SortKey = "createdDesc"
	SortCreatedAsc  SortKey = "createdAsc"
	SortDateAsc     SortKey = "dateAsc"
	SortDateDesc    SortKey = "dateDesc"
	SortAmountDesc  SortKey = "amountDesc"
)

const (
	// StatusAll disables status filtering
	StatusAll = "all"

	defaultPageSize = 10
	maxPageSize     = 100
)

// Query is one list request over a customer's booking set
type Query struct {
	Text       string
	Status     string
	DateFilter DateFilter
	Sort       SortKey
	Page       int
	PageSize   int
}

// Normalize clamps paging and fills defaults
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	if q.DateFilter == "" {
		q.DateFilter = DateAll
	}
	if q.Sort == "" {
		q.Sort = SortCreatedDesc
	}
	if q.Status == "" {
		q.Status = StatusAll
	}
	return q
}

// Stats is the aggregate view over a customer's bookings
type Stats struct {
	Total          int     `json:"total"`
	UpcomingCount  int     `json:"upcoming_count"`
	CompletedCount int     `json:"completed_count"`
	TotalAmount    float64 `json:"total_amount"`
}

// daysUntil is the ceiling of the distance from now to the play date
// in whole days. Today and future dates are >= 0, past dates < 0.
func daysUntil(date, now time.Time) int {
	diff := date.Sub(now)
	return int(math.Ceil(diff.Hours() / 24))
}

func matchesText(b *domain.Booking, text string) bool {
	if text == "" {
		return true
	}
	needle := strings.ToLower(text)
	return strings.Contains(strings.ToLower(b.FacilityName), needle) ||
		strings.Contains(strings.ToLower(b.CourtName), needle) ||
		strings.Contains(strings.ToLower(b.Sport), needle) ||
		strings.Contains(strings.ToLower(b.ID), needle)
}

func matchesDate(b *domain.Booking, filter DateFilter, now time.Time) bool {
	switch filter {
	case DateAll, "":
		return true
	case DateUpcoming:
		return daysUntil(b.Date, now) >= 0
	case DatePast:
		return daysUntil(b.Date, now) < 0
	case DateThisWeek:
		d := daysUntil(b.Date, now)
		return d >= 0 && d <= 7
	case DateThisMonth:
		d := daysUntil(b.Date, now)
		return d >= 0 && d <= 30
	}
	return false
}

// less returns the comparison for the chosen sort key, breaking ties
// by booking id so ordering is deterministic.
func less(a, b *domain.Booking, key SortKey) bool {
	switch key {
	case SortCreatedAsc:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	case SortDateAsc:
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
	case SortDateDesc:
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
	case SortAmountDesc:
		if a.TotalAmount != b.TotalAmount {
			return a.TotalAmount > b.TotalAmount
		}
	default: // SortCreatedDesc
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
	}
	return a.ID < b.ID
}

// Apply runs the full pipeline: text match, status filter, date
// filter, sort, then the page slice. Returns the page and the total
// matched before paging.
func Apply(bookings []*domain.Booking, q Query, now time.Time) ([]*domain.Booking, int) {
	q = q.Normalize()

	filtered := make([]*domain.Booking, 0, len(bookings))
	for _, b := range bookings {
		if !matchesText(b, q.Text) {
			continue
		}
		if q.Status != StatusAll && string(b.Status) != q.Status {
			continue
		}
		if !matchesDate(b, q.DateFilter, now) {
			continue
		}
		filtered = append(filtered, b)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return less(filtered[i], filtered[j], q.Sort)
	})

	total := len(filtered)
	start := (q.Page - 1) * q.PageSize
	if start >= total {
		return []*domain.Booking{}, total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	return filtered[start:end], total
}

// Aggregate computes the customer's booking stats. Cancelled bookings
// still count toward the total amount; they only drop out of the
// upcoming count.
func Aggregate(bookings []*domain.Booking, now time.Time) Stats {
	stats := Stats{Total: len(bookings)}
	for _, b := range bookings {
		if !b.Date.Before(now) && b.Status != domain.BookingStatusCancelled {
			stats.UpcomingCount++
		}
		if b.Status == domain.BookingStatusCompleted {
			stats.CompletedCount++
		}
		stats.TotalAmount += b.TotalAmount
	}
	return stats
}
