package pricing

import (
	"context"
	"time"
)

// CourtInfo is the court catalog entry backing a booking. Names are
// denormalized onto the booking at creation so listings never join
// back to the catalog.
type CourtInfo struct {
	CourtID      string
	CourtName    string
	FacilityName string
	Sport        string
}

// Provider supplies court metadata and slot unit prices. Prices are
// external data, frozen onto the booking at creation time.
type Provider interface {
	Court(ctx context.Context, courtID string) (*CourtInfo, error)
	UnitPrice(ctx context.Context, courtID string, start time.Time) (float64, error)
}
