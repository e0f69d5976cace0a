package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CourtRate is a catalog entry with its base hourly price and an
// optional peak-hour multiplier.
type CourtRate struct {
	Info           CourtInfo
	BasePrice      float64
	PeakMultiplier float64
	PeakStartHour  int
	PeakEndHour    int
}

// StaticProvider is a fixed in-memory rate table. Production deploys
// replace it with a catalog-service client behind the same interface.
type StaticProvider struct {
	mu    sync.RWMutex
	rates map[string]*CourtRate
}

// NewStaticProvider creates a provider over the given rate table
func NewStaticProvider(rates []CourtRate) *StaticProvider {
	m := make(map[string]*CourtRate, len(rates))
	for i := range rates {
		rate := rates[i]
		m[rate.Info.CourtID] = &rate
	}
	return &StaticProvider{rates: m}
}

// DefaultCatalog returns the built-in demo rate table used when no
// catalog service is configured.
func DefaultCatalog() []CourtRate {
	return []CourtRate{
		{
			Info: CourtInfo{
				CourtID:      "court-rsh-bd-1",
				CourtName:    "Badminton Court 1",
				FacilityName: "Riverside Sports Hub",
				Sport:        "badminton",
			},
			BasePrice:      400,
			PeakMultiplier: 1.5,
			PeakStartHour:  18,
			PeakEndHour:    22,
		},
		{
			Info: CourtInfo{
				CourtID:      "court-rsh-bd-2",
				CourtName:    "Badminton Court 2",
				FacilityName: "Riverside Sports Hub",
				Sport:        "badminton",
			},
			BasePrice:      400,
			PeakMultiplier: 1.5,
			PeakStartHour:  18,
			PeakEndHour:    22,
		},
		{
			Info: CourtInfo{
				CourtID:      "court-rsh-tn-1",
				CourtName:    "Tennis Court 1",
				FacilityName: "Riverside Sports Hub",
				Sport:        "tennis",
			},
			BasePrice:      800,
			PeakMultiplier: 1.25,
			PeakStartHour:  17,
			PeakEndHour:    21,
		},
		{
			Info: CourtInfo{
				CourtID:      "court-gpa-ft-1",
				CourtName:    "Futsal Arena",
				FacilityName: "Green Park Arena",
				Sport:        "futsal",
			},
			BasePrice:      1200,
		},
	}
}

// AddCourt registers or replaces a court rate
func (p *StaticProvider) AddCourt(rate CourtRate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[rate.Info.CourtID] = &rate
}

// Court returns catalog metadata for a court
func (p *StaticProvider) Court(ctx context.Context, courtID string) (*CourtInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rate, ok := p.rates[courtID]
	if !ok {
		return nil, fmt.Errorf("unknown court %q", courtID)
	}
	info := rate.Info
	return &info, nil
}

// UnitPrice returns the price for one slot starting at the given time
func (p *StaticProvider) UnitPrice(ctx context.Context, courtID string, start time.Time) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rate, ok := p.rates[courtID]
	if !ok {
		return 0, fmt.Errorf("unknown court %q", courtID)
	}

	price := rate.BasePrice
	if rate.PeakMultiplier > 0 && rate.PeakEndHour > rate.PeakStartHour {
		hour := start.Hour()
		if hour >= rate.PeakStartHour && hour < rate.PeakEndHour {
			price = rate.BasePrice * rate.PeakMultiplier
		}
	}
	return price, nil
}
