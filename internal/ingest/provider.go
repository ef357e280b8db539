// Package ingest pulls market data from external feeds, normalizes it
// and routes it into storage and the redis fan-out.
package ingest

import (
	"context"
	"time"
)

// Record kinds.
const (
	KindTick   = "tick"
	KindCandle = "candle"
)

// Tick is one normalized trade print.
type Tick struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Price  float64   `json:"price"`
	Size   int64     `json:"size"`
	Venue  string    `json:"venue,omitempty"`
}

// Candle is one normalized 1-minute bar.
type Candle struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// NormalizedRecord is the single variant type providers emit. Exactly
// one of Tick or Candle is set.
type NormalizedRecord struct {
	Kind   string
	Tick   *Tick
	Candle *Candle
}

// Provider is a market data source. Start blocks until ctx is done or
// Stop is called; records flow on the channel handed to the provider at
// construction, which the router owns and drains.
type Provider interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
}
