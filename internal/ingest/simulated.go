package ingest

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

// walker is a seeded random walk around a base price. Deterministic per
// symbol so demos and tests replay identically.
type walker struct {
	rng   *rand.Rand
	price float64
}

func seedFor(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64())
}

func newWalker(symbol string) *walker {
	rng := rand.New(rand.NewSource(seedFor(symbol)))
	return &walker{
		rng:   rng,
		price: 50 + rng.Float64()*200,
	}
}

// next advances one step: +-0.25% drift.
func (w *walker) next() float64 {
	w.price *= 1 + (w.rng.Float64()-0.5)*0.005
	if w.price < 1 {
		w.price = 1
	}
	return w.price
}

func (w *walker) size() int64 {
	return 1 + w.rng.Int63n(200)
}

// SimulatedProvider emits a deterministic random-walk tick stream and
// minute candles, for demos and offline testing.
type SimulatedProvider struct {
	symbols      []string
	tickInterval time.Duration
	out          chan<- NormalizedRecord

	stop chan struct{}
	once sync.Once
}

// NewSimulatedProvider creates a simulated provider writing into out.
func NewSimulatedProvider(symbols []string, tickInterval time.Duration, out chan<- NormalizedRecord) *SimulatedProvider {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &SimulatedProvider{
		symbols:      symbols,
		tickInterval: tickInterval,
		out:          out,
		stop:         make(chan struct{}),
	}
}

func (p *SimulatedProvider) Name() string { return "simulated" }

func (p *SimulatedProvider) Stop() {
	p.once.Do(func() { close(p.stop) })
}

// Start emits ticks per symbol every interval and a candle at each
// minute rollover.
func (p *SimulatedProvider) Start(ctx context.Context) error {
	walkers := make(map[string]*walker, len(p.symbols))
	type barState struct {
		open, high, low, closePrice float64
		volume                      float64
		bucket                      time.Time
	}
	bars := make(map[string]*barState, len(p.symbols))
	for _, sym := range p.symbols {
		walkers[sym] = newWalker(sym)
	}

	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	emit := func(rec NormalizedRecord) bool {
		select {
		case p.out <- rec:
			return true
		case <-ctx.Done():
			return false
		case <-p.stop:
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		case now := <-ticker.C:
			now = now.UTC()
			bucket := now.Truncate(time.Minute)
			for _, sym := range p.symbols {
				w := walkers[sym]
				price := w.next()
				size := w.size()

				bar, ok := bars[sym]
				if !ok || !bar.bucket.Equal(bucket) {
					if ok {
						// minute rolled over, flush the finished bar
						if !emit(NormalizedRecord{Kind: KindCandle, Candle: &Candle{
							Symbol: sym,
							Time:   bar.bucket,
							Open:   bar.open,
							High:   bar.high,
							Low:    bar.low,
							Close:  bar.closePrice,
							Volume: bar.volume,
						}}) {
							return nil
						}
					}
					bar = &barState{open: price, high: price, low: price, bucket: bucket}
					bars[sym] = bar
				}
				if price > bar.high {
					bar.high = price
				}
				if price < bar.low {
					bar.low = price
				}
				bar.closePrice = price
				bar.volume += float64(size)

				if !emit(NormalizedRecord{Kind: KindTick, Tick: &Tick{
					Symbol: sym,
					Time:   now,
					Price:  price,
					Size:   size,
					Venue:  "sim",
				}}) {
					return nil
				}
			}
		}
	}
}

// GenerateCandles produces n deterministic minute candles for a symbol
// starting at start. Useful for seeding backtests without live data.
func GenerateCandles(symbol string, start time.Time, n int) []Candle {
	w := newWalker(symbol)
	candles := make([]Candle, 0, n)
	start = start.UTC().Truncate(time.Minute)

	for i := 0; i < n; i++ {
		open := w.price
		high, low := open, open
		var volume float64
		var closePrice float64
		for t := 0; t < 12; t++ {
			p := w.next()
			if p > high {
				high = p
			}
			if p < low {
				low = p
			}
			closePrice = p
			volume += float64(w.size())
		}
		candles = append(candles, Candle{
			Symbol: symbol,
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}
	return candles
}
