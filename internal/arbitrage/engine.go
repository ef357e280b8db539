package arbitrage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"auction-market-bot/internal/database"
	"auction-market-bot/internal/events"
	"auction-market-bot/internal/logging"
	"auction-market-bot/internal/metrics"
	"auction-market-bot/internal/polymarket"
)

// Exit reasons for paired positions.
const (
	ExitSpreadSpike    = "spread_spike"
	ExitFullValue      = "full_value"
	ExitNearResolution = "near_resolution"
)

var one = decimal.NewFromInt(1)

// Params tunes detection and execution.
type Params struct {
	SpreadThreshold  decimal.Decimal // arb when yes_ask + no_ask below this
	MinProfitPct     decimal.Decimal // execution floor
	MaxPositionSize  decimal.Decimal // dollars per side
	MaxTotalExposure decimal.Decimal // dollars across all open pairs
	FeeRate          decimal.Decimal
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		SpreadThreshold:  decimal.NewFromFloat(0.995),
		MinProfitPct:     decimal.NewFromFloat(0.5),
		MaxPositionSize:  decimal.NewFromInt(100),
		MaxTotalExposure: decimal.NewFromInt(1000),
		FeeRate:          decimal.Zero,
	}
}

// Spread is the cost of buying both sides of the market.
func Spread(yesAsk, noAsk decimal.Decimal) decimal.Decimal {
	return yesAsk.Add(noAsk)
}

// ProfitPct is the locked return of a paired buy at the given spread,
// after fees, as a percentage of capital deployed.
func ProfitPct(spread, feeRate decimal.Decimal) decimal.Decimal {
	if !spread.IsPositive() {
		return decimal.Zero
	}
	net := one.Sub(spread).Sub(spread.Mul(feeRate))
	return net.Div(spread).Mul(decimal.NewFromInt(100))
}

// LockedProfit is the guaranteed payout of a paired holding: the
// smaller leg resolves to $1.00 regardless of outcome.
func LockedProfit(yesQty, noQty, cost decimal.Decimal) decimal.Decimal {
	minQty := yesQty
	if noQty.LessThan(minQty) {
		minQty = noQty
	}
	return minQty.Sub(cost)
}

// ShouldExit is the early-exit policy for an open pair: sell both legs
// when the combined bid spread already pays out, spikes past par, or
// the market is about to resolve with the spread close enough.
func ShouldExit(exitSpread decimal.Decimal, endDate, now time.Time) (bool, string) {
	switch {
	case exitSpread.GreaterThan(decimal.NewFromFloat(1.02)):
		return true, ExitSpreadSpike
	case exitSpread.GreaterThanOrEqual(one):
		return true, ExitFullValue
	case endDate.Sub(now) < 24*time.Hour && exitSpread.GreaterThanOrEqual(decimal.NewFromFloat(0.99)):
		return true, ExitNearResolution
	}
	return false, ""
}

type orderClient interface {
	PlaceOrder(ctx context.Context, tokenID string, price, size decimal.Decimal, side string) (string, error)
}

type arbStore interface {
	UpsertBinaryPrice(ctx context.Context, p *database.BinaryPriceRow) error
	CreateBinaryPosition(ctx context.Context, p *database.BinaryPositionRow) error
	CloseBinaryPosition(ctx context.Context, id int64, exitSpread, realizedPnL float64) error
	GetOpenBinaryPositions(ctx context.Context) ([]database.BinaryPositionRow, error)
	GetOpenBinaryExposure(ctx context.Context) (float64, error)
	HasOpenBinaryPosition(ctx context.Context, marketID string) (bool, error)
}

// sideQuote is the latest best bid/ask for one leg.
type sideQuote struct {
	bid, ask decimal.Decimal
	known    bool
}

// marketQuotes joins the two legs of a market.
type marketQuotes struct {
	market database.BinaryMarket
	yes    sideQuote
	no     sideQuote
}

type tokenRef struct {
	marketID string
	isYes    bool
}

// Engine joins per-token quotes into per-market spreads, records
// opportunities and executes paired entries.
type Engine struct {
	params Params
	client orderClient
	store  arbStore
	bus    *events.EventBus
	logger zerolog.Logger

	mu      sync.Mutex
	markets map[string]*marketQuotes
	byToken map[string]tokenRef
}

// NewEngine creates an arbitrage engine.
func NewEngine(params Params, client orderClient, store arbStore, bus *events.EventBus) *Engine {
	return &Engine{
		params:  params,
		client:  client,
		store:   store,
		bus:     bus,
		logger:  logging.Component("arbitrage"),
		markets: make(map[string]*marketQuotes),
		byToken: make(map[string]tokenRef),
	}
}

// RegisterMarkets loads the market set the engine watches.
func (e *Engine) RegisterMarkets(markets []database.BinaryMarket) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range markets {
		e.markets[m.MarketID] = &marketQuotes{market: m}
		e.byToken[m.YesTokenID] = tokenRef{marketID: m.MarketID, isYes: true}
		e.byToken[m.NoTokenID] = tokenRef{marketID: m.MarketID, isYes: false}
	}
}

// TokenIDs returns every token the engine needs quotes for.
func (e *Engine) TokenIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.byToken))
	for id := range e.byToken {
		ids = append(ids, id)
	}
	return ids
}

// OnQuote folds a token quote into its market pair and evaluates the
// spread once both sides are known. The detection log happens before
// any persistence so the fast path stays fast.
func (e *Engine) OnQuote(ctx context.Context, q Quote) {
	e.mu.Lock()
	ref, ok := e.byToken[q.TokenID]
	if !ok {
		e.mu.Unlock()
		return
	}
	mq := e.markets[ref.marketID]
	side := &mq.no
	if ref.isYes {
		side = &mq.yes
	}
	side.bid, side.ask, side.known = q.BestBid, q.BestAsk, true

	if !mq.yes.known || !mq.no.known {
		e.mu.Unlock()
		return
	}
	market := mq.market
	yes, no := mq.yes, mq.no
	e.mu.Unlock()

	spread := Spread(yes.ask, no.ask)
	profit := ProfitPct(spread, e.params.FeeRate)
	isArb := spread.LessThan(e.params.SpreadThreshold)

	if isArb {
		e.logger.Info().
			Str("market", market.MarketID).
			Str("spread", spread.StringFixed(4)).
			Str("profit_pct", profit.StringFixed(2)).
			Msg("arbitrage opportunity")
		metrics.ArbOpportunities.Inc()
		if e.bus != nil {
			e.bus.PublishArbitrageOpportunity(market.MarketID, market.Symbol, spread.InexactFloat64(), profit.InexactFloat64())
		}
	}

	row := &database.BinaryPriceRow{
		Timestamp:          q.Time,
		SymbolID:           market.SymbolID,
		YesBid:             yes.bid.InexactFloat64(),
		YesAsk:             yes.ask.InexactFloat64(),
		YesMid:             yes.bid.Add(yes.ask).Div(decimal.NewFromInt(2)).InexactFloat64(),
		NoBid:              no.bid.InexactFloat64(),
		NoAsk:              no.ask.InexactFloat64(),
		NoMid:              no.bid.Add(no.ask).Div(decimal.NewFromInt(2)).InexactFloat64(),
		Spread:             spread.InexactFloat64(),
		Arbitrage:          isArb,
		EstimatedProfitPct: profit.InexactFloat64(),
	}
	go func() {
		if err := e.store.UpsertBinaryPrice(context.WithoutCancel(ctx), row); err != nil {
			e.logger.Error().Err(err).Str("market", market.MarketID).Msg("failed to store quote")
		}
	}()

	if isArb && profit.GreaterThanOrEqual(e.params.MinProfitPct) {
		if err := e.execute(ctx, market, yes.ask, no.ask, spread); err != nil {
			e.logger.Error().Err(err).Str("market", market.MarketID).Msg("failed to execute arbitrage")
		}
	}
}

// execute runs the entry gates and places the paired buys.
func (e *Engine) execute(ctx context.Context, market database.BinaryMarket, yesAsk, noAsk, spread decimal.Decimal) error {
	dup, err := e.store.HasOpenBinaryPosition(ctx, market.MarketID)
	if err != nil {
		return fmt.Errorf("failed to check open position: %w", err)
	}
	if dup {
		return nil
	}

	exposure, err := e.store.GetOpenBinaryExposure(ctx)
	if err != nil {
		return fmt.Errorf("failed to check exposure: %w", err)
	}
	pairCost := e.params.MaxPositionSize.Mul(decimal.NewFromInt(2))
	if decimal.NewFromFloat(exposure).Add(pairCost).GreaterThan(e.params.MaxTotalExposure) {
		e.logger.Warn().Str("market", market.MarketID).Float64("exposure", exposure).Msg("exposure cap reached")
		return nil
	}

	// Equal dollars per side, so the cheaper side carries more shares.
	yesQty := e.params.MaxPositionSize.Div(yesAsk).Round(2)
	noQty := e.params.MaxPositionSize.Div(noAsk).Round(2)

	var yesFilled, noFilled bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := e.client.PlaceOrder(gctx, market.YesTokenID, yesAsk, yesQty, polymarket.SideBuy)
		if err == nil {
			yesFilled = true
		}
		return err
	})
	g.Go(func() error {
		_, err := e.client.PlaceOrder(gctx, market.NoTokenID, noAsk, noQty, polymarket.SideBuy)
		if err == nil {
			noFilled = true
		}
		return err
	})
	if err := g.Wait(); err != nil {
		// A one-sided fill is unhedged exposure, unwind it right away
		// at the best available price.
		if yesFilled != noFilled {
			tokenID, price, qty := market.YesTokenID, yesAsk, yesQty
			if noFilled {
				tokenID, price, qty = market.NoTokenID, noAsk, noQty
			}
			if _, sellErr := e.client.PlaceOrder(ctx, tokenID, price, qty, polymarket.SideSell); sellErr != nil {
				e.logger.Error().Err(sellErr).Str("market", market.MarketID).Msg("failed to unwind one-sided fill")
			}
		}
		return fmt.Errorf("paired entry failed: %w", err)
	}

	cost := yesQty.Mul(yesAsk).Add(noQty.Mul(noAsk))
	locked := LockedProfit(yesQty, noQty, cost)
	pos := &database.BinaryPositionRow{
		MarketID:    market.MarketID,
		SymbolID:    market.SymbolID,
		YesQty:      yesQty.InexactFloat64(),
		NoQty:       noQty.InexactFloat64(),
		YesEntry:    yesAsk.InexactFloat64(),
		NoEntry:     noAsk.InexactFloat64(),
		EntrySpread: spread.InexactFloat64(),
		Status:      database.BinaryStatusOpen,
		OpenedAt:    time.Now().UTC(),
	}
	if err := e.store.CreateBinaryPosition(ctx, pos); err != nil {
		return fmt.Errorf("failed to record position: %w", err)
	}

	metrics.ArbExecutions.Inc()
	e.logger.Info().
		Str("market", market.MarketID).
		Str("entry_spread", spread.StringFixed(4)).
		Str("locked_profit", locked.StringFixed(2)).
		Msg("paired position opened")
	if e.bus != nil {
		e.bus.PublishArbitrageExecuted(market.MarketID, market.Symbol, pos.YesQty, pos.NoQty, pos.EntrySpread)
	}
	return nil
}

// exitQuotes returns the current sell-side spread for a market, false
// when either leg is unknown.
func (e *Engine) exitQuotes(marketID string) (yesBid, noBid decimal.Decimal, endDate time.Time, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	mq, found := e.markets[marketID]
	if !found || !mq.yes.known || !mq.no.known {
		return decimal.Zero, decimal.Zero, time.Time{}, false
	}
	return mq.yes.bid, mq.no.bid, mq.market.EndDate, true
}

// ScanExits checks every open pair against the early-exit policy and
// sells both legs when it fires.
func (e *Engine) ScanExits(ctx context.Context) error {
	positions, err := e.store.GetOpenBinaryPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	now := time.Now().UTC()

	for _, pos := range positions {
		yesBid, noBid, endDate, ok := e.exitQuotes(pos.MarketID)
		if !ok {
			continue
		}
		exitSpread := yesBid.Add(noBid)
		exit, reason := ShouldExit(exitSpread, endDate, now)
		if !exit {
			continue
		}

		e.mu.Lock()
		market := e.markets[pos.MarketID].market
		e.mu.Unlock()

		yesQty := decimal.NewFromFloat(pos.YesQty)
		noQty := decimal.NewFromFloat(pos.NoQty)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			_, err := e.client.PlaceOrder(gctx, market.YesTokenID, yesBid, yesQty, polymarket.SideSell)
			return err
		})
		g.Go(func() error {
			_, err := e.client.PlaceOrder(gctx, market.NoTokenID, noBid, noQty, polymarket.SideSell)
			return err
		})
		if err := g.Wait(); err != nil {
			e.logger.Error().Err(err).Str("market", pos.MarketID).Msg("failed to exit pair")
			continue
		}

		cost := yesQty.Mul(decimal.NewFromFloat(pos.YesEntry)).Add(noQty.Mul(decimal.NewFromFloat(pos.NoEntry)))
		proceeds := yesQty.Mul(yesBid).Add(noQty.Mul(noBid))
		pnl := proceeds.Sub(cost)
		if err := e.store.CloseBinaryPosition(ctx, pos.ID, exitSpread.InexactFloat64(), pnl.InexactFloat64()); err != nil {
			e.logger.Error().Err(err).Str("market", pos.MarketID).Msg("failed to record exit")
			continue
		}

		e.logger.Info().
			Str("market", pos.MarketID).
			Str("reason", reason).
			Str("exit_spread", exitSpread.StringFixed(4)).
			Str("pnl", pnl.StringFixed(2)).
			Msg("paired position exited")
		if e.bus != nil {
			e.bus.PublishArbitrageExit(pos.MarketID, market.Symbol, reason, exitSpread.InexactFloat64(), pnl.InexactFloat64())
		}
	}
	return nil
}

// RunExitScanner checks exits on an interval until ctx is done.
func (e *Engine) RunExitScanner(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.ScanExits(ctx); err != nil {
				e.logger.Error().Err(err).Msg("exit scan failed")
			}
		}
	}
}
