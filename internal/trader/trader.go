// Package trader runs the live auto-trading loop: strategy evaluation,
// risk gating, order placement and position upkeep per symbol.
package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"auction-market-bot/internal/aggression"
	"auction-market-bot/internal/broker"
	"auction-market-bot/internal/cache"
	"auction-market-bot/internal/database"
	"auction-market-bot/internal/events"
	"auction-market-bot/internal/logging"
	"auction-market-bot/internal/metrics"
	"auction-market-bot/internal/orders"
	"auction-market-bot/internal/portfolio"
	"auction-market-bot/internal/risk"
	"auction-market-bot/internal/strategy"
)

const (
	candleLookback = 30 // bars for ATR and volume ratio
	flowLookback   = 10 // flow rows for CVD momentum
)

type store interface {
	GetLastPrice(ctx context.Context, symbolID int) (float64, error)
	GetRecentCandles(ctx context.Context, symbolID, n int) ([]database.Candle, error)
	GetLatestMarketState(ctx context.Context, symbolID int) (*database.MarketStateRow, error)
	GetLatestOrderFlow(ctx context.Context, symbolID int) (*database.OrderFlowRow, error)
	GetOrderFlowRange(ctx context.Context, symbolID int, start, end time.Time) ([]database.OrderFlowRow, error)
	AppendSignal(ctx context.Context, s *database.SignalRow) error
	CreatePosition(ctx context.Context, p *database.PositionRow) error
	UpdatePositionStatus(ctx context.Context, id int64, status string) error
	ClosePositionRow(ctx context.Context, id int64) error
	AppendTrade(ctx context.Context, t *database.TradeRow) error
}

// Trader evaluates one symbol per scheduler tick and manages the
// resulting orders and positions.
type Trader struct {
	store     store
	broker    broker.Broker
	monitor   *orders.Monitor
	portfolio *portfolio.Portfolio
	risk      *risk.Manager
	breaker   *risk.HaltBreaker
	cache     *cache.Service
	bus       *events.EventBus
	params    strategy.Params
	atrPeriod int
	logger    zerolog.Logger

	mu          sync.RWMutex
	enabled     bool
	positionIDs map[string]int64 // symbol -> positions row id
}

// New creates a trader. Trading starts disabled unless enable is set.
func New(st store, b broker.Broker, mon *orders.Monitor, pf *portfolio.Portfolio,
	rm *risk.Manager, hb *risk.HaltBreaker, cacheSvc *cache.Service,
	bus *events.EventBus, params strategy.Params, atrPeriod int, enable bool) *Trader {

	t := &Trader{
		store:       st,
		broker:      b,
		monitor:     mon,
		portfolio:   pf,
		risk:        rm,
		breaker:     hb,
		cache:       cacheSvc,
		bus:         bus,
		params:      params,
		atrPeriod:   atrPeriod,
		logger:      logging.Component("trader"),
		enabled:     enable,
		positionIDs: make(map[string]int64),
	}

	if mon != nil {
		mon.OnFill(t.onFill)
		mon.OnCancel(t.onCancel)
	}
	return t
}

// SetEnabled flips the auto-trading switch.
func (t *Trader) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Enabled reports whether entries are allowed.
func (t *Trader) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func (t *Trader) onFill(tr orders.Tracked, fillPrice float64) {
	t.portfolio.MarkOpen(tr.Symbol)
	t.mu.RLock()
	rowID, ok := t.positionIDs[tr.Symbol]
	t.mu.RUnlock()
	if ok {
		if err := t.store.UpdatePositionStatus(context.Background(), rowID, database.PositionStatusOpen); err != nil {
			t.logger.Error().Err(err).Str("symbol", tr.Symbol).Msg("failed to mark position open")
		}
	}
	if t.bus != nil {
		t.bus.PublishOrderFilled(tr.OrderID, tr.Symbol)
	}
}

func (t *Trader) onCancel(tr orders.Tracked, reason string) {
	t.portfolio.Abort(tr.Symbol)
	t.mu.Lock()
	rowID, ok := t.positionIDs[tr.Symbol]
	delete(t.positionIDs, tr.Symbol)
	t.mu.Unlock()
	if ok {
		if err := t.store.ClosePositionRow(context.Background(), rowID); err != nil {
			t.logger.Error().Err(err).Str("symbol", tr.Symbol).Msg("failed to clear cancelled position row")
		}
	}
	if t.bus != nil {
		t.bus.PublishOrderCancelled(tr.OrderID, tr.Symbol, reason)
	}
}

// flowDirection reads the indicator direction for exit confirmation.
func flowDirection(flow *database.OrderFlowRow, cvdMomentum, volumeRatio float64) string {
	if flow == nil {
		return aggression.DirectionNeutral
	}
	return aggression.Score(aggression.Inputs{
		VolumeRatio:  volumeRatio,
		CVDMomentum:  cvdMomentum,
		BuyPressure:  flow.BuyPressure,
		SellPressure: flow.SellPressure,
	}).Direction
}

// ProcessSymbol runs one trading pass for a symbol: exits first, then a
// possible new entry.
func (t *Trader) ProcessSymbol(ctx context.Context, symbolID int, symbol string) error {
	price, err := t.store.GetLastPrice(ctx, symbolID)
	if err != nil || price <= 0 {
		return nil // no data yet
	}

	candles, err := t.store.GetRecentCandles(ctx, symbolID, candleLookback)
	if err != nil {
		return fmt.Errorf("failed to load candles for %s: %w", symbol, err)
	}
	// State and flow rows appear only after the first detection pass;
	// until then the symbol simply has no observation yet.
	stateRow, err := t.store.GetLatestMarketState(ctx, symbolID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to load market state for %s: %w", symbol, err)
	}
	flow, err := t.store.GetLatestOrderFlow(ctx, symbolID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to load order flow for %s: %w", symbol, err)
	}

	now := time.Now().UTC()
	flows, err := t.store.GetOrderFlowRange(ctx, symbolID, now.Add(-flowLookback*time.Minute), now)
	if err != nil {
		return fmt.Errorf("failed to load flow history for %s: %w", symbol, err)
	}

	volumeRatio := strategy.VolumeRatio(candles)
	cvdMomentum := strategy.CVDMomentum(flows)
	state := ""
	confidence := 0.0
	if stateRow != nil {
		state = stateRow.State
		confidence = stateRow.Confidence
	}
	flowDir := flowDirection(flow, cvdMomentum, volumeRatio)

	t.portfolio.UpdateBar(symbol, price)
	if pos, open := t.portfolio.Get(symbol); open && pos.Status == portfolio.StatusOpen {
		if exit, reason := strategy.EvaluateExit(pos.Side, pos.StopLoss, pos.TakeProfit, price, state, flowDir); exit {
			return t.closePosition(ctx, symbolID, symbol, price, reason)
		}
		return nil
	}

	if !t.Enabled() {
		return nil
	}
	if ok, reason := t.breaker.CanTrade(); !ok {
		t.logger.Debug().Str("symbol", symbol).Str("reason", reason).Msg("entries halted")
		return nil
	}
	if stateRow == nil || flow == nil {
		return nil
	}

	in := strategy.Inputs{
		Symbol:       symbol,
		MarketState:  state,
		Confidence:   confidence,
		BuyPressure:  flow.BuyPressure,
		SellPressure: flow.SellPressure,
		CVDMomentum:  cvdMomentum,
		VolumeRatio:  volumeRatio,
		Price:        price,
		ATR:          strategy.ATR(candles, t.atrPeriod),
	}
	signal, _ := strategy.EvaluateEntry(in, t.params)
	if signal == nil {
		return nil
	}

	return t.openPosition(ctx, symbolID, signal)
}

// openPosition runs the risk gates and places the bracket order.
func (t *Trader) openPosition(ctx context.Context, symbolID int, signal *strategy.Signal) error {
	acct, err := t.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch account: %w", err)
	}
	t.risk.UpdateAccount(acct.PortfolioValue, acct.AccountBlocked, acct.TradingBlocked)

	symbol := signal.Symbol
	block := func(reason string) error {
		t.portfolio.RecordSignalBlocked(symbol)
		metrics.SignalsBlocked.WithLabelValues(reason).Inc()
		t.logger.Info().Str("symbol", symbol).Str("reason", reason).Msg("signal blocked")
		if t.bus != nil {
			t.bus.PublishSignalBlocked(symbol, signal.Side, reason)
		}
		return t.persistSignal(ctx, symbolID, signal, false)
	}

	if ok, reason := t.risk.CanOpenPosition(symbol, t.portfolio.OpenCount(), t.portfolio.HasPosition(symbol)); !ok {
		return block(reason)
	}

	qty := strategy.PositionSize(acct.Equity, acct.Cash, signal.EntryPrice, signal.StopLoss, t.params.RiskPerTradePct)
	if qty <= 0 {
		return block("position size rounded to zero")
	}

	order, err := t.broker.PlaceBracketOrder(ctx, symbol, qty, signal.Side, signal.TakeProfit, signal.StopLoss)
	if err != nil {
		return fmt.Errorf("failed to place bracket order for %s: %w", symbol, err)
	}

	pos, err := t.portfolio.Open(portfolio.Position{
		Symbol:            symbol,
		Side:              signal.Side,
		Qty:               qty,
		EntryPrice:        signal.EntryPrice,
		EntryTime:         time.Now().UTC(),
		StopLoss:          signal.StopLoss,
		TakeProfit:        signal.TakeProfit,
		OrderID:           order.ID,
		EntryReason:       signal.Reason,
		StateAtEntry:      signal.MarketState,
		AggressionAtEntry: signal.AggressionScore,
	}, portfolio.StatusOpening)
	if err != nil {
		// Order is out but we can't track it: cancel and walk away.
		if cancelErr := t.broker.CancelOrder(ctx, order.ID); cancelErr != nil {
			t.logger.Error().Err(cancelErr).Str("symbol", symbol).Msg("failed to cancel untrackable order")
		}
		return fmt.Errorf("failed to open portfolio position: %w", err)
	}

	t.monitor.Track(order, signal.EntryPrice)
	metrics.OrdersPlaced.WithLabelValues(signal.Side).Inc()
	metrics.SignalsGenerated.WithLabelValues(symbol, signal.Side).Inc()
	metrics.OpenPositions.Set(float64(t.portfolio.OpenCount()))
	t.portfolio.RecordSignalGenerated(symbol)

	orderID := order.ID
	row := &database.PositionRow{
		SymbolID:   symbolID,
		Side:       pos.Side,
		Qty:        pos.Qty,
		EntryPrice: pos.EntryPrice,
		EntryTime:  pos.EntryTime,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		Status:     database.PositionStatusOpening,
		OrderID:    &orderID,
	}
	if err := t.store.CreatePosition(ctx, row); err != nil {
		t.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to persist position")
	} else {
		t.mu.Lock()
		t.positionIDs[symbol] = row.ID
		t.mu.Unlock()
	}

	t.logger.Info().
		Str("symbol", symbol).
		Str("side", signal.Side).
		Int64("qty", qty).
		Float64("entry", signal.EntryPrice).
		Float64("stop", signal.StopLoss).
		Float64("target", signal.TakeProfit).
		Float64("score", signal.AggressionScore).
		Msg("entry order placed")

	if t.bus != nil {
		t.bus.PublishSignal(symbol, signal.Side, signal.Reason, signal.EntryPrice, signal.AggressionScore)
		t.bus.PublishOrderPlaced(order.ID, symbol, signal.Side, signal.EntryPrice, qty)
		t.bus.PublishTradeOpened(symbol, signal.Side, signal.EntryPrice, qty)
	}
	if t.cache != nil {
		_ = t.cache.Publish(ctx, cache.ChannelSignals, signal)
	}
	return t.persistSignal(ctx, symbolID, signal, true)
}

func (t *Trader) persistSignal(ctx context.Context, symbolID int, signal *strategy.Signal, executed bool) error {
	row := &database.SignalRow{
		Time:            time.Now().UTC(),
		SymbolID:        symbolID,
		Side:            signal.Side,
		EntryPrice:      signal.EntryPrice,
		StopLoss:        signal.StopLoss,
		TakeProfit:      signal.TakeProfit,
		AggressionScore: signal.AggressionScore,
		MarketState:     signal.MarketState,
		Confidence:      signal.Confidence,
		Reason:          signal.Reason,
		Executed:        executed,
	}
	if err := t.store.AppendSignal(ctx, row); err != nil {
		return fmt.Errorf("failed to persist signal: %w", err)
	}
	return nil
}

// closePosition liquidates at the broker and settles the books.
func (t *Trader) closePosition(ctx context.Context, symbolID int, symbol string, price float64, reason string) error {
	if err := t.broker.ClosePosition(ctx, symbol); err != nil {
		return fmt.Errorf("failed to close %s at broker: %w", symbol, err)
	}

	trade, err := t.portfolio.Close(symbol, price, time.Now().UTC(), reason)
	if err != nil {
		return fmt.Errorf("failed to settle %s: %w", symbol, err)
	}

	t.risk.RecordTradePnL(trade.PnL)
	t.breaker.RecordTrade(trade.PnL)
	metrics.OpenPositions.Set(float64(t.portfolio.OpenCount()))

	t.mu.Lock()
	rowID, ok := t.positionIDs[symbol]
	delete(t.positionIDs, symbol)
	t.mu.Unlock()
	if ok {
		if err := t.store.ClosePositionRow(ctx, rowID); err != nil {
			t.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to close position row")
		}
	}

	if err := t.store.AppendTrade(ctx, &database.TradeRow{
		SymbolID:          symbolID,
		Side:              trade.Side,
		Qty:               trade.Qty,
		EntryPrice:        trade.EntryPrice,
		EntryTime:         trade.EntryTime,
		ExitPrice:         trade.ExitPrice,
		ExitTime:          trade.ExitTime,
		ExitReason:        trade.ExitReason,
		PnL:               trade.PnL,
		PnLPct:            trade.PnLPct,
		MAE:               trade.MAE,
		MFE:               trade.MFE,
		BarsHeld:          trade.BarsHeld,
		StateAtEntry:      trade.StateAtEntry,
		AggressionAtEntry: trade.AggressionAtEntry,
	}); err != nil {
		t.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to persist trade")
	}

	t.logger.Info().
		Str("symbol", symbol).
		Str("reason", reason).
		Float64("exit", price).
		Float64("pnl", trade.PnL).
		Msg("position closed")

	if t.bus != nil {
		t.bus.PublishTradeClosed(symbol, trade.Side, reason, trade.EntryPrice, trade.ExitPrice, trade.PnL, trade.PnLPct)
	}
	return nil
}
