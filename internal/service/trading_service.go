package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/lifecycle"
	"github.com/alanyoungcy/prophecy/internal/lmsr"
)

const (
	// marketLockTTL bounds how long one trade or resolution may hold a
	// market's lock before it expires on its own.
	marketLockTTL = 15 * time.Second

	// commentaryTimeout bounds the asynchronous oracle commentary call.
	commentaryTimeout = 60 * time.Second
)

// TradingService coordinates trades: it validates state via the lifecycle
// guards, prices via the LMSR engine, and mutates the ledger — all inside a
// per-market lock and one storage unit of work.
type TradingService struct {
	uow    domain.UnitOfWork
	locks  domain.LockManager
	cache  domain.MarketCache
	bus    domain.SignalBus
	oracle domain.Oracle
	logger *slog.Logger
}

// NewTradingService creates a TradingService. cache, bus, and oracle may be
// nil; the corresponding side effects are skipped.
func NewTradingService(
	uow domain.UnitOfWork,
	locks domain.LockManager,
	cache domain.MarketCache,
	bus domain.SignalBus,
	oracle domain.Oracle,
	logger *slog.Logger,
) *TradingService {
	return &TradingService{
		uow:    uow,
		locks:  locks,
		cache:  cache,
		bus:    bus,
		oracle: oracle,
		logger: logger.With(slog.String("component", "trading")),
	}
}

// PlaceTrade executes one buy for a room account. The whole operation is
// all-or-nothing: any failure after validation leaves no partial ledger or
// market mutation.
func (s *TradingService) PlaceTrade(ctx context.Context, marketID, accountID uuid.UUID, side domain.Side, amount float64) (domain.TradeReceipt, error) {
	if !side.Valid() {
		return domain.TradeReceipt{}, fmt.Errorf("trading: side must be yes or no, got %q: %w", side, domain.ErrValidation)
	}
	if amount <= 0 {
		return domain.TradeReceipt{}, fmt.Errorf("trading: amount must be positive, got %v: %w", amount, domain.ErrValidation)
	}

	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(marketID), marketLockTTL)
	if err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("trading: lock market %s: %w", marketID, err)
	}
	defer unlock()

	var (
		receipt domain.TradeReceipt
		market  domain.Market
		trader  string
	)
	err = s.uow.Do(ctx, func(st domain.Stores) error {
		m, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if err := lifecycle.GuardTrade(m); err != nil {
			return err
		}

		acct, err := st.Accounts.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		if acct.RoomID != m.RoomID {
			return fmt.Errorf("trading: account %s is not in room %s: %w", accountID, m.RoomID, domain.ErrUnauthorized)
		}
		if !acct.Role.CanTrade() {
			return fmt.Errorf("trading: role %s may not trade: %w", acct.Role, domain.ErrUnauthorized)
		}

		room, err := st.Rooms.GetByID(ctx, m.RoomID)
		if err != nil {
			return err
		}
		if amount < room.MinBet || amount > room.MaxBet {
			return fmt.Errorf("trading: amount %v outside room bet range [%v, %v]: %w",
				amount, room.MinBet, room.MaxBet, domain.ErrValidation)
		}

		if acct.Balance < amount {
			return fmt.Errorf("trading: balance %v below amount %v: %w", acct.Balance, amount, domain.ErrInsufficientFunds)
		}

		// Snapshot odds before the pool moves; reputation scoring reads this.
		oddsAtTrade := m.OddsYes

		engine, err := lmsr.FromMarket(m)
		if err != nil {
			return err
		}
		shares, priceYes, _, err := engine.ExecuteTrade(side, amount)
		if err != nil {
			return err
		}

		balance, err := st.Accounts.AdjustBalance(ctx, acct.ID, -amount)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		trade := domain.Trade{
			ID:             uuid.New(),
			MarketID:       m.ID,
			AccountID:      &acct.ID,
			Side:           side,
			Amount:         amount,
			SharesReceived: shares,
			OddsAtTrade:    oddsAtTrade,
			CreatedAt:      now,
		}
		if err := st.Trades.Insert(ctx, trade); err != nil {
			return err
		}

		m.YesShares = engine.YesShares
		m.NoShares = engine.NoShares
		m.OddsYes = priceYes
		m.TotalPool += amount
		m.UpdatedAt = now
		if err := st.Markets.Update(ctx, m); err != nil {
			return err
		}

		acct.TradesPlaced++
		acct.UpdatedAt = now
		if err := st.Accounts.Update(ctx, acct); err != nil {
			return err
		}

		market = m
		trader = acct.DisplayName
		receipt = domain.TradeReceipt{
			TradeID:        trade.ID,
			SharesReceived: shares,
			OddsYes:        priceYes,
			OddsNo:         1.0 - priceYes,
			Balance:        balance,
		}
		return nil
	})
	if err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("trading: place trade on %s: %w", marketID, err)
	}

	s.afterTrade(ctx, market, trader, side, amount, receipt)
	return receipt, nil
}

// PlaceProphetTrade executes a buy on behalf of the prophet. It has no room
// account: no balance is debited and the trade is flagged so resolution
// skips its ledger mutations.
func (s *TradingService) PlaceProphetTrade(ctx context.Context, marketID uuid.UUID, side domain.Side, amount float64) (domain.TradeReceipt, error) {
	if !side.Valid() || amount <= 0 {
		return domain.TradeReceipt{}, fmt.Errorf("trading: invalid prophet trade (%q, %v): %w", side, amount, domain.ErrValidation)
	}

	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(marketID), marketLockTTL)
	if err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("trading: lock market %s: %w", marketID, err)
	}
	defer unlock()

	var (
		receipt domain.TradeReceipt
		market  domain.Market
	)
	err = s.uow.Do(ctx, func(st domain.Stores) error {
		m, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if err := lifecycle.GuardTrade(m); err != nil {
			return err
		}

		oddsAtTrade := m.OddsYes
		engine, err := lmsr.FromMarket(m)
		if err != nil {
			return err
		}
		shares, priceYes, _, err := engine.ExecuteTrade(side, amount)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		trade := domain.Trade{
			ID:             uuid.New(),
			MarketID:       m.ID,
			ProphetTrade:   true,
			Side:           side,
			Amount:         amount,
			SharesReceived: shares,
			OddsAtTrade:    oddsAtTrade,
			CreatedAt:      now,
		}
		if err := st.Trades.Insert(ctx, trade); err != nil {
			return err
		}

		m.YesShares = engine.YesShares
		m.NoShares = engine.NoShares
		m.OddsYes = priceYes
		m.TotalPool += amount
		m.UpdatedAt = now
		if err := st.Markets.Update(ctx, m); err != nil {
			return err
		}

		market = m
		receipt = domain.TradeReceipt{
			TradeID:        trade.ID,
			SharesReceived: shares,
			OddsYes:        priceYes,
			OddsNo:         1.0 - priceYes,
		}
		return nil
	})
	if err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("trading: place prophet trade on %s: %w", marketID, err)
	}

	s.afterTrade(ctx, market, "Prophet", side, amount, receipt)
	return receipt, nil
}

// ListMarketTrades returns a market's trades in execution order.
func (s *TradingService) ListMarketTrades(ctx context.Context, marketID uuid.UUID, opts domain.ListOpts) ([]domain.Trade, error) {
	var trades []domain.Trade
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		trades, err = st.Trades.ListByMarket(ctx, marketID, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("trading: list trades for market %s: %w", marketID, err)
	}
	return trades, nil
}

// ListAccountTrades returns an account's trades, newest first.
func (s *TradingService) ListAccountTrades(ctx context.Context, accountID uuid.UUID, opts domain.ListOpts) ([]domain.Trade, error) {
	var trades []domain.Trade
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		trades, err = st.Trades.ListByAccount(ctx, accountID, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("trading: list trades for account %s: %w", accountID, err)
	}
	return trades, nil
}

// afterTrade runs the non-transactional side effects: cache invalidation,
// event publication, and asynchronous oracle commentary. None of them can
// fail the trade.
func (s *TradingService) afterTrade(ctx context.Context, m domain.Market, trader string, side domain.Side, amount float64, receipt domain.TradeReceipt) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, m.ID); err != nil {
			s.logger.WarnContext(ctx, "trading: cache invalidate failed",
				slog.String("market_id", m.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":     "trade_placed",
			"market_id": m.ID.String(),
			"room_id":   m.RoomID.String(),
			"trader":    trader,
			"side":      side,
			"amount":    amount,
			"odds_yes":  receipt.OddsYes,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		if err := s.bus.Publish(ctx, "trades", evt); err != nil {
			s.logger.WarnContext(ctx, "trading: publish trade event failed",
				slog.String("market_id", m.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.oracle == nil || s.bus == nil {
		return
	}

	// Commentary is cosmetic. It runs detached from the request context and
	// never inside the market lock.
	go func() {
		cctx, cancel := context.WithTimeout(context.Background(), commentaryTimeout)
		defer cancel()

		text, err := s.oracle.TradeCommentary(cctx, m.Title, trader, side, amount, receipt.OddsYes)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn("trading: commentary failed",
					slog.String("market_id", m.ID.String()),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		evt, _ := json.Marshal(map[string]any{
			"event":     "prophet_commentary",
			"market_id": m.ID.String(),
			"room_id":   m.RoomID.String(),
			"text":      text,
		})
		if err := s.bus.Publish(cctx, "commentary", evt); err != nil {
			s.logger.Warn("trading: publish commentary failed",
				slog.String("error", err.Error()),
			)
		}
	}()
}
