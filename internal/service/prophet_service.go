package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

const (
	// generationTimeout bounds one market generation call.
	generationTimeout = 60 * time.Second

	// generatedMarketWindow is the trading window for generated markets.
	generatedMarketWindow = 72 * time.Hour

	// recentTitleSample is how many recent market titles the generator sees
	// to avoid duplicates.
	recentTitleSample = 10
)

// ProphetService drives the oracle's creative side: generating fresh markets
// for a room and taking its own positions on them.
type ProphetService struct {
	uow     domain.UnitOfWork
	oracle  domain.Oracle
	markets *MarketService
	trading *TradingService
	autoBet bool
	logger  *slog.Logger
}

// NewProphetService creates a ProphetService. When autoBet is set the oracle
// is asked for a position on every market it generates.
func NewProphetService(
	uow domain.UnitOfWork,
	oracle domain.Oracle,
	markets *MarketService,
	trading *TradingService,
	autoBet bool,
	logger *slog.Logger,
) *ProphetService {
	return &ProphetService{
		uow:     uow,
		oracle:  oracle,
		markets: markets,
		trading: trading,
		autoBet: autoBet,
		logger:  logger.With(slog.String("component", "prophet")),
	}
}

// GenerateMarkets asks the oracle for new market ideas for a room and creates
// them. Ideas that fail validation are skipped, not fatal. The created
// markets are returned.
func (s *ProphetService) GenerateMarkets(ctx context.Context, roomID uuid.UUID) ([]domain.Market, error) {
	var (
		room     domain.Room
		members  []string
		titles   []string
	)
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		room, err = st.Rooms.GetByID(ctx, roomID)
		if err != nil {
			return err
		}

		accounts, err := st.Accounts.ListByRoom(ctx, roomID, domain.ListOpts{})
		if err != nil {
			return err
		}
		for _, a := range accounts {
			members = append(members, a.DisplayName)
		}

		recent, err := st.Markets.ListByRoom(ctx, roomID, domain.ListOpts{Limit: recentTitleSample})
		if err != nil {
			return err
		}
		for _, m := range recent {
			titles = append(titles, m.Title)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("prophet: load room %s: %w", roomID, err)
	}

	gctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	ideas, err := s.oracle.GenerateMarkets(gctx, room.Name, members, titles)
	if err != nil {
		return nil, fmt.Errorf("prophet: generate markets for room %s: %w", roomID, err)
	}

	var created []domain.Market
	for _, idea := range ideas {
		m, err := s.markets.CreateMarket(ctx, CreateMarketParams{
			RoomID:      roomID,
			Title:       idea.Title,
			Description: idea.Description,
			Category:    idea.Category,
			ExpiresAt:   time.Now().UTC().Add(generatedMarketWindow),
		})
		if err != nil {
			s.logger.Warn("generated market rejected",
				slog.String("room_id", roomID.String()),
				slog.String("title", idea.Title),
				slog.String("error", err.Error()))
			continue
		}
		created = append(created, m)

		if s.autoBet {
			s.placeBet(ctx, m)
		}
	}

	s.logger.Info("markets generated",
		slog.String("room_id", roomID.String()),
		slog.Int("ideas", len(ideas)),
		slog.Int("created", len(created)))
	return created, nil
}

// placeBet asks the oracle for a position on a fresh market and executes it.
// Failures are logged; a missing bet never fails generation.
func (s *ProphetService) placeBet(ctx context.Context, m domain.Market) {
	decision, err := s.oracle.BetDecision(ctx, m.Title, m.Description, m.OddsYes)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("bet decision failed",
				slog.String("market_id", m.ID.String()),
				slog.String("error", err.Error()))
		}
		return
	}
	if !decision.ShouldBet {
		return
	}

	if _, err := s.trading.PlaceProphetTrade(ctx, m.ID, decision.Side, decision.Amount); err != nil {
		s.logger.Warn("prophet trade failed",
			slog.String("market_id", m.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	s.logger.Info("prophet bet placed",
		slog.String("market_id", m.ID.String()),
		slog.String("side", string(decision.Side)),
		slog.Float64("amount", decision.Amount),
		slog.Float64("confidence", decision.Confidence))
}
