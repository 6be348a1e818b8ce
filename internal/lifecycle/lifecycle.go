// Package lifecycle defines the market status machine and the guards that
// decide which operations a market in a given state accepts.
package lifecycle

import (
	"fmt"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// transitions is the set of legal status edges. Automatic resolution of
// chained/derivative markets is the one path allowed to jump straight from
// pending/active to resolved.
var transitions = map[domain.MarketStatus]map[domain.MarketStatus]bool{
	domain.MarketStatusPending: {
		domain.MarketStatusActive:    true,
		domain.MarketStatusResolved:  true, // automatic only
		domain.MarketStatusCancelled: true,
	},
	domain.MarketStatusActive: {
		domain.MarketStatusVoting:    true,
		domain.MarketStatusResolved:  true, // automatic only
		domain.MarketStatusCancelled: true,
	},
	domain.MarketStatusVoting: {
		domain.MarketStatusResolved: true,
		domain.MarketStatusDisputed: true,
	},
	domain.MarketStatusDisputed: {
		domain.MarketStatusResolved: true,
	},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to domain.MarketStatus) bool {
	return transitions[from][to]
}

// Transition mutates the market's status after validating the edge. A
// transition out of resolved or cancelled, or any edge not in the table,
// fails with ErrStateConflict.
func Transition(m *domain.Market, to domain.MarketStatus) error {
	if !CanTransition(m.Status, to) {
		return fmt.Errorf("lifecycle: %s -> %s on market %s: %w", m.Status, to, m.ID, domain.ErrStateConflict)
	}
	m.Status = to
	return nil
}

// GuardTrade rejects trades on anything but an active market.
func GuardTrade(m domain.Market) error {
	if m.Status != domain.MarketStatusActive {
		return fmt.Errorf("lifecycle: market %s is %s, trading requires active: %w", m.ID, m.Status, domain.ErrStateConflict)
	}
	return nil
}

// GuardVote rejects ballots on anything but a voting market.
func GuardVote(m domain.Market) error {
	if m.Status != domain.MarketStatusVoting {
		return fmt.Errorf("lifecycle: market %s is %s, voting requires voting status: %w", m.ID, m.Status, domain.ErrStateConflict)
	}
	return nil
}

// GuardResolve rejects resolution of an already-resolved market. Double
// resolution is an explicit error, never a silent no-op.
func GuardResolve(m domain.Market) error {
	if m.Status == domain.MarketStatusResolved {
		return fmt.Errorf("lifecycle: market %s already resolved: %w", m.ID, domain.ErrStateConflict)
	}
	if m.Status == domain.MarketStatusCancelled {
		return fmt.Errorf("lifecycle: market %s is cancelled: %w", m.ID, domain.ErrStateConflict)
	}
	return nil
}

// GuardCancel permits cancellation only while the market is still pending or
// actively trading.
func GuardCancel(m domain.Market) error {
	if m.Status != domain.MarketStatusActive && m.Status != domain.MarketStatusPending {
		return fmt.Errorf("lifecycle: market %s is %s, cancel requires pending or active: %w", m.ID, m.Status, domain.ErrStateConflict)
	}
	return nil
}

// GuardClose permits an explicit active -> voting close.
func GuardClose(m domain.Market) error {
	if m.Status != domain.MarketStatusActive {
		return fmt.Errorf("lifecycle: market %s is %s, close requires active: %w", m.ID, m.Status, domain.ErrStateConflict)
	}
	return nil
}
