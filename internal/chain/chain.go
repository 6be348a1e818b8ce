// Package chain manages parent -> child "chained" markets: validation at
// creation time, activation of matching children when a parent resolves, and
// chain tree assembly.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// DefaultActivationWindow is the fresh trading window a child receives when
// its parent resolves. Children never inherit the parent's original expiry.
const DefaultActivationWindow = 48 * time.Hour

// Service validates and navigates market chains.
type Service struct {
	uow    domain.UnitOfWork
	logger *slog.Logger
}

// New creates a chain Service.
func New(uow domain.UnitOfWork, logger *slog.Logger) *Service {
	return &Service{
		uow:    uow,
		logger: logger.With(slog.String("component", "chain")),
	}
}

// ValidateCreation checks that a chained market may be created under the
// given parent and returns the depth the child would get. The parent must
// exist and not be resolved, the trigger must be a known condition, and the
// child depth must stay under MaxChainDepth (chains stop at root -> child).
func (s *Service) ValidateCreation(ctx context.Context, parentID uuid.UUID, trigger domain.TriggerCondition) (int, error) {
	if trigger != domain.TriggerParentYes && trigger != domain.TriggerParentNo {
		return 0, fmt.Errorf("chain: unknown trigger condition %q: %w", trigger, domain.ErrValidation)
	}

	var parent domain.Market
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		parent, err = st.Markets.GetByID(ctx, parentID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("chain: load parent %s: %w", parentID, err)
	}

	if parent.IsResolved() {
		return 0, fmt.Errorf("chain: parent %s already resolved: %w", parentID, domain.ErrStateConflict)
	}

	depth := parent.ChainDepth + 1
	if depth >= domain.MaxChainDepth {
		return 0, fmt.Errorf("chain: depth %d exceeds maximum %d (root -> child only): %w",
			depth, domain.MaxChainDepth, domain.ErrValidation)
	}

	return depth, nil
}

// ActivateChildren flips every pending child whose trigger matches the
// parent's resolution to active, assigning a fresh expiry window from now.
// Children in any other status are left untouched, which makes the call
// idempotent. It operates on the caller's store scope so resolution can run
// it inside its own transaction.
func ActivateChildren(ctx context.Context, markets domain.MarketStore, parent domain.Market, result domain.Side, window time.Duration, now time.Time) ([]domain.Market, error) {
	children, err := markets.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("chain: list children of %s: %w", parent.ID, err)
	}

	trigger := domain.TriggerFor(result)

	var activated []domain.Market
	for _, child := range children {
		if child.Status != domain.MarketStatusPending || child.Trigger != trigger {
			continue
		}

		child.Status = domain.MarketStatusActive
		child.ExpiresAt = now.Add(window)
		child.UpdatedAt = now

		if err := markets.Update(ctx, child); err != nil {
			return nil, fmt.Errorf("chain: activate child %s: %w", child.ID, err)
		}
		activated = append(activated, child)
	}

	return activated, nil
}

// TreeNode is one market in a chain tree.
type TreeNode struct {
	Market   domain.Market `json:"market"`
	Children []*TreeNode   `json:"children"`
}

// Tree resolves any market in a chain to the chain's root, then builds the
// full {market, children} tree downward. Fan-out per node is unbounded; only
// depth is capped, so the upward walk is bounded too.
func (s *Service) Tree(ctx context.Context, marketID uuid.UUID) (*TreeNode, error) {
	var root *TreeNode
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		m, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}

		// Walk up to the root.
		for m.ParentID != nil {
			parent, err := st.Markets.GetByID(ctx, *m.ParentID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					break
				}
				return err
			}
			m = parent
		}

		root, err = buildNode(ctx, st.Markets, m)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chain: tree for %s: %w", marketID, err)
	}
	return root, nil
}

func buildNode(ctx context.Context, markets domain.MarketStore, m domain.Market) (*TreeNode, error) {
	children, err := markets.ListChildren(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].CreatedAt.Before(children[j].CreatedAt)
	})

	node := &TreeNode{Market: m, Children: []*TreeNode{}}
	for _, child := range children {
		childNode, err := buildNode(ctx, markets, child)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, childNode)
	}
	return node, nil
}
