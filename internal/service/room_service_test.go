package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/store/memory"
)

func TestCreateRoom(t *testing.T) {
	ctx := context.Background()
	svc := NewRoomService(memory.New(), testLogger())

	room, creator, err := svc.CreateRoom(ctx, CreateRoomParams{
		Name:        "friday bets",
		CreatorName: "dana",
	})
	require.NoError(t, err)

	assert.Len(t, room.JoinCode, 6)
	assert.Equal(t, defaultStartingBalance, room.StartingBalance)
	assert.Equal(t, creator.ID, room.CreatorID)

	assert.Equal(t, domain.RoleAdmin, creator.Role)
	assert.Equal(t, room.StartingBalance, creator.Balance)
	assert.Equal(t, ReputationBaseline, creator.ReputationScore)
	assert.Equal(t, "Silver", creator.ReputationRank)

	_, _, err = svc.CreateRoom(ctx, CreateRoomParams{Name: "", CreatorName: "dana"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = svc.CreateRoom(ctx, CreateRoomParams{Name: "bad limits", CreatorName: "dana", MinBet: 10, MaxBet: 5})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestJoinRoom(t *testing.T) {
	ctx := context.Background()
	svc := NewRoomService(memory.New(), testLogger())

	room, _, err := svc.CreateRoom(ctx, CreateRoomParams{Name: "friday bets", CreatorName: "dana"})
	require.NoError(t, err)

	t.Run("participant gets the starting balance", func(t *testing.T) {
		joined, acct, err := svc.JoinRoom(ctx, room.JoinCode, "erin", "")
		require.NoError(t, err)
		assert.Equal(t, room.ID, joined.ID)
		assert.Equal(t, domain.RoleParticipant, acct.Role)
		assert.Equal(t, room.StartingBalance, acct.Balance)
	})

	t.Run("spectator joins with zero balance", func(t *testing.T) {
		_, acct, err := svc.JoinRoom(ctx, room.JoinCode, "frank", domain.RoleSpectator)
		require.NoError(t, err)
		assert.Zero(t, acct.Balance)
	})

	t.Run("unknown code is not found", func(t *testing.T) {
		_, _, err := svc.JoinRoom(ctx, "NOSUCH", "gabe", "")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("nobody joins as admin", func(t *testing.T) {
		_, _, err := svc.JoinRoom(ctx, room.JoinCode, "harper", domain.RoleAdmin)
		require.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewRoomService(f.db, testLogger())

	// Nudge scores apart.
	err := f.db.Do(ctx, func(st domain.Stores) error {
		a := f.alice
		a.ReputationScore = 1400
		if err := st.Accounts.Update(ctx, a); err != nil {
			return err
		}
		b := f.bob
		b.ReputationScore = 800
		return st.Accounts.Update(ctx, b)
	})
	require.NoError(t, err)

	board, err := svc.Leaderboard(ctx, f.room.ID, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, board, 4)
	assert.Equal(t, f.alice.ID, board[0].ID)
	assert.Equal(t, f.bob.ID, board[len(board)-1].ID)
}
