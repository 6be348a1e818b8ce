package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

type stubProphetService struct {
	gotRoomID uuid.UUID
	markets   []domain.Market
	err       error
}

func (s *stubProphetService) GenerateMarkets(_ context.Context, roomID uuid.UUID) ([]domain.Market, error) {
	s.gotRoomID = roomID
	if s.err != nil {
		return nil, s.err
	}
	return s.markets, nil
}

func TestGenerateMarkets(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	newRequest := func(id string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/"+id+"/prophet/markets", nil)
		req.SetPathValue("id", id)
		return req
	}

	t.Run("creates markets for the room", func(t *testing.T) {
		roomID := uuid.New()
		stub := &stubProphetService{markets: []domain.Market{{ID: uuid.New(), RoomID: roomID}}}
		h := NewProphetHandler(stub, logger)

		rec := httptest.NewRecorder()
		h.GenerateMarkets(rec, newRequest(roomID.String()))

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, roomID, stub.gotRoomID)

		var body struct {
			Markets []domain.Market `json:"markets"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.Markets, 1)
		assert.Equal(t, roomID, body.Markets[0].RoomID)
	})

	t.Run("rejects a malformed room id", func(t *testing.T) {
		h := NewProphetHandler(&stubProphetService{}, logger)

		rec := httptest.NewRecorder()
		h.GenerateMarkets(rec, newRequest("not-a-uuid"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps a missing room to 404", func(t *testing.T) {
		h := NewProphetHandler(&stubProphetService{err: domain.ErrNotFound}, logger)

		rec := httptest.NewRecorder()
		h.GenerateMarkets(rec, newRequest(uuid.NewString()))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
