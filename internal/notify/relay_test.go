package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/alanyoungcy/prophecy/internal/cache/memory"
)

type recordingSender struct {
	mu       sync.Mutex
	titles   []string
	messages []string
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return nil
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormatEvent(t *testing.T) {
	t.Run("market resolved", func(t *testing.T) {
		title, message := formatEvent("market_resolved", map[string]any{
			"title":        "will it rain",
			"result":       "yes",
			"winners":      float64(3),
			"losers":       float64(1),
			"total_payout": 450.0,
		})
		assert.Equal(t, "Market resolved YES", title)
		assert.Contains(t, message, "will it rain")
		assert.Contains(t, message, "3 winners")
		assert.Contains(t, message, "450 coins")
	})

	t.Run("commentary", func(t *testing.T) {
		title, message := formatEvent("prophet_commentary", map[string]any{
			"text": "bold move",
		})
		assert.Equal(t, "Prophet says", title)
		assert.Equal(t, "bold move", message)
	})

	t.Run("unknown event skipped", func(t *testing.T) {
		title, _ := formatEvent("trade_placed", map[string]any{})
		assert.Empty(t, title)
	})

	t.Run("empty commentary skipped", func(t *testing.T) {
		title, _ := formatEvent("prophet_commentary", map[string]any{})
		assert.Empty(t, title)
	})
}

func TestNotifierEventFilter(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier([]Sender{sender}, []string{"market_resolved"}, testLogger())

	require.NoError(t, n.Notify(context.Background(), "prophet_commentary", "Prophet says", "filtered"))
	require.NoError(t, n.Notify(context.Background(), "market_resolved", "Market resolved YES", "kept"))

	require.Equal(t, 1, sender.count())
	assert.Equal(t, "Market resolved YES", sender.titles[0])
}

func TestRelayForwardsResolutionEvents(t *testing.T) {
	bus := cachemem.NewSignalBus()
	sender := &recordingSender{}
	relay := NewRelay(bus, NewNotifier([]Sender{sender}, nil, testLogger()), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = relay.Run(ctx)
		close(done)
	}()

	// Give the subscriptions a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	evt, err := json.Marshal(map[string]any{
		"event":        "market_resolved",
		"title":        "will the relay work",
		"result":       "yes",
		"winners":      2,
		"losers":       0,
		"total_payout": 100.0,
	})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "resolutions", evt))

	require.Eventually(t, func() bool {
		return sender.count() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
