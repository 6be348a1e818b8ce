package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// relayChannels are the bus channels worth pushing to external chat. Trade
// and vote events stay on the websocket feed only; they are far too chatty
// for Telegram or Discord.
var relayChannels = []string{"resolutions", "commentary"}

// Relay subscribes to the signal bus and forwards selected events to the
// notifier. It is the bridge between in-process pub/sub and external chat.
type Relay struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewRelay creates a Relay.
func NewRelay(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Relay {
	return &Relay{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_relay")),
	}
}

// Run subscribes to the relay channels and blocks until ctx is cancelled.
// Malformed payloads are logged and dropped.
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, channel := range relayChannels {
		g.Go(func() error {
			msgs, err := r.bus.Subscribe(ctx, channel)
			if err != nil {
				return fmt.Errorf("notify: subscribe %s: %w", channel, err)
			}
			r.logger.Info("relay subscribed", slog.String("channel", channel))

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case payload, ok := <-msgs:
					if !ok {
						return nil
					}
					r.forward(ctx, payload)
				}
			}
		})
	}

	return g.Wait()
}

func (r *Relay) forward(ctx context.Context, payload []byte) {
	var evt map[string]any
	if err := json.Unmarshal(payload, &evt); err != nil {
		r.logger.Warn("relay received malformed payload", slog.String("error", err.Error()))
		return
	}

	event, _ := evt["event"].(string)
	title, message := formatEvent(event, evt)
	if title == "" {
		return
	}

	if err := r.notifier.Notify(ctx, event, title, message); err != nil {
		r.logger.Warn("relay delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

// formatEvent renders a bus event as a chat notification. Unknown events
// produce an empty title and are skipped.
func formatEvent(event string, evt map[string]any) (title, message string) {
	marketTitle, _ := evt["title"].(string)

	switch event {
	case "market_resolved":
		result, _ := evt["result"].(string)
		winners := asInt(evt["winners"])
		losers := asInt(evt["losers"])
		payout, _ := evt["total_payout"].(float64)

		title = fmt.Sprintf("Market resolved %s", strings.ToUpper(result))
		message = fmt.Sprintf("%q\n%d winners, %d losers, %.0f coins paid out",
			marketTitle, winners, losers, payout)
		return title, message

	case "prophet_commentary":
		text, _ := evt["text"].(string)
		if text == "" {
			return "", ""
		}
		return "Prophet says", text

	default:
		return "", ""
	}
}

func asInt(v any) int {
	f, _ := v.(float64)
	return int(f)
}
