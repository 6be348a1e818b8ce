// Package oracle implements the Prophet AI personality on top of an
// OpenAI-compatible chat completion API. OpenRouter is the default gateway.
//
// Only DisputeRuling produces an authoritative answer. The commentary and
// generation calls are flavor; callers swallow their failures.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "anthropic/claude-sonnet-4"

	// callTimeout bounds every completion call regardless of the caller's
	// context so a slow model never stalls a lock holder.
	callTimeout = 30 * time.Second

	// prophetBankroll caps the amount the oracle may commit to a single bet.
	prophetBankroll = 200.0
)

// Config carries the oracle connection settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// Prophet calls a chat completion model and parses its answers into the
// structured types the services consume.
type Prophet struct {
	client      openai.Client
	model       string
	temperature float64
	logger      *slog.Logger
}

var _ domain.Oracle = (*Prophet)(nil)

// New builds a Prophet from config. The API key is required; base URL and
// model fall back to OpenRouter defaults.
func New(cfg Config, logger *slog.Logger) (*Prophet, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("oracle: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.8
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
	)

	return &Prophet{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger.With("component", "oracle"),
	}, nil
}

// DisputeRuling asks the model for a binding yes/no ruling on a market that
// failed to reach supermajority. A ruling outside yes/no is an error; the
// caller falls back to the ballot majority.
func (p *Prophet) DisputeRuling(ctx context.Context, title, description string, yesVotes, noVotes int) (domain.Ruling, error) {
	system := `You are Prophet, the impartial judge for disputed prediction markets.

A market failed to reach a 3/4 supermajority. You must make a binding ruling.

Rules:
- Your ruling must be either YES or NO
- Provide 2-4 sentences of reasoning
- Be fair but also entertaining
- Consider the exact wording of the market title

Respond with ONLY valid JSON:
{"ruling": "yes", "confidence": 0.8, "reasoning": "Clear explanation here"}`

	if description == "" {
		description = "None provided"
	}
	user := fmt.Sprintf("Market: %q\nDescription: %s\nVote distribution: %d YES, %d NO (no supermajority)\n\nMake your ruling:",
		title, description, yesVotes, noVotes)

	raw, err := p.complete(ctx, system, user, 0.3, 300)
	if err != nil {
		return domain.Ruling{}, err
	}

	var ruling domain.Ruling
	if err := json.Unmarshal([]byte(extractJSON(raw)), &ruling); err != nil {
		return domain.Ruling{}, fmt.Errorf("oracle: parse dispute ruling: %w", err)
	}
	if ruling.Ruling != domain.SideYes && ruling.Ruling != domain.SideNo {
		return domain.Ruling{}, fmt.Errorf("oracle: dispute ruling %q is not a side", ruling.Ruling)
	}
	return ruling, nil
}

// TradeCommentary generates a short quip about a freshly placed trade.
func (p *Prophet) TradeCommentary(ctx context.Context, title, trader string, side domain.Side, amount, newOddsYes float64) (string, error) {
	system := `You are Prophet, the snarky AI personality for a prediction market.

Generate witty, playful commentary about trades. Keep it to 1-2 sentences max.
Be slightly roast-y but never mean. Think sports commentator meets group chat instigator.`

	user := fmt.Sprintf("Market: %q\n%s just bet %s with %.0f coins\nNew odds: %.0f%% YES / %.0f%% NO\n\nGenerate short commentary:",
		title, trader, strings.ToUpper(string(side)), amount, newOddsYes*100, (1-newOddsYes)*100)

	return p.complete(ctx, system, user, 0.9, 150)
}

// ResolutionCommentary generates a post-resolution wrap-up.
func (p *Prophet) ResolutionCommentary(ctx context.Context, title string, result domain.Side, tally domain.Tally, winners, losers int) (string, error) {
	system := `You are Prophet, analyzing a resolved prediction market.

Generate entertaining post-resolution commentary. Celebrate winners, roast losers playfully.
1-2 sentences max.`

	user := fmt.Sprintf("Market: %q\nResolved: %s\nVotes: %d YES, %d NO\n%d winners, %d losers\n\nCommentary:",
		title, strings.ToUpper(string(result)), tally.Yes, tally.No, winners, losers)

	return p.complete(ctx, system, user, 0.9, 150)
}

// GenerateMarkets proposes new markets for a room. Ideas with a blank title
// are dropped; out-of-range odds are reset to even.
func (p *Prophet) GenerateMarkets(ctx context.Context, roomName string, members, recentTitles []string) ([]domain.MarketIdea, error) {
	recent := "None yet"
	if len(recentTitles) > 0 {
		recent = strings.Join(recentTitles, ", ")
	}

	system := fmt.Sprintf(`You are Prophet, the AI market maker for a social prediction market called %q.

Your job is to generate 2-3 interesting, fun prediction markets for this friend group.

Guidelines:
- Markets must be resolvable (clear yes/no outcome) within 1-7 days
- Mix categories: personal, sports, pop culture, academic, weather, etc.
- Be playful and provocative but never mean-spirited
- Keep titles under 80 characters
- Avoid duplicating recent markets

Room members: %s
Recent markets: %s

Respond with ONLY a valid JSON array of markets:
[{"title": "Will it snow in NYC this weekend?", "description": "Resolves YES if any measurable snow falls", "category": "weather", "initial_odds_yes": 0.3}]`,
		roomName, strings.Join(members, ", "), recent)

	raw, err := p.complete(ctx, system, "Generate 2-3 new prediction markets for this room.", p.temperature, 800)
	if err != nil {
		return nil, err
	}

	var ideas []domain.MarketIdea
	if err := json.Unmarshal([]byte(extractJSON(raw)), &ideas); err != nil {
		return nil, fmt.Errorf("oracle: parse generated markets: %w", err)
	}

	valid := ideas[:0]
	for _, idea := range ideas {
		idea.Title = strings.TrimSpace(idea.Title)
		if idea.Title == "" {
			continue
		}
		if idea.InitialOddsYes <= 0 || idea.InitialOddsYes >= 1 {
			idea.InitialOddsYes = 0.5
		}
		valid = append(valid, idea)
	}
	return valid, nil
}

// BetDecision asks the model whether Prophet should take a position on a new
// market. Amounts are clamped to the bankroll.
func (p *Prophet) BetDecision(ctx context.Context, title, description string, oddsYes float64) (domain.BetDecision, error) {
	system := fmt.Sprintf(`You are Prophet, deciding whether to bet on a prediction market.

Analyze the market and decide your position. You have %.0f virtual coins to bet.

Respond with ONLY valid JSON:
{"should_bet": true, "side": "yes", "confidence": 0.7, "reasoning": "Brief explanation", "amount": 50}`,
		prophetBankroll)

	if description == "" {
		description = "None"
	}
	user := fmt.Sprintf("Market: %q\nDescription: %s\nCurrent odds: %.0f%% YES\n\nShould you bet?",
		title, description, oddsYes*100)

	raw, err := p.complete(ctx, system, user, 0.7, 200)
	if err != nil {
		return domain.BetDecision{}, err
	}

	var decision domain.BetDecision
	if err := json.Unmarshal([]byte(extractJSON(raw)), &decision); err != nil {
		return domain.BetDecision{}, fmt.Errorf("oracle: parse bet decision: %w", err)
	}
	if !decision.ShouldBet {
		decision.Amount = 0
		return decision, nil
	}
	if decision.Side != domain.SideYes && decision.Side != domain.SideNo {
		return domain.BetDecision{}, fmt.Errorf("oracle: bet decision side %q is not a side", decision.Side)
	}
	if decision.Amount <= 0 {
		decision.ShouldBet = false
		decision.Amount = 0
	} else if decision.Amount > prophetBankroll {
		decision.Amount = prophetBankroll
	}
	return decision, nil
}

func (p *Prophet) complete(ctx context.Context, system, user string, temperature float64, maxTokens int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
	})
	if err != nil {
		p.logger.Warn("completion call failed", "model", p.model, "error", err)
		return "", fmt.Errorf("oracle: completion: %w (%w)", err, domain.ErrOracleUnavailable)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("oracle: completion returned no choices: %w", domain.ErrOracleUnavailable)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("oracle: completion returned empty content: %w", domain.ErrOracleUnavailable)
	}

	p.logger.Debug("completion call finished",
		"model", p.model,
		"duration", time.Since(start),
		"chars", len(content))
	return content, nil
}

var (
	codeFenceOpen  = regexp.MustCompile("^```(?:json)?\\s*\\n")
	codeFenceClose = regexp.MustCompile("\\n```\\s*$")
	jsonArray      = regexp.MustCompile(`(?s)\[.*\]`)
	jsonObject     = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON pulls a JSON array or object out of a model response that may
// be wrapped in markdown fences or surrounded by prose.
func extractJSON(response string) string {
	response = codeFenceOpen.ReplaceAllString(response, "")
	response = codeFenceClose.ReplaceAllString(response, "")

	if m := jsonArray.FindString(response); m != "" {
		return m
	}
	if m := jsonObject.FindString(response); m != "" {
		return m
	}
	return strings.TrimSpace(response)
}
