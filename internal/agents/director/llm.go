package director

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"TradeFloor/internal/domain/models"
	"TradeFloor/internal/ratelimit"
	"TradeFloor/pkg/config"
	xhttp "TradeFloor/pkg/http"
)

// ErrDecisionProvider marks an LLM call or response failure. The director
// handles it by falling back to the deterministic strategy; callers of the
// director never see it.
var ErrDecisionProvider = errors.New("director: decision provider failed")

// LLMStrategy renders decisions through an external chat-completion
// provider. The prompt embeds the signal and its context and instructs the
// model to answer in JSON matching the Decision contract.
type LLMStrategy struct {
	client  *xhttp.Client
	baseURL string
	model   string
	apiKey  string
	limiter *ratelimit.Limiter
	perMin  float64
}

// NewLLMStrategy creates the LLM-assisted strategy.
func NewLLMStrategy(cfg config.LLMConfig) *LLMStrategy {
	perMin := float64(cfg.RequestsPerMinute)
	if perMin <= 0 {
		perMin = 30
	}
	return &LLMStrategy{
		client:  xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		limiter: ratelimit.New(),
		perMin:  perMin,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (s *LLMStrategy) Decide(ctx context.Context, sig *models.ApprovedSignal, dctx *DecisionContext) (*Decision, error) {
	if !s.limiter.Allow("decision", s.perMin, s.perMin/60) {
		return nil, fmt.Errorf("%w: rate limited", ErrDecisionProvider)
	}

	prompt := s.buildPrompt(sig, dctx)

	var resp chatResponse
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    s.baseURL + "/chat/completions",
		Headers: map[string]string{
			"Authorization": "Bearer " + s.apiKey,
			"Content-Type":  "application/json",
		},
		Body: chatRequest{
			Model:    s.model,
			Messages: []chatMessage{{Role: "user", Content: prompt}},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecisionProvider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrDecisionProvider)
	}

	decision, err := parseDecision(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// buildPrompt renders the structured decision prompt.
func (s *LLMStrategy) buildPrompt(sig *models.ApprovedSignal, dctx *DecisionContext) string {
	var b strings.Builder
	b.WriteString("You are the final approver on a trading desk. Evaluate this signal.\n\n")
	fmt.Fprintf(&b, "Ticker: %s\n", sig.Ticker)
	fmt.Fprintf(&b, "Action: %s\n", sig.Action)
	fmt.Fprintf(&b, "Sector: %s\n", sig.Sector)
	fmt.Fprintf(&b, "Signal Score: %.0f\n", sig.Score)
	fmt.Fprintf(&b, "Validation Confidence: %.2f\n", sig.ValidationConfidence)
	fmt.Fprintf(&b, "Sector Risk: %.1f/100\n", sig.SectorRisk)
	fmt.Fprintf(&b, "Portfolio Risk: %.1f/100\n", dctx.PortfolioRisk)
	fmt.Fprintf(&b, "Portfolio Value: %.2f with %d open positions\n",
		dctx.Portfolio.TotalValue, len(dctx.Portfolio.Positions))
	fmt.Fprintf(&b, "Market Regime: %s\n", dctx.Regime)
	if sentiment, ok := meanValue(dctx.News); ok {
		fmt.Fprintf(&b, "News Sentiment: %.2f\n", sentiment)
	}
	b.WriteString("\nRespond in JSON with exactly these fields: ")
	b.WriteString(`{"approved": bool, "confidence": number 0-100, "reasoning": string}`)
	return b.String()
}

// parseDecision tolerates models that wrap the JSON object in code fences
// or surrounding prose.
func parseDecision(content string) (*Decision, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrDecisionProvider)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecisionProvider, err)
	}
	for _, key := range []string{"approved", "confidence", "reasoning"} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: response missing %q", ErrDecisionProvider, key)
		}
	}

	var d Decision
	if err := json.Unmarshal([]byte(content[start:end+1]), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecisionProvider, err)
	}
	if d.Confidence < 0 || d.Confidence > 100 {
		return nil, fmt.Errorf("%w: confidence %.1f out of range", ErrDecisionProvider, d.Confidence)
	}
	return &d, nil
}
