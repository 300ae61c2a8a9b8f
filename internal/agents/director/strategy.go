package director

import (
	"context"
	"fmt"

	"TradeFloor/internal/domain/models"
	"TradeFloor/internal/market"
	"TradeFloor/internal/risk"
	"TradeFloor/pkg/substrate"
)

// Decision is the contract both strategies share: callers never see which
// one produced it.
type Decision struct {
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence"` // 0-100
	Reasoning  string  `json:"reasoning"`
}

// DecisionContext is the gathered state a strategy decides against.
type DecisionContext struct {
	Portfolio     risk.Snapshot
	Regime        string
	PortfolioRisk float64 // 0-100
	News          []substrate.Point
}

// Strategy renders an approve/reject decision for one approved signal.
type Strategy interface {
	Decide(ctx context.Context, sig *models.ApprovedSignal, dctx *DecisionContext) (*Decision, error)
}

// RuleStrategy is the deterministic decision path. It is both a standalone
// strategy and the fallback behind the LLM path.
type RuleStrategy struct {
	ConfidenceThreshold float64
}

// NewRuleStrategy creates the deterministic strategy.
func NewRuleStrategy(threshold float64) *RuleStrategy {
	return &RuleStrategy{ConfidenceThreshold: threshold}
}

// Decide scores the signal against its context. The score dominates; sector
// and portfolio risk each claim a smaller share, and regime and news
// sentiment nudge the total.
func (s *RuleStrategy) Decide(_ context.Context, sig *models.ApprovedSignal, dctx *DecisionContext) (*Decision, error) {
	confidence := sig.Score*0.7 + (100-sig.SectorRisk)*0.15 + (100-dctx.PortfolioRisk)*0.15

	switch dctx.Regime {
	case market.RegimeVolatile:
		confidence -= 10
	case market.RegimeBear:
		confidence -= 5
	case market.RegimeBull:
		confidence += 3
	}

	if sentiment, ok := meanValue(dctx.News); ok {
		if sentiment > 0.3 {
			confidence += 3
		} else if sentiment < -0.3 {
			confidence -= 3
		}
	}

	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}

	approved := confidence >= s.ConfidenceThreshold
	verdict := "approve"
	if !approved {
		verdict = "reject"
	}
	reasoning := fmt.Sprintf(
		"%s %s %s: score %.1f, sector risk %.1f, portfolio risk %.1f, regime %s, confidence %.1f vs threshold %.1f",
		verdict, string(sig.Action), sig.Ticker,
		sig.Score, sig.SectorRisk, dctx.PortfolioRisk, dctx.Regime,
		confidence, s.ConfidenceThreshold,
	)

	return &Decision{Approved: approved, Confidence: confidence, Reasoning: reasoning}, nil
}

func meanValue(points []substrate.Point) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points)), true
}
