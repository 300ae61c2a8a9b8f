package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Reservation failure modes, distinguished so callers can report why a
// position could not be opened.
var (
	ErrPositionOpen     = errors.New("risk: position already open")
	ErrInsufficientCash = errors.New("risk: insufficient cash")
	ErrExposureLimit    = errors.New("risk: sector exposure limit")
)

// Position is one open holding.
type Position struct {
	Ticker   string    `json:"ticker"`
	Sector   string    `json:"sector"`
	Value    float64   `json:"value"`
	OpenedAt time.Time `json:"opened_at"`
}

// Snapshot is a consistent point-in-time view of the portfolio.
type Snapshot struct {
	TotalValue     float64            `json:"total_value"`
	CashValue      float64            `json:"cash_value"`
	Positions      []Position         `json:"positions"`
	SectorExposure map[string]float64 `json:"sector_exposure"` // fraction of total value
}

// concentrationThreshold is the single-position share above which the
// portfolio risk score picks up a concentration penalty.
const concentrationThreshold = 0.15

// PortfolioState is the single authoritative accessor for portfolio and
// sector-exposure state. Every read and check-and-apply goes through one
// lock, so two sector heads approving into the same sector concurrently can
// never double-count exposure against independently cached copies.
type PortfolioState struct {
	mu        sync.RWMutex
	cash      float64
	positions map[string]Position // by ticker
}

// NewPortfolioState creates a portfolio holding only cash.
func NewPortfolioState(cash float64) *PortfolioState {
	return &PortfolioState{
		cash:      cash,
		positions: make(map[string]Position),
	}
}

// totalLocked returns total portfolio value. Caller holds mu.
func (p *PortfolioState) totalLocked() float64 {
	total := p.cash
	for _, pos := range p.positions {
		total += pos.Value
	}
	return total
}

// TotalValue returns cash plus open position value.
func (p *PortfolioState) TotalValue() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalLocked()
}

// Snapshot returns a consistent copy of the full state.
func (p *PortfolioState) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := p.totalLocked()
	snap := Snapshot{
		TotalValue:     total,
		CashValue:      p.cash,
		Positions:      make([]Position, 0, len(p.positions)),
		SectorExposure: make(map[string]float64),
	}
	for _, pos := range p.positions {
		snap.Positions = append(snap.Positions, pos)
		if total > 0 {
			snap.SectorExposure[pos.Sector] += pos.Value / total
		}
	}
	return snap
}

// SectorExposure returns the sector's current fraction of portfolio value.
func (p *PortfolioState) SectorExposure(sector string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := p.totalLocked()
	if total <= 0 {
		return 0
	}
	var value float64
	for _, pos := range p.positions {
		if pos.Sector == sector {
			value += pos.Value
		}
	}
	return value / total
}

// SectorPositions returns the number of open positions in the sector.
func (p *PortfolioState) SectorPositions(sector string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, pos := range p.positions {
		if pos.Sector == sector {
			n++
		}
	}
	return n
}

// CheckAndReserve atomically verifies that adding value to the sector keeps
// it within limit and, if so, opens the position. The check and the apply
// share one critical section. Boundary is inclusive: exposureAfter == limit
// passes.
func (p *PortfolioState) CheckAndReserve(ticker, sector string, value, limit float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, open := p.positions[ticker]; open {
		return fmt.Errorf("%w: %s", ErrPositionOpen, ticker)
	}
	if value > p.cash {
		return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, value, p.cash)
	}

	total := p.totalLocked()
	var sectorValue float64
	for _, pos := range p.positions {
		if pos.Sector == sector {
			sectorValue += pos.Value
		}
	}
	exposureAfter := 0.0
	if total > 0 {
		exposureAfter = (sectorValue + value) / total
	}
	if exposureAfter > limit+1e-9 {
		return fmt.Errorf("%w: sector %s exposure %.4f over %.4f", ErrExposureLimit, sector, exposureAfter, limit)
	}

	p.cash -= value
	p.positions[ticker] = Position{
		Ticker:   ticker,
		Sector:   sector,
		Value:    value,
		OpenedAt: time.Now(),
	}
	return nil
}

// ClosePosition removes a position and returns its value to cash.
func (p *PortfolioState) ClosePosition(ticker string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[ticker]
	if !ok {
		return false
	}
	p.cash += pos.Value
	delete(p.positions, ticker)
	return true
}

// PortfolioRisk scores aggregate portfolio risk on a 0-100 scale. An empty
// portfolio scores 0.0. Any single position above 15% of total value adds a
// concentration penalty proportional to its excess share; overall invested
// fraction contributes the base term.
func (p *PortfolioState) PortfolioRisk() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.positions) == 0 {
		return 0.0
	}
	total := p.totalLocked()
	if total <= 0 {
		return 0.0
	}

	var invested, penalty float64
	for _, pos := range p.positions {
		share := pos.Value / total
		invested += share
		if share > concentrationThreshold {
			penalty += (share - concentrationThreshold) * 200
		}
	}

	score := invested*40 + penalty
	if score > 100 {
		score = 100
	}
	return score
}
