package orchestrator

import (
	"TradeFloor/internal/agents/director"
	"TradeFloor/internal/agents/scanner"
	"TradeFloor/internal/agents/sectorhead"
	"TradeFloor/internal/agents/teamlead"
	"TradeFloor/internal/domain/models"
	"TradeFloor/internal/market"
	"TradeFloor/internal/risk"
	"TradeFloor/pkg/config"
	"TradeFloor/pkg/logger"
	"TradeFloor/pkg/metrics"
	"TradeFloor/pkg/substrate"
)

// Build assembles the full hierarchy from configuration: scanner pool over
// the ticker universe, team leads over scanners, sector heads over team
// leads, and the director over the sector heads. The returned orchestrator
// holds units leaf-first.
func Build(
	cfg *config.Config,
	broker substrate.MessageBroker,
	ts substrate.TimeSeriesStore,
	portfolio *risk.PortfolioState,
	provider market.Provider,
	strategy director.Strategy,
	egress director.Egress,
	rec *metrics.Recorder,
	lgr *logger.Logger,
) *Orchestrator {
	sectors := models.DefaultSectors()
	universe := cfg.Pipeline.Tickers
	if len(universe) == 0 {
		universe = models.UniverseFromSectors(sectors)
	}
	index := models.BuildSectorIndex(sectors)

	p := cfg.Pipeline
	units := make([]Unit, 0, p.Scanners+p.TeamLeads+p.SectorHeads+1)

	scannerIDs := make([]string, p.Scanners)
	for i, tickers := range Assign(universe, p.Scanners) {
		id := unitID("scanner", i)
		scannerIDs[i] = id
		units = append(units, scanner.New(scanner.Config{
			ID:            id,
			Tickers:       tickers,
			LightInterval: p.LightInterval,
			DeepInterval:  p.DeepInterval,
			PriceFloor:    p.PriceFloor,
			MoveThreshold: p.MoveThreshold,
		}, provider, broker, lgr))
	}

	leadIDs := make([]string, p.TeamLeads)
	for i, scanners := range Assign(scannerIDs, p.TeamLeads) {
		id := unitID("team_lead", i)
		leadIDs[i] = id
		units = append(units, teamlead.New(teamlead.Config{
			ID:               id,
			Scanners:         scanners,
			ScoreThreshold:   p.ScoreThreshold,
			ReliabilityFloor: p.ReliabilityFloor,
			ConsensusFloor:   p.ConsensusFloor,
			ConsumeBatch:     p.ConsumeBatch,
			ConsumeBlock:     p.ConsumeBlock,
		}, broker, ts, lgr))
	}

	headIDs := make([]string, p.SectorHeads)
	for i, leads := range Assign(leadIDs, p.SectorHeads) {
		id := unitID("sector_head", i)
		headIDs[i] = id
		units = append(units, sectorhead.New(sectorhead.Config{
			ID:               id,
			TeamLeads:        leads,
			ProposedFraction: cfg.Director.MaxPositionFraction,
			ConsumeBatch:     p.ConsumeBatch,
			ConsumeBlock:     p.ConsumeBlock,
		}, index, broker, portfolio, provider, lgr))
	}

	dir := director.New(director.Config{
		ID:                  "director_1",
		SectorHeads:         headIDs,
		ConfidenceThreshold: cfg.Director.ConfidenceThreshold,
		MaxPositionFraction: cfg.Director.MaxPositionFraction,
		DecisionLogSize:     cfg.Director.DecisionLogSize,
		ConsumeBatch:        p.ConsumeBatch,
		ConsumeBlock:        p.ConsumeBlock,
	}, strategy, broker, ts, portfolio, provider, egress, lgr)
	units = append(units, dir)

	o := New(units, Options{
		HealthInterval: cfg.Health.Interval,
		RestartRetries: cfg.Health.RestartRetries,
		DrainTimeout:   cfg.Health.DrainTimeout,
	}, broker, rec, lgr)
	o.dir = dir
	return o
}
