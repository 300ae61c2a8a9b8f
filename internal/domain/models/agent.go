package models

// Tier is one of the four hierarchy levels, numbered top-down.
type Tier int

const (
	TierDirector   Tier = 1
	TierSectorHead Tier = 2
	TierTeamLead   Tier = 3
	TierScanner    Tier = 4
)

func (t Tier) String() string {
	switch t {
	case TierDirector:
		return "director"
	case TierSectorHead:
		return "sector_head"
	case TierTeamLead:
		return "team_lead"
	case TierScanner:
		return "scanner"
	default:
		return "unknown"
	}
}

// AgentCounters is a point-in-time snapshot of one unit's throughput.
type AgentCounters struct {
	SignalsGenerated int64 `json:"signals_generated,omitempty"`
	SignalsProcessed int64 `json:"signals_processed"`
	SignalsApproved  int64 `json:"signals_approved"`
	SignalsRejected  int64 `json:"signals_rejected"`
}

// AgentRecord describes one unit of the hierarchy: its identity, assigned
// scope (tickers for scanners, subordinate ids otherwise), and liveness.
type AgentRecord struct {
	ID       string        `json:"id"`
	Tier     Tier          `json:"tier"`
	Scope    []string      `json:"scope"`
	Running  bool          `json:"running"`
	Counters AgentCounters `json:"counters"`
}
