package models

// DefaultExposureLimit is the fraction of portfolio value one sector may hold.
const DefaultExposureLimit = 0.30

// SectorDefinition names a sector, its member tickers, and its exposure cap.
type SectorDefinition struct {
	Name          string   `json:"name"`
	Tickers       []string `json:"tickers"`
	ExposureLimit float64  `json:"exposure_limit"`
}

// DefaultSectors returns the ten fixed sector definitions. A ticker belongs
// to at most one sector; tickers outside every sector are rejected at the
// sector-head gate.
func DefaultSectors() []SectorDefinition {
	return []SectorDefinition{
		{Name: "technology", ExposureLimit: DefaultExposureLimit, Tickers: []string{
			"AAPL", "MSFT", "NVDA", "AVGO", "ORCL", "CRM", "AMD", "ADBE", "INTC",
			"CSCO", "QCOM", "TXN", "NOW", "IBM", "MU", "PLTR", "SNOW",
		}},
		{Name: "healthcare", ExposureLimit: DefaultExposureLimit, Tickers: []string{
			"LLY", "UNH", "JNJ", "ABBV", "MRK", "TMO", "ABT", "AMGN", "PFE",
			"DHR", "ISRG", "BMY", "VRTX", "GILD", "CVS", "MDT", "REGN",
		}},
		{Name: "financials", ExposureLimit: DefaultExposureLimit, Tickers: []string{
			"JPM", "BAC", "WFC", "GS", "MS", "BLK", "SCHW", "AXP", "C",
			"V", "MA", "SPGI", "PGR", "CB", "COF", "USB", "PNC",
		}},
		{Name: "energy", ExposureLimit: DefaultExposureLimit, Tickers: []string{
			"XOM", "CVX", "COP", "SLB", "EOG", "MPC", "PSX", "VLO", "OXY",
			"WMB", "KMI", "HAL", "DVN", "HES", "BKR", "FANG", "OKE",
		}},
		{Name: "consumer_discretionary", ExposureLimit: DefaultExposureLimit, Tickers: []string{
			"AMZN", "TSLA", "HD", "MCD", "NKE", "LOW", "SBUX", "TJX", "BKNG",
			"CMG", "MAR", "GM", "F", "ROST", "YUM", "DHI", "LEN",
		}},
		{Name: "consumer_staples", ExposureLimit: DefaultExposureLimit, Tickers: []string{
			"PG", "KO", "PEP", "COST", "WMT", "PM", "MO", "MDLZ", "CL",
			"TGT", "KMB", "GIS", "SYY", "STZ", "KHC", "HSY", "KR",
		}},
		{Name: "industrials", ExposureLimit: DefaultExposureLimit, Tickers: []string{
			"CAT", "GE", "RTX", "HON", "UNP", "BA", "DE", "LMT", "UPS",
			"ADP", "ETN", "MMM", "CSX", "NOC", "FDX", "EMR", "GD",
		}},
		{Name: "utilities", ExposureLimit: DefaultExposureLimit, Tickers: []string{
			"NEE", "SO", "DUK", "CEG", "SRE", "AEP", "D", "PCG", "EXC",
			"XEL", "ED", "PEG", "WEC", "AWK", "DTE", "ES", "AEE",
		}},
		{Name: "materials", ExposureLimit: DefaultExposureLimit, Tickers: []string{
			"LIN", "APD", "SHW", "FCX", "ECL", "NEM", "DOW", "DD", "PPG",
			"NUE", "VMC", "MLM", "ALB", "CTVA", "IP", "CF", "MOS",
		}},
		{Name: "communications", ExposureLimit: DefaultExposureLimit, Tickers: []string{
			"GOOGL", "META", "NFLX", "DIS", "CMCSA", "T", "VZ", "TMUS", "CHTR",
			"EA", "TTWO", "WBD", "OMC", "LYV", "MTCH", "PINS", "SNAP",
		}},
	}
}

// SectorIndex maps each ticker to its sector definition for O(1) lookup.
type SectorIndex map[string]*SectorDefinition

// BuildSectorIndex builds a ticker lookup over the given definitions.
func BuildSectorIndex(sectors []SectorDefinition) SectorIndex {
	idx := make(SectorIndex)
	for i := range sectors {
		for _, t := range sectors[i].Tickers {
			idx[t] = &sectors[i]
		}
	}
	return idx
}

// UniverseFromSectors flattens the sector definitions into a ticker universe,
// preserving sector order.
func UniverseFromSectors(sectors []SectorDefinition) []string {
	var universe []string
	for _, s := range sectors {
		universe = append(universe, s.Tickers...)
	}
	return universe
}
