package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is the trade direction carried by a signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// ScanType records which scan cadence produced a signal.
type ScanType string

const (
	ScanLight ScanType = "light"
	ScanDeep  ScanType = "deep"
)

// RawSignal is a scanner-emitted candidate. Each later tier only appends
// fields on top of the previous variant; nothing upstream is ever mutated,
// so a fully enriched signal is its own audit trail.
type RawSignal struct {
	Ticker      string    `json:"ticker"`
	Action      Action    `json:"action"`
	Score       float64   `json:"score"`
	Confidence  float64   `json:"confidence"`
	SourceAgent string    `json:"source_agent"`
	Timestamp   time.Time `json:"timestamp"`
	ScanType    ScanType  `json:"scan_type"`
	Indicators  []string  `json:"indicators,omitempty"`
}

// ValidatedSignal is a RawSignal that passed a team lead's gates.
type ValidatedSignal struct {
	RawSignal

	ValidatorID          string    `json:"validator_id"`
	ValidatedAt          time.Time `json:"validated_at"`
	SourceReliability    float64   `json:"source_reliability"`
	PeerConsensus        float64   `json:"peer_consensus"`
	ValidationConfidence float64   `json:"validation_confidence"`
}

// ApprovedSignal is a ValidatedSignal that cleared a sector head's risk gates.
type ApprovedSignal struct {
	ValidatedSignal

	ApproverID string    `json:"approver_id"`
	ApprovedAt time.Time `json:"approved_at"`
	Sector     string    `json:"sector"`
	SectorRisk float64   `json:"sector_risk"` // 0-100
}

// ExecutionSignal is the director's final, sized output.
type ExecutionSignal struct {
	ApprovedSignal

	DirectorApproved   bool      `json:"director_approved"`
	DirectorConfidence float64   `json:"director_confidence"` // 0-100
	DirectorReasoning  string    `json:"director_reasoning"`
	PositionSize       float64   `json:"position_size"`
	MaxLoss            float64   `json:"max_loss"`
	DecidedAt          time.Time `json:"decided_at"`
}

// payloadField is the stream entry key holding the serialized signal.
const payloadField = "payload"

// EncodeSignal serializes any signal variant into stream entry values.
// The ticker rides alongside the payload for cheap filtering.
func EncodeSignal(ticker string, v interface{}) (map[string]string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode signal: %w", err)
	}
	return map[string]string{
		"ticker":     ticker,
		payloadField: string(b),
	}, nil
}

func decodePayload(values map[string]string, dest interface{}) error {
	raw, ok := values[payloadField]
	if !ok {
		return fmt.Errorf("decode signal: missing %q field", payloadField)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("decode signal: %w", err)
	}
	return nil
}

// DecodeRawSignal parses a universe-stream entry.
func DecodeRawSignal(values map[string]string) (*RawSignal, error) {
	var s RawSignal
	if err := decodePayload(values, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DecodeValidatedSignal parses a validated-stream entry.
func DecodeValidatedSignal(values map[string]string) (*ValidatedSignal, error) {
	var s ValidatedSignal
	if err := decodePayload(values, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DecodeApprovedSignal parses an approved-stream entry.
func DecodeApprovedSignal(values map[string]string) (*ApprovedSignal, error) {
	var s ApprovedSignal
	if err := decodePayload(values, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
