package models

import (
	"encoding/json"
	"fmt"
)

// Metric is the semantic name of a job's ranking score
type Metric string

const (
	MetricIPTMPTM Metric = "iptm+ptm" // Combined interface confidence for complexes
	MetricPLDDT   Metric = "plddt"    // Mean per-residue confidence for single chains
)

// ParseMetric validates a metric key found in a checkpoint document
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricIPTMPTM, MetricPLDDT:
		return Metric(s), nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

const orderKey = "order"

// RunningSummary is the in-progress checkpoint: scores of completed slots only
type RunningSummary struct {
	Metric Metric
	Scores map[string]float64
}

// NewRunningSummary creates an empty running summary for a metric
func NewRunningSummary(metric Metric) *RunningSummary {
	return &RunningSummary{Metric: metric, Scores: make(map[string]float64)}
}

// MarshalJSON encodes the summary as {"<metric>": {slot: score}}
func (s RunningSummary) MarshalJSON() ([]byte, error) {
	scores := s.Scores
	if scores == nil {
		scores = map[string]float64{}
	}
	return json.Marshal(map[string]interface{}{string(s.Metric): scores})
}

// UnmarshalJSON decodes a running summary with exactly one metric key
func (s *RunningSummary) UnmarshalJSON(data []byte) error {
	metric, scores, _, err := decodeSummary(data)
	if err != nil {
		return err
	}
	s.Metric = metric
	s.Scores = scores
	return nil
}

// FinalSummary is the terminal checkpoint: all scores plus the rank order
type FinalSummary struct {
	Metric Metric
	Scores map[string]float64
	Order  []string
}

// MarshalJSON encodes the summary as {"<metric>": {slot: score}, "order": [...]}
func (s FinalSummary) MarshalJSON() ([]byte, error) {
	scores := s.Scores
	if scores == nil {
		scores = map[string]float64{}
	}
	order := s.Order
	if order == nil {
		order = []string{}
	}
	return json.Marshal(map[string]interface{}{
		string(s.Metric): scores,
		orderKey:         order,
	})
}

// UnmarshalJSON decodes a final summary; the order field is required
func (s *FinalSummary) UnmarshalJSON(data []byte) error {
	metric, scores, order, err := decodeSummary(data)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("final summary has no %q field", orderKey)
	}
	s.Metric = metric
	s.Scores = scores
	s.Order = order
	return nil
}

func decodeSummary(data []byte) (Metric, map[string]float64, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", nil, nil, err
	}

	var order []string
	if rawOrder, ok := raw[orderKey]; ok {
		if err := json.Unmarshal(rawOrder, &order); err != nil {
			return "", nil, nil, fmt.Errorf("decode order: %w", err)
		}
		if order == nil {
			order = []string{}
		}
		delete(raw, orderKey)
	}

	if len(raw) != 1 {
		return "", nil, nil, fmt.Errorf("summary must carry exactly one metric, found %d", len(raw))
	}

	for key, value := range raw {
		metric, err := ParseMetric(key)
		if err != nil {
			return "", nil, nil, err
		}
		scores := make(map[string]float64)
		if err := json.Unmarshal(value, &scores); err != nil {
			return "", nil, nil, fmt.Errorf("decode %s scores: %w", key, err)
		}
		return metric, scores, order, nil
	}
	return "", nil, nil, fmt.Errorf("summary has no metric")
}
