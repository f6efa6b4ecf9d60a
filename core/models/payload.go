package models

import (
	"encoding/json"
	"fmt"
)

// ResultPayload holds the fields of a raw prediction result that ranking
// depends on. The rest of the document is kept opaque.
type ResultPayload struct {
	RankingConfidence *float64  `json:"ranking_confidence,omitempty"`
	IPTM              *float64  `json:"iptm,omitempty"`
	PTM               *float64  `json:"ptm,omitempty"`
	PLDDT             []float64 `json:"plddt,omitempty"`
}

// ScoreFromPayload derives the ranking metric and score from a raw result.
// Results carrying iptm are ranked by iptm+ptm, all others by mean pLDDT.
func ScoreFromPayload(payload []byte) (Metric, float64, error) {
	var p ResultPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", 0, fmt.Errorf("decode result payload: %w", err)
	}

	if p.IPTM != nil {
		if p.RankingConfidence != nil {
			return MetricIPTMPTM, *p.RankingConfidence, nil
		}
		if p.PTM == nil {
			return "", 0, fmt.Errorf("result payload has iptm but no ptm")
		}
		return MetricIPTMPTM, 0.8*(*p.IPTM) + 0.2*(*p.PTM), nil
	}

	if p.RankingConfidence != nil {
		return MetricPLDDT, *p.RankingConfidence, nil
	}
	if len(p.PLDDT) == 0 {
		return "", 0, fmt.Errorf("result payload has neither iptm nor plddt")
	}
	var sum float64
	for _, v := range p.PLDDT {
		sum += v
	}
	return MetricPLDDT, sum / float64(len(p.PLDDT)), nil
}
