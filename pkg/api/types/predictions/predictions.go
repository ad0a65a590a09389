// Package predictions is payload of the scoring endpoint.
package predictions

import "github.com/opst/ripen/pkg/predict"

type Score struct {
	EntityId  int64  `json:"entity_id"`
	Timestamp int64  `json:"timestamp"`
	VersionId string `json:"version_id"`

	// probability of the positive class, rounded to 4 decimals
	RiskProbability float64 `json:"risk_probability"`
	Predicted       int     `json:"predicted_label"`
}

func ComposeScore(s predict.Score) Score {
	return Score{
		EntityId:        s.EntityId,
		Timestamp:       s.Timestamp.Unix(),
		VersionId:       s.VersionId,
		RiskProbability: s.RiskProbability,
		Predicted:       s.Predicted,
	}
}
