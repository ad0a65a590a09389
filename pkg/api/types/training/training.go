// Package training is payload of the training endpoint.
package training

import (
	apimodels "github.com/opst/ripen/pkg/api/types/models"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/utils/rfctime"
)

type Request struct {
	// train with labels resolved until this. Omit to use now.
	AsOf *rfctime.RFC3339 `json:"as_of,omitempty"`
}

type Summary struct {
	Version  apimodels.Detail         `json:"version"`
	Promoted bool                     `json:"promoted"`
	Decision domain.PromotionDecision `json:"decision"`

	ResolvedLabels   int `json:"resolved_count"`
	ResolvedPositive int `json:"resolved_positive_count"`
	DroppedRows      int `json:"dropped_rows"`
}
