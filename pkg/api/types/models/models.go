// Package models is payload of model registry endpoints.
package models

import (
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/utils/rfctime"
)

type TrainingWindow struct {
	From rfctime.RFC3339 `json:"from"`
	To   rfctime.RFC3339 `json:"to"`
}

type Detail struct {
	VersionId       string          `json:"version_id"`
	Status          string          `json:"status"`
	TrainedAt       rfctime.RFC3339 `json:"trained_at"`
	TrainingWindow  TrainingWindow  `json:"training_window"`
	RowCount        int             `json:"row_count"`
	Hyperparameters map[string]any  `json:"hyperparameters"`
	Metrics         domain.Metrics  `json:"metrics"`
	FeatureNames    []string        `json:"feature_names"`
	ArtifactRef     string          `json:"artifact_ref"`
	Reason          string          `json:"reason,omitempty"`
	StatusChangedAt rfctime.RFC3339 `json:"status_changed_at"`
}

func ComposeDetail(mv domain.ModelVersion) Detail {
	hp := mv.Hyperparameters
	if hp == nil {
		hp = map[string]any{}
	}
	fn := mv.FeatureNames
	if fn == nil {
		fn = []string{}
	}
	return Detail{
		VersionId: mv.VersionId,
		Status:    mv.Status.String(),
		TrainedAt: rfctime.RFC3339(mv.TrainedAt),
		TrainingWindow: TrainingWindow{
			From: rfctime.RFC3339(mv.TrainingWindow.From),
			To:   rfctime.RFC3339(mv.TrainingWindow.To),
		},
		RowCount:        mv.RowCount,
		Hyperparameters: hp,
		Metrics:         mv.Metrics,
		FeatureNames:    fn,
		ArtifactRef:     mv.ArtifactRef,
		Reason:          mv.Reason,
		StatusChangedAt: rfctime.RFC3339(mv.StatusChangedAt),
	}
}

// Activation requests the version to be active (rollback).
type Activation struct {
	VersionId string `json:"version_id"`
}
