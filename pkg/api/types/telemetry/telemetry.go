// Package telemetry is payload of telemetry endpoints.
package telemetry

import (
	"fmt"
	"time"

	"github.com/opst/ripen/pkg/domain"
)

// Reading is a telemetry row.
//
// Entity is identified by "entity_id". "patient_id" is accepted as an alias of it.
// Timestamp is Unix seconds.
type Reading struct {
	EntityId  *int64 `json:"entity_id,omitempty"`
	PatientId *int64 `json:"patient_id,omitempty"`
	Timestamp *int64 `json:"timestamp"`

	LeadImpedanceOhms *float64 `json:"lead_impedance_ohms"`
	CaptureThresholdV *float64 `json:"capture_threshold_v"`
	RWaveSensingMv    *float64 `json:"r_wave_sensing_mv"`
	BatteryVoltageV   *float64 `json:"battery_voltage_v"`

	LeadImpedanceOhmsRollingMean3d *float64 `json:"lead_impedance_ohms_rolling_mean_3d,omitempty"`
	LeadImpedanceOhmsRollingMean7d *float64 `json:"lead_impedance_ohms_rolling_mean_7d,omitempty"`
	CaptureThresholdVRollingMean3d *float64 `json:"capture_threshold_v_rolling_mean_3d,omitempty"`
	CaptureThresholdVRollingMean7d *float64 `json:"capture_threshold_v_rolling_mean_7d,omitempty"`
	LeadImpedanceOhmsDeltaPerDay3d *float64 `json:"lead_impedance_ohms_delta_per_day_3d,omitempty"`
	LeadImpedanceOhmsDeltaPerDay7d *float64 `json:"lead_impedance_ohms_delta_per_day_7d,omitempty"`
	CaptureThresholdVDeltaPerDay3d *float64 `json:"capture_threshold_v_delta_per_day_3d,omitempty"`
	CaptureThresholdVDeltaPerDay7d *float64 `json:"capture_threshold_v_delta_per_day_7d,omitempty"`

	// Label supplied with the reading. It is trusted only on the simulated path.
	Label *int `json:"label,omitempty"`
}

func (r Reading) entityId() (int64, []string) {
	switch {
	case r.EntityId != nil && r.PatientId != nil:
		if *r.EntityId != *r.PatientId {
			return 0, []string{"entity_id and patient_id disagree"}
		}
		return *r.EntityId, nil
	case r.EntityId != nil:
		return *r.EntityId, nil
	case r.PatientId != nil:
		return *r.PatientId, nil
	default:
		return 0, []string{"entity_id (or patient_id) is required"}
	}
}

// Domain converts the payload to a domain.Reading.
//
// It returns reasons why the payload is malformed. Empty if it can be converted.
// Validation of values is up to domain.Reading.Validate.
func (r Reading) Domain() (domain.Reading, []string) {
	entityId, reasons := r.entityId()

	required := func(name string, v *float64) float64 {
		if v == nil {
			reasons = append(reasons, fmt.Sprintf("%s is required", name))
			return 0
		}
		return *v
	}

	var ts time.Time
	if r.Timestamp == nil {
		reasons = append(reasons, "timestamp is required")
	} else {
		ts = time.Unix(*r.Timestamp, 0).UTC()
	}

	reading := domain.Reading{
		EntityId:  entityId,
		Timestamp: ts,
		Measurements: domain.Measurements{
			LeadImpedanceOhms: required("lead_impedance_ohms", r.LeadImpedanceOhms),
			CaptureThresholdV: required("capture_threshold_v", r.CaptureThresholdV),
			RWaveSensingMv:    required("r_wave_sensing_mv", r.RWaveSensingMv),
			BatteryVoltageV:   required("battery_voltage_v", r.BatteryVoltageV),
		},
		Derived: domain.Derived{
			LeadImpedanceOhmsRollingMean3d: r.LeadImpedanceOhmsRollingMean3d,
			LeadImpedanceOhmsRollingMean7d: r.LeadImpedanceOhmsRollingMean7d,
			CaptureThresholdVRollingMean3d: r.CaptureThresholdVRollingMean3d,
			CaptureThresholdVRollingMean7d: r.CaptureThresholdVRollingMean7d,
			LeadImpedanceOhmsDeltaPerDay3d: r.LeadImpedanceOhmsDeltaPerDay3d,
			LeadImpedanceOhmsDeltaPerDay7d: r.LeadImpedanceOhmsDeltaPerDay7d,
			CaptureThresholdVDeltaPerDay3d: r.CaptureThresholdVDeltaPerDay3d,
			CaptureThresholdVDeltaPerDay7d: r.CaptureThresholdVDeltaPerDay7d,
		},
		SuppliedLabel: r.Label,
		Label:         domain.Unresolved(),
	}
	return reading, reasons
}

// AsDomain converts a batch.
//
// If any reading is malformed, error is *domain.SchemaViolationError reporting all of them.
func AsDomain(batch []Reading) ([]domain.Reading, error) {
	readings := make([]domain.Reading, 0, len(batch))
	violations := []domain.Violation{}
	for i, r := range batch {
		reading, reasons := r.Domain()
		for _, reason := range reasons {
			violations = append(violations, domain.Violation{Index: i, Reason: reason})
		}
		readings = append(readings, reading)
	}
	if len(violations) != 0 {
		return nil, &domain.SchemaViolationError{Violations: violations}
	}
	return readings, nil
}

// Compose a payload from a domain.Reading.
func Compose(r domain.Reading) Reading {
	entityId := r.EntityId
	ts := r.Timestamp.Unix()
	m := r.Measurements
	d := r.Derived
	return Reading{
		EntityId:  &entityId,
		Timestamp: &ts,

		LeadImpedanceOhms: &m.LeadImpedanceOhms,
		CaptureThresholdV: &m.CaptureThresholdV,
		RWaveSensingMv:    &m.RWaveSensingMv,
		BatteryVoltageV:   &m.BatteryVoltageV,

		LeadImpedanceOhmsRollingMean3d: d.LeadImpedanceOhmsRollingMean3d,
		LeadImpedanceOhmsRollingMean7d: d.LeadImpedanceOhmsRollingMean7d,
		CaptureThresholdVRollingMean3d: d.CaptureThresholdVRollingMean3d,
		CaptureThresholdVRollingMean7d: d.CaptureThresholdVRollingMean7d,
		LeadImpedanceOhmsDeltaPerDay3d: d.LeadImpedanceOhmsDeltaPerDay3d,
		LeadImpedanceOhmsDeltaPerDay7d: d.LeadImpedanceOhmsDeltaPerDay7d,
		CaptureThresholdVDeltaPerDay3d: d.CaptureThresholdVDeltaPerDay3d,
		CaptureThresholdVDeltaPerDay7d: d.CaptureThresholdVDeltaPerDay7d,

		Label: r.SuppliedLabel,
	}
}

type IngestResult struct {
	Received          int `json:"received_count"`
	Inserted          int `json:"inserted_count"`
	DuplicateInBatch  int `json:"duplicate_in_payload_count"`
	DuplicateExisting int `json:"duplicate_existing_count"`
}

type Status struct {
	Total      int64 `json:"total_count"`
	Unresolved int64 `json:"unresolved_count"`
	Resolved   int64 `json:"resolved_count"`
	Positive   int64 `json:"positive_count"`

	// how long readings wait for outcome events
	MaturityWindowSeconds int64 `json:"maturity_window_seconds"`
}

func ComposeStatus(c domain.TelemetryCounts, window time.Duration) Status {
	return Status{
		Total:                 c.Total,
		Unresolved:            c.Unresolved,
		Resolved:              c.Resolved,
		Positive:              c.Positive,
		MaturityWindowSeconds: int64(window / time.Second),
	}
}
