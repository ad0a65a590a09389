package domain

import (
	"fmt"
	"math"
	"time"
)

// ReadingKey identifies a Reading. It is unique in the telemetry store.
//
// Timestamp is held as unix seconds, so keys are comparable regardless of time zones.
type ReadingKey struct {
	EntityId int64
	Unix     int64
}

func (k ReadingKey) Time() time.Time {
	return time.Unix(k.Unix, 0).UTC()
}

func (k ReadingKey) String() string {
	return fmt.Sprintf("%d@%d", k.EntityId, k.Unix)
}

// Measurements are required numeric fields of a Reading.
type Measurements struct {
	LeadImpedanceOhms float64
	CaptureThresholdV float64
	RWaveSensingMv    float64
	BatteryVoltageV   float64
}

// Derived are precomputed rolling/trend features.
//
// They are missing (nil) at the start of a series, where there is not enough history.
type Derived struct {
	LeadImpedanceOhmsRollingMean3d *float64
	LeadImpedanceOhmsRollingMean7d *float64
	CaptureThresholdVRollingMean3d *float64
	CaptureThresholdVRollingMean7d *float64
	LeadImpedanceOhmsDeltaPerDay3d *float64
	LeadImpedanceOhmsDeltaPerDay7d *float64
	CaptureThresholdVDeltaPerDay3d *float64
	CaptureThresholdVDeltaPerDay7d *float64
}

// Complete reports whether all derived features are present.
func (d Derived) Complete() bool {
	for _, v := range d.values() {
		if v == nil {
			return false
		}
	}
	return true
}

func (d Derived) values() []*float64 {
	return []*float64{
		d.LeadImpedanceOhmsRollingMean3d,
		d.LeadImpedanceOhmsRollingMean7d,
		d.CaptureThresholdVRollingMean3d,
		d.CaptureThresholdVRollingMean7d,
		d.LeadImpedanceOhmsDeltaPerDay3d,
		d.LeadImpedanceOhmsDeltaPerDay7d,
		d.CaptureThresholdVDeltaPerDay3d,
		d.CaptureThresholdVDeltaPerDay7d,
	}
}

// Names of features, in the order of Reading.Features.
//
// Identifier columns (entity id, timestamp) and the label are not features.
var FeatureNames = []string{
	"lead_impedance_ohms",
	"capture_threshold_v",
	"r_wave_sensing_mv",
	"battery_voltage_v",
	"lead_impedance_ohms_rolling_mean_3d",
	"lead_impedance_ohms_rolling_mean_7d",
	"capture_threshold_v_rolling_mean_3d",
	"capture_threshold_v_rolling_mean_7d",
	"lead_impedance_ohms_delta_per_day_3d",
	"lead_impedance_ohms_delta_per_day_7d",
	"capture_threshold_v_delta_per_day_3d",
	"capture_threshold_v_delta_per_day_7d",
}

// Columns which are stored with readings but never used as features.
var ExcludedColumns = []string{"entity_id", "timestamp"}

// Reading is one telemetry sample of an entity.
type Reading struct {
	EntityId     int64
	Timestamp    time.Time
	Measurements Measurements
	Derived      Derived

	// label supplied by the sender. It is trusted only on the simulated path.
	SuppliedLabel *int

	Label LabelStatus
}

func (r Reading) Key() ReadingKey {
	return ReadingKey{EntityId: r.EntityId, Unix: r.Timestamp.Unix()}
}

// Features returns feature vector in the order of FeatureNames.
//
// The second value is false if any derived feature is missing.
func (r Reading) Features() ([]float64, bool) {
	m := r.Measurements
	x := []float64{
		m.LeadImpedanceOhms, m.CaptureThresholdV, m.RWaveSensingMv, m.BatteryVoltageV,
	}
	for _, v := range r.Derived.values() {
		if v == nil {
			return nil, false
		}
		x = append(x, *v)
	}
	return x, true
}

// Validate checks a Reading as an ingestion input.
//
// It returns reasons why the reading is malformed. Empty if it is valid.
func (r Reading) Validate() []string {
	reasons := []string{}
	if r.EntityId < 0 {
		reasons = append(reasons, "entity id should be non-negative")
	}
	if r.Timestamp.Unix() < 0 {
		reasons = append(reasons, "timestamp should be non-negative unix time")
	}
	m := r.Measurements
	for i, v := range []float64{
		m.LeadImpedanceOhms, m.CaptureThresholdV, m.RWaveSensingMv, m.BatteryVoltageV,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			reasons = append(reasons, fmt.Sprintf("%s should be finite", FeatureNames[i]))
		}
	}
	for i, v := range r.Derived.values() {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			reasons = append(reasons, fmt.Sprintf("%s should be finite", FeatureNames[4+i]))
		}
	}
	if l := r.SuppliedLabel; l != nil && *l != 0 && *l != 1 {
		reasons = append(reasons, "label should be 0 or 1")
	}
	return reasons
}

type LabelState string

const (
	LabelUnresolved LabelState = "unresolved"
	LabelResolved   LabelState = "resolved"
)

func (s LabelState) String() string {
	return string(s)
}

type LabelSource string

const (
	// label generated together with simulated telemetry
	SimulatedOutcome LabelSource = "simulated_outcome"

	// label derived from outcome events or expiry of maturity window
	ObservedOutcome LabelSource = "observed_outcome"
)

func (s LabelSource) String() string {
	return string(s)
}

// LabelStatus is a supervised label of a Reading.
//
// Value, ResolvedAt and Source are meaningful only when State is LabelResolved.
type LabelStatus struct {
	State      LabelState
	Value      int
	ResolvedAt time.Time
	Source     LabelSource
}

func Unresolved() LabelStatus {
	return LabelStatus{State: LabelUnresolved}
}

func (l LabelStatus) Resolved() bool {
	return l.State == LabelResolved
}

// Resolution is a decision to resolve the label of the reading.
type Resolution struct {
	Key   ReadingKey
	Label LabelStatus
}

// EntityTimeline is a snapshot of an entity: its unresolved readings and its outcome events.
type EntityTimeline struct {
	EntityId   int64
	Unresolved []Reading
	Events     []OutcomeEvent
}

// EntityCursor points the entity processed at last.
type EntityCursor struct {
	// entity id processed at last. Next entity is searched after this.
	Head int64

	// whether Head is meaningful.
	Started bool
}

// TelemetryCounts are numbers of readings by label state.
type TelemetryCounts struct {
	Total      int64
	Unresolved int64
	Resolved   int64
	Positive   int64
}
