package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	apitelemetry "github.com/opst/ripen/pkg/api/types/telemetry"
)

// column names in generated datasets, mapped to payload fields.
var columnAliases = map[string]string{
	"Patient_ID":                         "patient_id",
	"Timestamp":                          "timestamp",
	"Lead_Impedance_Ohms":                "lead_impedance_ohms",
	"Capture_Threshold_V":                "capture_threshold_v",
	"R_Wave_Sensing_mV":                  "r_wave_sensing_mv",
	"Battery_Voltage_V":                  "battery_voltage_v",
	"Target_Fail_Next_7d":                "target_fail_next_7d",
	"Lead_Impedance_Ohms_RollingMean_3d": "lead_impedance_ohms_rolling_mean_3d",
	"Lead_Impedance_Ohms_RollingMean_7d": "lead_impedance_ohms_rolling_mean_7d",
	"Capture_Threshold_V_RollingMean_3d": "capture_threshold_v_rolling_mean_3d",
	"Capture_Threshold_V_RollingMean_7d": "capture_threshold_v_rolling_mean_7d",
	"Lead_Impedance_Ohms_DeltaPerDay_3d": "lead_impedance_ohms_delta_per_day_3d",
	"Lead_Impedance_Ohms_DeltaPerDay_7d": "lead_impedance_ohms_delta_per_day_7d",
	"Capture_Threshold_V_DeltaPerDay_3d": "capture_threshold_v_delta_per_day_3d",
	"Capture_Threshold_V_DeltaPerDay_7d": "capture_threshold_v_delta_per_day_7d",
	"entity_id":                          "patient_id",
	"label":                              "target_fail_next_7d",
}

var requiredColumns = []string{
	"patient_id",
	"timestamp",
	"lead_impedance_ohms",
	"capture_threshold_v",
	"r_wave_sensing_mv",
	"battery_voltage_v",
}

var ErrEmptyCSV = errors.New("csv has no rows")

// ReadCSV reads readings from CSV with a header row.
//
// Readings are sorted by (timestamp, entity id). Empty cells of optional columns are left nil.
func ReadCSV(r io.Reader) ([]apitelemetry.Reading, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	} else if err != nil {
		return nil, err
	}
	index := map[string]int{}
	for i, h := range header {
		name := strings.TrimSpace(h)
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		index[name] = i
	}
	missing := []string{}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) != 0 {
		return nil, fmt.Errorf("csv is missing required columns: %s", strings.Join(missing, ", "))
	}

	readings := []apitelemetry.Reading{}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
		reading, err := parseRecord(index, record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		readings = append(readings, reading)
	}
	if len(readings) == 0 {
		return nil, ErrEmptyCSV
	}

	slices.SortStableFunc(readings, func(a, b apitelemetry.Reading) int {
		if c := *a.Timestamp - *b.Timestamp; c != 0 {
			return sign(c)
		}
		return sign(*a.PatientId - *b.PatientId)
	})
	return readings, nil
}

func sign(v int64) int {
	switch {
	case v < 0:
		return -1
	case 0 < v:
		return 1
	}
	return 0
}

func parseRecord(index map[string]int, record []string) (apitelemetry.Reading, error) {
	cell := func(col string) string {
		i, ok := index[col]
		if !ok || len(record) <= i {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var perr error
	integer := func(col string) *int64 {
		c := cell(col)
		if c == "" {
			perr = errors.Join(perr, fmt.Errorf("%s is empty", col))
			return nil
		}
		// integers may be written as "12.0"
		f, err := strconv.ParseFloat(c, 64)
		if err != nil {
			perr = errors.Join(perr, fmt.Errorf("%s: %w", col, err))
			return nil
		}
		v := int64(f)
		return &v
	}
	number := func(col string, required bool) *float64 {
		c := cell(col)
		if c == "" || strings.EqualFold(c, "nan") {
			if required {
				perr = errors.Join(perr, fmt.Errorf("%s is empty", col))
			}
			return nil
		}
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			perr = errors.Join(perr, fmt.Errorf("%s: %w", col, err))
			return nil
		}
		return &v
	}

	reading := apitelemetry.Reading{
		PatientId: integer("patient_id"),
		Timestamp: integer("timestamp"),

		LeadImpedanceOhms: number("lead_impedance_ohms", true),
		CaptureThresholdV: number("capture_threshold_v", true),
		RWaveSensingMv:    number("r_wave_sensing_mv", true),
		BatteryVoltageV:   number("battery_voltage_v", true),

		LeadImpedanceOhmsRollingMean3d: number("lead_impedance_ohms_rolling_mean_3d", false),
		LeadImpedanceOhmsRollingMean7d: number("lead_impedance_ohms_rolling_mean_7d", false),
		CaptureThresholdVRollingMean3d: number("capture_threshold_v_rolling_mean_3d", false),
		CaptureThresholdVRollingMean7d: number("capture_threshold_v_rolling_mean_7d", false),
		LeadImpedanceOhmsDeltaPerDay3d: number("lead_impedance_ohms_delta_per_day_3d", false),
		LeadImpedanceOhmsDeltaPerDay7d: number("lead_impedance_ohms_delta_per_day_7d", false),
		CaptureThresholdVDeltaPerDay3d: number("capture_threshold_v_delta_per_day_3d", false),
		CaptureThresholdVDeltaPerDay7d: number("capture_threshold_v_delta_per_day_7d", false),
	}
	if l := number("target_fail_next_7d", false); l != nil {
		v := int(math.Round(*l))
		reading.Label = &v
	}
	if perr != nil {
		return apitelemetry.Reading{}, perr
	}
	return reading, nil
}

// Batch is a chunk of readings to be sent at once.
type Batch struct {
	// e.g. "2024-01-02" or "2024-01-02 (chunk 1/3)"
	Label    string
	Readings []apitelemetry.Reading
}

// DailyBatches groups sorted readings by UTC day, and splits days having more than maxRows.
func DailyBatches(readings []apitelemetry.Reading, maxRows int) []Batch {
	batches := []Batch{}
	for start := 0; start < len(readings); {
		day := dayOf(readings[start])
		end := start + 1
		for end < len(readings) && dayOf(readings[end]) == day {
			end += 1
		}

		rows := readings[start:end]
		if len(rows) <= maxRows {
			batches = append(batches, Batch{Label: day, Readings: rows})
		} else {
			chunks := (len(rows) + maxRows - 1) / maxRows
			for i := range chunks {
				batches = append(batches, Batch{
					Label:    fmt.Sprintf("%s (chunk %d/%d)", day, i+1, chunks),
					Readings: rows[i*maxRows : min((i+1)*maxRows, len(rows))],
				})
			}
		}
		start = end
	}
	return batches
}

func dayOf(r apitelemetry.Reading) string {
	return time.Unix(*r.Timestamp, 0).UTC().Format(time.DateOnly)
}
