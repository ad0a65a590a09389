package domain

import "math"

// Label of the positive class in classification reports.
const PositiveClass = "1"

// Label of the negative class in classification reports.
const NegativeClass = "0"

type ClassReport struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

type CrossValidation struct {
	Scores []float64 `json:"scores"`
	Mean   float64   `json:"mean"`
	Std    float64   `json:"std"`
}

type DatasetSummary struct {
	TrainRows         int     `json:"train_rows"`
	TestRows          int     `json:"test_rows"`
	Features          int     `json:"n_features"`
	PositiveRateTrain float64 `json:"positive_rate_train"`
}

// Metrics of a trained model. They are plain data, to be persisted and compared.
type Metrics struct {
	// score by the classifier's own validation mechanism (e.g. out-of-bag accuracy)
	SelfEvaluation  float64                `json:"self_evaluation"`
	CrossValidation CrossValidation        `json:"cross_validation"`
	HeldOutAccuracy float64                `json:"test_accuracy"`
	Report          map[string]ClassReport `json:"classification_report"`
	MacroAvg        ClassReport            `json:"macro_avg"`
	WeightedAvg     ClassReport            `json:"weighted_avg"`
	Dataset         DatasetSummary         `json:"dataset"`
}

// Positive returns the report of the positive class.
//
// If it is not reported, zero value is returned.
func (m Metrics) Positive() ClassReport {
	return m.Report[PositiveClass]
}

// Rounded returns copy of Metrics with numbers rounded to 4 decimals.
func (m Metrics) Rounded() Metrics {
	r := m
	r.SelfEvaluation = Round4(m.SelfEvaluation)
	r.HeldOutAccuracy = Round4(m.HeldOutAccuracy)
	r.CrossValidation = CrossValidation{
		Scores: make([]float64, len(m.CrossValidation.Scores)),
		Mean:   Round4(m.CrossValidation.Mean),
		Std:    Round4(m.CrossValidation.Std),
	}
	for i, s := range m.CrossValidation.Scores {
		r.CrossValidation.Scores[i] = Round4(s)
	}
	r.Report = make(map[string]ClassReport, len(m.Report))
	for k, v := range m.Report {
		r.Report[k] = v.rounded()
	}
	r.MacroAvg = m.MacroAvg.rounded()
	r.WeightedAvg = m.WeightedAvg.rounded()
	r.Dataset.PositiveRateTrain = Round4(m.Dataset.PositiveRateTrain)
	return r
}

func (c ClassReport) rounded() ClassReport {
	return ClassReport{
		Precision: Round4(c.Precision),
		Recall:    Round4(c.Recall),
		F1:        Round4(c.F1),
		Support:   c.Support,
	}
}

func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
