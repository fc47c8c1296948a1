package prediction

// ScoreConfig holds the fixed policy constants for outcome scoring. Values
// are set at construction time and never vary per call.
type ScoreConfig struct {
	// SuccessThreshold is the absolute prediction error below which a
	// resolved prediction counts as a success.
	SuccessThreshold float64
	// MinPredictions is the minimum resolved sample size before metrics are
	// computed for a firm or firm/ticker group.
	MinPredictions int
	// HorizonDays is the distance from snapshot date to target date.
	HorizonDays int
}

// DefaultScoreConfig returns the production policy constants.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		SuccessThreshold: 0.10,
		MinPredictions:   5,
		HorizonDays:      365,
	}
}

// Composite score weights. The blend is success rate, directional accuracy,
// and inverse average absolute error.
const (
	weightSuccessRate         = 0.4
	weightDirectionalAccuracy = 0.3
	weightInverseError        = 0.3
)

// PredictedReturn computes the return implied by a price target relative to
// the price at capture time. Returns 0 when the target is absent or the
// current price is zero.
func PredictedReturn(target *float64, current float64) float64 {
	if target == nil || current == 0 {
		return 0
	}
	return (*target - current) / current
}

// ActualReturn computes the realized return relative to the price at capture
// time. Returns 0 when the current price is zero.
func ActualReturn(actual, current float64) float64 {
	if current == 0 {
		return 0
	}
	return (actual - current) / current
}

// DirectionallyCorrect reports whether predicted and actual returns share a
// sign. Both exactly zero counts as correct.
func DirectionallyCorrect(predicted, actual float64) bool {
	switch {
	case predicted > 0 && actual > 0:
		return true
	case predicted < 0 && actual < 0:
		return true
	default:
		return predicted == 0 && actual == 0
	}
}

// CompositeScore blends success rate, directional accuracy, and inverse
// average absolute error into a single 0-1 metric, clamped to [0, 1].
func CompositeScore(successRate, directionalAccuracy, avgAbsoluteError float64) float64 {
	score := weightSuccessRate*successRate +
		weightDirectionalAccuracy*directionalAccuracy +
		weightInverseError*(1-avgAbsoluteError)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
