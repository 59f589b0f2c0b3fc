package fraud

// Risk thresholds on the count of attempts a user made before the current
// one. Inclusive lower bounds, checked most severe first.
const (
	criticalThreshold = 10
	highThreshold     = 5
	mediumThreshold   = 3
)

// EvaluateRisk maps a user's prior attempt count to a risk level.
// Pure and total: every non-negative count maps to exactly one level.
func EvaluateRisk(priorCount int) RiskLevel {
	switch {
	case priorCount >= criticalThreshold:
		return RiskCritical
	case priorCount >= highThreshold:
		return RiskHigh
	case priorCount >= mediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}
