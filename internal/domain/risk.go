package domain

// Severity classifies a detected difference against its threshold
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RiskLevel represents the overall risk of an investigation
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// RecommendedAction is the credit decision suggested by the investigation outcome
type RecommendedAction string

const (
	ActionApprove                RecommendedAction = "approve"
	ActionAdjustCredit           RecommendedAction = "adjust_credit"
	ActionAdditionalVerification RecommendedAction = "additional_verification"
	ActionReject                 RecommendedAction = "reject"
)

// OverallStatus is the application level progress state
type OverallStatus string

const (
	OverallStatusPending    OverallStatus = "pending"
	OverallStatusInProgress OverallStatus = "in_progress"
	OverallStatusBlocked    OverallStatus = "blocked"
	OverallStatusCompleted  OverallStatus = "completed"
	OverallStatusFinalized  OverallStatus = "finalized"
)

// CalculateRiskLevel returns the risk level from the summary inputs
func CalculateRiskLevel(hasCritical, negativeCapacity bool, adjustedFields int) RiskLevel {
	switch {
	case hasCritical || negativeCapacity:
		return RiskLevelHigh
	case adjustedFields > 0:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// CalculateAction returns the recommended action in fixed priority order
func CalculateAction(risk RiskLevel, negativeCapacity bool, blockedFields int) RecommendedAction {
	switch {
	case risk == RiskLevelHigh && negativeCapacity:
		return ActionReject
	case risk == RiskLevelHigh:
		return ActionAdjustCredit
	case blockedFields > 0:
		return ActionAdditionalVerification
	default:
		return ActionApprove
	}
}
