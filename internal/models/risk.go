package models

type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "very_low"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

var riskRank = map[RiskLevel]int{
	RiskVeryLow:  0,
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskVeryHigh: 4,
}

// AtLeast reports whether l is as severe as other or more.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank[l] >= riskRank[other]
}

func (l RiskLevel) Valid() bool {
	_, ok := riskRank[l]
	return ok
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type RiskCategory string

const (
	CategoryPositionSize     RiskCategory = "position_size"
	CategoryPriceRange       RiskCategory = "price_range"
	CategoryConfiguration    RiskCategory = "configuration"
	CategoryStopLoss         RiskCategory = "stop_loss"
	CategoryMarketConditions RiskCategory = "market_conditions"
	CategoryPerformance      RiskCategory = "performance"
)

type RiskIssue struct {
	Category RiskCategory `json:"category"`
	Severity Severity     `json:"severity"`
	Message  string       `json:"message"`
}

type RiskAssessment struct {
	IsApproved       bool        `json:"isApproved"`
	RiskLevel        RiskLevel   `json:"riskLevel"`
	Issues           []RiskIssue `json:"issues"`
	Recommendations  []string    `json:"recommendations"`
	MaxAllowedAmount *float64    `json:"maxAllowedAmount,omitempty"`
}

// HasCritical reports whether any issue blocks approval.
func (a *RiskAssessment) HasCritical() bool {
	for _, i := range a.Issues {
		if i.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
