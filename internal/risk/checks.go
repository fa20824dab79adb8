package risk

import (
	"fmt"
	"strings"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

var severityWeight = map[models.Severity]int{
	models.SeverityLow:    1,
	models.SeverityMedium: 2,
	models.SeverityHigh:   4,
}

type findings struct {
	issues          []models.RiskIssue
	recommendations []string
	maxAllowed      *float64
}

func (f *findings) add(cat models.RiskCategory, sev models.Severity, format string, args ...any) {
	f.issues = append(f.issues, models.RiskIssue{
		Category: cat,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (f *findings) recommend(r string) {
	f.recommendations = append(f.recommendations, r)
}

// assess runs every check; none of them stops the others.
func assess(cfg models.StrategyConfig, l Limits) *models.RiskAssessment {
	f := &findings{}
	checkPositionSize(cfg, l, f)
	checkPriceRange(cfg, l, f)
	checkGridConfiguration(cfg, l, f)
	checkStopLoss(cfg, l, f)
	checkNetworkCosts(cfg, l, f)

	a := &models.RiskAssessment{
		Issues:           f.issues,
		Recommendations:  f.recommendations,
		MaxAllowedAmount: f.maxAllowed,
	}
	if a.Issues == nil {
		a.Issues = []models.RiskIssue{}
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	a.RiskLevel = levelFor(a.Issues)
	a.IsApproved = !a.HasCritical()
	return a
}

func checkPositionSize(cfg models.StrategyConfig, l Limits, f *findings) {
	flagged := false
	if cfg.BaseAmount > l.MaxAbsolutePosition {
		f.add(models.CategoryPositionSize, models.SeverityCritical,
			"base amount %.2f exceeds the absolute position limit %.2f", cfg.BaseAmount, l.MaxAbsolutePosition)
		flagged = true
	}
	if cfg.MaxPositionRatio > l.MaxPositionRatio {
		f.add(models.CategoryPositionSize, models.SeverityHigh,
			"max position ratio %.2f is above the allowed %.2f", cfg.MaxPositionRatio, l.MaxPositionRatio)
		f.recommend(fmt.Sprintf("Lower the max position ratio to %.2f or less", l.MaxPositionRatio))
	}
	if cfg.GridCount > 0 && cfg.BaseAmount > 0 && cfg.BaseAmount <= l.MaxAbsolutePosition &&
		cfg.BaseAmount*float64(cfg.GridCount) > l.MaxAbsolutePosition {
		f.add(models.CategoryPositionSize, models.SeverityMedium,
			"total grid exposure %.2f exceeds the absolute position limit %.2f",
			cfg.BaseAmount*float64(cfg.GridCount), l.MaxAbsolutePosition)
		flagged = true
	}
	if flagged {
		count := max(cfg.GridCount, 1)
		allowed := l.MaxAbsolutePosition / float64(count)
		f.maxAllowed = &allowed
		f.recommend(fmt.Sprintf("Reduce the base amount to %.2f or less", allowed))
	}
}

func checkPriceRange(cfg models.StrategyConfig, l Limits, f *findings) {
	if cfg.LowerPrice <= 0 || cfg.UpperPrice <= cfg.LowerPrice {
		f.add(models.CategoryConfiguration, models.SeverityCritical,
			"price range %.8f-%.8f is not a valid band", cfg.LowerPrice, cfg.UpperPrice)
		return
	}
	widthPct := (cfg.UpperPrice - cfg.LowerPrice) / cfg.LowerPrice * 100
	switch {
	case widthPct > l.WideRangePercent:
		f.add(models.CategoryPriceRange, models.SeverityHigh,
			"price range is %.1f%% wide, above %.0f%%", widthPct, l.WideRangePercent)
		f.recommend("Narrow the price range so capital is not spread over unlikely levels")
	case widthPct > l.ModerateRangePercent:
		f.add(models.CategoryPriceRange, models.SeverityMedium,
			"price range is %.1f%% wide, above %.0f%%", widthPct, l.ModerateRangePercent)
	}

	if cfg.GridCount > 0 {
		spacingPct := widthPct / float64(cfg.GridCount)
		if spacingPct < l.MinGridSpacingPercent {
			f.add(models.CategoryPriceRange, models.SeverityMedium,
				"grid spacing %.4f%% is below %.2f%% and will trade very frequently", spacingPct, l.MinGridSpacingPercent)
			f.recommend("Use fewer grid levels or a wider range to reduce trade frequency and fees")
		}
	}
}

func checkGridConfiguration(cfg models.StrategyConfig, l Limits, f *findings) {
	switch {
	case cfg.GridCount < 2:
		f.add(models.CategoryConfiguration, models.SeverityCritical, "grid count %d is below 2", cfg.GridCount)
	case cfg.GridCount > l.ExtremeGridCount:
		f.add(models.CategoryConfiguration, models.SeverityHigh,
			"grid count %d is above %d; order management load will be heavy", cfg.GridCount, l.ExtremeGridCount)
	case cfg.GridCount > l.HighGridCount:
		f.add(models.CategoryConfiguration, models.SeverityMedium,
			"grid count %d is above %d and may affect performance", cfg.GridCount, l.HighGridCount)
	}
}

func checkStopLoss(cfg models.StrategyConfig, l Limits, f *findings) {
	if cfg.StopLoss == nil {
		f.recommend("Set a stop-loss below the lower price to cap losses")
		return
	}
	if cfg.LowerPrice <= 0 {
		return
	}
	bufferPct := (cfg.LowerPrice - *cfg.StopLoss) / cfg.LowerPrice * 100
	if bufferPct < l.MinStopLossBufferPercent {
		f.add(models.CategoryStopLoss, models.SeverityMedium,
			"stop-loss is only %.2f%% below the lower price (minimum %.1f%%)", bufferPct, l.MinStopLossBufferPercent)
		f.recommend("Move the stop-loss further below the lower price to avoid stops on normal volatility")
	}
}

func checkNetworkCosts(cfg models.StrategyConfig, l Limits, f *findings) {
	gas := l.NetworkGasCostUSD[strings.ToLower(cfg.Network)]
	if gas <= 0 || cfg.BaseAmount <= 0 {
		return
	}
	pct := gas / cfg.BaseAmount * 100
	switch {
	case pct > l.GasCostHighPercent:
		f.add(models.CategoryMarketConditions, models.SeverityHigh,
			"estimated gas %.2f USD is %.1f%% of each order on %s", gas, pct, cfg.Network)
	case pct > l.GasCostWarnPercent:
		f.add(models.CategoryMarketConditions, models.SeverityMedium,
			"estimated gas %.2f USD is %.1f%% of each order on %s", gas, pct, cfg.Network)
	default:
		return
	}
	f.recommend("Account for gas costs: raise the order size or use a cheaper network")
}

func drawdownIssue(s *models.GridStrategy, l Limits) *models.RiskIssue {
	exposure := s.BaseAmount * float64(s.GridCount)
	if s.TotalProfit >= 0 || exposure <= 0 {
		return nil
	}
	lossPct := -s.TotalProfit / exposure * 100
	if lossPct <= l.DrawdownWarnPercent {
		return nil
	}
	return &models.RiskIssue{
		Category: models.CategoryPerformance,
		Severity: models.SeverityHigh,
		Message:  fmt.Sprintf("realized loss is %.1f%% of grid exposure", lossPct),
	}
}

// levelFor maps issues to a level. More or more severe issues never lower the level.
func levelFor(issues []models.RiskIssue) models.RiskLevel {
	score := 0
	for _, i := range issues {
		if i.Severity == models.SeverityCritical {
			return models.RiskVeryHigh
		}
		score += severityWeight[i.Severity]
	}
	switch {
	case score == 0:
		return models.RiskVeryLow
	case score <= 2:
		return models.RiskLow
	case score <= 5:
		return models.RiskMedium
	case score <= 9:
		return models.RiskHigh
	default:
		return models.RiskVeryHigh
	}
}
