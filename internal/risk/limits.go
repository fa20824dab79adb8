package risk

import (
	"errors"
	"fmt"
	"maps"
)

var ErrInvalidLimits = errors.New("invalid risk limits")

// Limits holds every threshold the evaluator scores against. Percentages are in
// percent units (2 means 2%).
type Limits struct {
	MaxAbsolutePosition float64 `json:"maxAbsolutePosition"`
	MaxPositionRatio    float64 `json:"maxPositionRatio"`

	ModerateRangePercent  float64 `json:"moderateRangePercent"`
	WideRangePercent      float64 `json:"wideRangePercent"`
	MinGridSpacingPercent float64 `json:"minGridSpacingPercent"`

	HighGridCount    int `json:"highGridCount"`
	ExtremeGridCount int `json:"extremeGridCount"`

	MinStopLossBufferPercent float64 `json:"minStopLossBufferPercent"`

	GasCostWarnPercent float64            `json:"gasCostWarnPercent"`
	GasCostHighPercent float64            `json:"gasCostHighPercent"`
	NetworkGasCostUSD  map[string]float64 `json:"networkGasCostUsd"`

	DrawdownWarnPercent float64 `json:"drawdownWarnPercent"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxAbsolutePosition:      10000,
		MaxPositionRatio:         0.8,
		ModerateRangePercent:     50,
		WideRangePercent:         100,
		MinGridSpacingPercent:    0.1,
		HighGridCount:            50,
		ExtremeGridCount:         100,
		MinStopLossBufferPercent: 2,
		GasCostWarnPercent:       2,
		GasCostHighPercent:       10,
		NetworkGasCostUSD: map[string]float64{
			"ethereum": 15,
			"arbitrum": 0.3,
			"optimism": 0.2,
			"base":     0.1,
			"polygon":  0.05,
			"bsc":      0.2,
		},
		DrawdownWarnPercent: 10,
	}
}

func (l Limits) clone() Limits {
	l.NetworkGasCostUSD = maps.Clone(l.NetworkGasCostUSD)
	return l
}

func (l Limits) validate() error {
	if l.MaxPositionRatio <= 0 || l.MaxPositionRatio > 1 {
		return fmt.Errorf("%w: max position ratio %.4f must be in (0, 1]", ErrInvalidLimits, l.MaxPositionRatio)
	}
	if l.MaxAbsolutePosition <= 0 {
		return fmt.Errorf("%w: max absolute position %.2f must be positive", ErrInvalidLimits, l.MaxAbsolutePosition)
	}
	return nil
}

// LimitsUpdate is a partial update; nil fields keep their current value.
type LimitsUpdate struct {
	MaxAbsolutePosition      *float64           `json:"maxAbsolutePosition,omitempty"`
	MaxPositionRatio         *float64           `json:"maxPositionRatio,omitempty"`
	ModerateRangePercent     *float64           `json:"moderateRangePercent,omitempty"`
	WideRangePercent         *float64           `json:"wideRangePercent,omitempty"`
	MinGridSpacingPercent    *float64           `json:"minGridSpacingPercent,omitempty"`
	HighGridCount            *int               `json:"highGridCount,omitempty"`
	ExtremeGridCount         *int               `json:"extremeGridCount,omitempty"`
	MinStopLossBufferPercent *float64           `json:"minStopLossBufferPercent,omitempty"`
	GasCostWarnPercent       *float64           `json:"gasCostWarnPercent,omitempty"`
	GasCostHighPercent       *float64           `json:"gasCostHighPercent,omitempty"`
	NetworkGasCostUSD        map[string]float64 `json:"networkGasCostUsd,omitempty"`
	DrawdownWarnPercent      *float64           `json:"drawdownWarnPercent,omitempty"`
}

func (u LimitsUpdate) apply(l Limits) Limits {
	out := l.clone()
	setF(&out.MaxAbsolutePosition, u.MaxAbsolutePosition)
	setF(&out.MaxPositionRatio, u.MaxPositionRatio)
	setF(&out.ModerateRangePercent, u.ModerateRangePercent)
	setF(&out.WideRangePercent, u.WideRangePercent)
	setF(&out.MinGridSpacingPercent, u.MinGridSpacingPercent)
	setF(&out.MinStopLossBufferPercent, u.MinStopLossBufferPercent)
	setF(&out.GasCostWarnPercent, u.GasCostWarnPercent)
	setF(&out.GasCostHighPercent, u.GasCostHighPercent)
	setF(&out.DrawdownWarnPercent, u.DrawdownWarnPercent)
	if u.HighGridCount != nil {
		out.HighGridCount = *u.HighGridCount
	}
	if u.ExtremeGridCount != nil {
		out.ExtremeGridCount = *u.ExtremeGridCount
	}
	if out.NetworkGasCostUSD == nil && len(u.NetworkGasCostUSD) > 0 {
		out.NetworkGasCostUSD = make(map[string]float64, len(u.NetworkGasCostUSD))
	}
	for k, v := range u.NetworkGasCostUSD {
		out.NetworkGasCostUSD[k] = v
	}
	return out
}

func setF(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
