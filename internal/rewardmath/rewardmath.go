// Package rewardmath normalizes heterogeneous reward encodings (flat
// cashback percentage vs. points with a unit value) into one comparable
// effective percentage and monetary estimate.
package rewardmath

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	RewardTypeCashback = "CASHBACK"
	RewardTypePoints   = "POINTS"
	RewardTypeMiles    = "MILES"
	RewardTypeUnknown  = "UNKNOWN"

	// DefaultPointValue is the rupee value assumed for one reward point
	// when the rule does not state one.
	DefaultPointValue = 0.25

	ModePercentage     = "PERCENTAGE"
	ModePointsPerRupee = "POINTS_PER_RUPEE"
)

// RuleMetrics is the structured view of a rule. The semicolon-delimited
// content text is only a serialization detail at the storage boundary.
type RuleMetrics struct {
	CardName            string
	Category            string
	RewardType          string
	RewardRate          float64
	PointsPerUnit       *float64
	SpendUnit           *float64
	PointValue          float64
	EffectivePercentage float64
	Conditions          string
}

var (
	reRewardType   = regexp.MustCompile(`(?i)reward_type\s*=\s*([A-Za-z_]+)`)
	reRewardRate   = regexp.MustCompile(`(?i)reward_rate\s*=\s*([0-9]+(?:\.[0-9]+)?)`)
	reEffectivePct = regexp.MustCompile(`(?i)effective_reward_percentage\s*=\s*([0-9]+(?:\.[0-9]+)?)`)
	rePointsUnit   = regexp.MustCompile(`(?i)points_per_unit\s*=\s*([0-9]+(?:\.[0-9]+)?)`)
	reSpendUnit    = regexp.MustCompile(`(?i)spend_unit\s*=\s*([0-9]+(?:\.[0-9]+)?)`)
	rePointValue   = regexp.MustCompile(`(?i)point_value_rupees\s*=\s*([0-9]+(?:\.[0-9]+)?)`)
	reCardName     = regexp.MustCompile(`(?i)card_name\s*=\s*([^;]+)`)
	reCategory     = regexp.MustCompile(`(?i)category\s*=\s*([^;]+)`)
	reConditions   = regexp.MustCompile(`(?i)conditions\s*=\s*([^;]+)`)
	reBareNumber   = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
)

func extract(re *regexp.Regexp, text string) (string, bool) {
	match := re.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return strings.TrimSpace(match[1]), true
}

func extractFloat(re *regexp.Regexp, text string) (float64, bool) {
	raw, ok := extract(re, text)
	if !ok {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ParseContentText decodes the semicolon key=value encoding of a rule and
// computes the normalized effective percentage. The computation must stay
// bit-reproducible: same input text, same output metrics.
func ParseContentText(contentText, fallbackCardName string) RuleMetrics {
	metrics := RuleMetrics{
		RewardType: RewardTypeUnknown,
		PointValue: DefaultPointValue,
	}
	if name, ok := extract(reCardName, contentText); ok {
		metrics.CardName = name
	} else {
		metrics.CardName = fallbackCardName
	}
	if category, ok := extract(reCategory, contentText); ok {
		metrics.Category = category
	}
	if conditions, ok := extract(reConditions, contentText); ok {
		metrics.Conditions = conditions
	}
	if rewardType, ok := extract(reRewardType, contentText); ok {
		metrics.RewardType = strings.ToUpper(rewardType)
	}
	rewardRate, hasRate := extractFloat(reRewardRate, contentText)
	metrics.RewardRate = rewardRate
	if ppu, ok := extractFloat(rePointsUnit, contentText); ok {
		metrics.PointsPerUnit = &ppu
	}
	if unit, ok := extractFloat(reSpendUnit, contentText); ok {
		metrics.SpendUnit = &unit
	}
	if pv, ok := extractFloat(rePointValue, contentText); ok {
		metrics.PointValue = pv
	}

	if pct, ok := extractFloat(reEffectivePct, contentText); ok {
		metrics.EffectivePercentage = pct
		return metrics
	}
	switch {
	case metrics.RewardType == RewardTypeCashback && hasRate:
		metrics.EffectivePercentage = rewardRate
	case metrics.RewardType == RewardTypePoints &&
		metrics.PointsPerUnit != nil && metrics.SpendUnit != nil && *metrics.SpendUnit > 0:
		metrics.EffectivePercentage = *metrics.PointsPerUnit * metrics.PointValue / *metrics.SpendUnit * 100
	case hasRate:
		metrics.EffectivePercentage = rewardRate
	default:
		// No structured numeric field parsed; fall back to the first bare
		// number in the text.
		if raw := reBareNumber.FindString(contentText); raw != "" {
			if value, err := strconv.ParseFloat(raw, 64); err == nil {
				metrics.EffectivePercentage = value
			}
		}
	}
	return metrics
}

// EstimatedValue keeps full precision; round only at the response boundary
// so comparisons between rules do not compound rounding error.
func (m RuleMetrics) EstimatedValue(spend float64) float64 {
	if spend <= 0 {
		return 0
	}
	return spend * m.EffectivePercentage / 100
}

// RawPointsEarned returns the point count a points rule would yield for
// the spend, or nil for non-points rules.
func (m RuleMetrics) RawPointsEarned(spend float64) *float64 {
	if m.RewardType != RewardTypePoints || m.PointsPerUnit == nil || m.SpendUnit == nil || *m.SpendUnit <= 0 {
		return nil
	}
	points := spend / *m.SpendUnit * *m.PointsPerUnit
	return &points
}

// CalculateReward is the agent tool formula: PERCENTAGE treats rate as a
// percent of spend, POINTS_PER_RUPEE treats it as points earned per rupee.
// The result is rounded to 2 decimals since it is externally exposed.
func CalculateReward(spendAmount, rewardRate, pointValue float64, rewardMode string) float64 {
	spend := math.Max(0, spendAmount)
	rate := math.Max(0, rewardRate)
	valuePerPoint := pointValue
	if valuePerPoint <= 0 {
		valuePerPoint = DefaultPointValue
	}
	if strings.ToUpper(strings.TrimSpace(rewardMode)) == ModePointsPerRupee {
		return Round2(spend * rate * valuePerPoint)
	}
	return Round2(spend * rate / 100)
}

// Round2 rounds to 2 decimals for external exposure.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// Encode serializes metrics back into the storage wire format.
func Encode(m RuleMetrics) string {
	cardName := m.CardName
	if cardName == "" {
		cardName = "unknown"
	}
	category := m.Category
	if category == "" {
		category = "general"
	}
	rewardType := m.RewardType
	if rewardType == "" {
		rewardType = RewardTypeUnknown
	}
	conditions := m.Conditions
	if conditions == "" {
		conditions = "none"
	}
	conditions = strings.ReplaceAll(conditions, ";", ",")
	return fmt.Sprintf(
		"card_name=%s;category=%s;reward_type=%s;reward_rate=%s;points_per_unit=%s;spend_unit=%s;point_value_rupees=%s;effective_reward_percentage=%s;conditions=%s",
		cardName,
		category,
		rewardType,
		formatFloat(m.RewardRate),
		formatOptional(m.PointsPerUnit),
		formatOptional(m.SpendUnit),
		formatFloat(m.PointValue),
		formatFloat(Round2(m.EffectivePercentage)),
		conditions,
	)
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func formatOptional(value *float64) string {
	if value == nil {
		return "null"
	}
	return formatFloat(*value)
}
