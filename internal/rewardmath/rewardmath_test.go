package rewardmath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseContentText_Cashback(t *testing.T) {
	text := "card_name=Apex Gold;category=Dining;reward_type=CASHBACK;reward_rate=5;conditions=weekends only"
	m := ParseContentText(text, "Card 7")
	require.Equal(t, "Apex Gold", m.CardName)
	require.Equal(t, RewardTypeCashback, m.RewardType)
	require.Equal(t, 5.0, m.RewardRate)
	require.Equal(t, 5.0, m.EffectivePercentage)
	require.Equal(t, "weekends only", m.Conditions)
}

func TestParseContentText_PointsFormula(t *testing.T) {
	text := "card_name=Voyager;category=Travel;reward_type=POINTS;points_per_unit=20;spend_unit=150"
	m := ParseContentText(text, "")
	require.Equal(t, RewardTypePoints, m.RewardType)
	require.InDelta(t, 20*0.25/150*100, m.EffectivePercentage, 1e-9)
	require.InDelta(t, 3.33, Round2(m.EffectivePercentage), 1e-9)
}

func TestParseContentText_PointsExplicitPointValue(t *testing.T) {
	text := "reward_type=POINTS;points_per_unit=10;spend_unit=100;point_value_rupees=0.5"
	m := ParseContentText(text, "")
	require.InDelta(t, 5.0, m.EffectivePercentage, 1e-9)
}

func TestParseContentText_ExplicitEffectiveWins(t *testing.T) {
	text := "reward_type=CASHBACK;reward_rate=5;effective_reward_percentage=4.5"
	m := ParseContentText(text, "")
	require.Equal(t, 4.5, m.EffectivePercentage)
}

func TestParseContentText_FallbackCardName(t *testing.T) {
	m := ParseContentText("reward_type=CASHBACK;reward_rate=2", "Card 42")
	require.Equal(t, "Card 42", m.CardName)
}

func TestParseContentText_BareNumberFallback(t *testing.T) {
	m := ParseContentText("earn 3 percent back on fuel", "")
	require.Equal(t, 3.0, m.EffectivePercentage)
}

func TestParseContentText_NothingParses(t *testing.T) {
	m := ParseContentText("no numbers here at all", "")
	require.Equal(t, 0.0, m.EffectivePercentage)
	require.Equal(t, RewardTypeUnknown, m.RewardType)
}

func TestEstimatedValue_FullPrecision(t *testing.T) {
	m := ParseContentText("reward_type=POINTS;points_per_unit=20;spend_unit=150", "")
	// 1000 * (10/3) / 100 = 33.333...
	require.InDelta(t, 1000*m.EffectivePercentage/100, m.EstimatedValue(1000), 1e-12)
	require.Equal(t, 33.33, Round2(m.EstimatedValue(1000)))
}

func TestRawPointsEarned(t *testing.T) {
	m := ParseContentText("reward_type=POINTS;points_per_unit=20;spend_unit=150", "")
	points := m.RawPointsEarned(1500)
	require.NotNil(t, points)
	require.InDelta(t, 200.0, *points, 1e-9)

	cashback := ParseContentText("reward_type=CASHBACK;reward_rate=5", "")
	require.Nil(t, cashback.RawPointsEarned(1500))
}

func TestCalculateReward(t *testing.T) {
	require.Equal(t, 50.0, CalculateReward(1000, 5, 0.25, ModePercentage))
	require.Equal(t, 500.0, CalculateReward(1000, 2, 0.25, ModePointsPerRupee))
	require.Equal(t, 0.0, CalculateReward(-100, 5, 0.25, ModePercentage))
	// unknown mode treated as percentage
	require.Equal(t, 50.0, CalculateReward(1000, 5, 0.25, "whatever"))
}

func TestEncodeRoundTrip(t *testing.T) {
	ppu := 20.0
	unit := 150.0
	src := RuleMetrics{
		CardName:      "Voyager",
		Category:      "Travel",
		RewardType:    RewardTypePoints,
		RewardRate:    0,
		PointsPerUnit: &ppu,
		SpendUnit:     &unit,
		PointValue:    0.25,
		Conditions:    "international; excludes fuel",
	}
	src.EffectivePercentage = *src.PointsPerUnit * src.PointValue / *src.SpendUnit * 100

	parsed := ParseContentText(Encode(src), "")
	require.Equal(t, "Voyager", parsed.CardName)
	require.Equal(t, RewardTypePoints, parsed.RewardType)
	require.NotNil(t, parsed.PointsPerUnit)
	require.Equal(t, 20.0, *parsed.PointsPerUnit)
	require.NotNil(t, parsed.SpendUnit)
	require.Equal(t, 150.0, *parsed.SpendUnit)
	// encoded effective percentage is rounded at the boundary
	require.Equal(t, 3.33, parsed.EffectivePercentage)
	// semicolons in conditions are replaced to keep the encoding parseable
	require.NotContains(t, parsed.Conditions, ";")
}
