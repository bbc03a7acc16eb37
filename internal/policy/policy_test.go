package policy

import (
	"testing"

	"github.com/park285/cheese-lichess-bot/internal/domain"
	"github.com/stretchr/testify/require"
)

func permissive() *domain.BotProfile {
	return &domain.BotProfile{
		Name: "cheese-bot",
		Policy: domain.AcceptancePolicy{
			EnableClassical:   true,
			EnableRapid:       true,
			EnableUltraBullet: true,
			EnableCasual:      true,
		},
	}
}

func TestNonStandardVariantDeclined(t *testing.T) {
	speeds := []domain.Speed{domain.SpeedBlitz, domain.SpeedRapid, domain.SpeedCorrespondence, domain.SpeedBullet}
	for _, variant := range []string{"chess960", "atomic", "crazyhouse", ""} {
		for _, sp := range speeds {
			for _, rated := range []bool{true, false} {
				d := Evaluate(domain.Challenge{ID: "c1", VariantKey: variant, Speed: sp, Rated: rated}, permissive())
				require.False(t, d.Accept)
				require.Contains(t, d.Reasons, "wrong variant \""+variant+"\"")
				require.Equal(t, domain.DeclineVariant, d.DeclineCode, "variant=%s speed=%s", variant, sp)
			}
		}
	}
}

func TestCorrespondenceAlwaysDeclined(t *testing.T) {
	d := Evaluate(domain.Challenge{VariantKey: "standard", Speed: domain.SpeedCorrespondence, Rated: true}, permissive())
	require.False(t, d.Accept)
	require.Equal(t, domain.DeclineTimeControl, d.DeclineCode)
	require.Len(t, d.Reasons, 1)
	require.Error(t, d.Err())
}

func TestRapidFlag(t *testing.T) {
	p := permissive()
	p.Policy.EnableRapid = false
	ch := domain.Challenge{VariantKey: "standard", Speed: domain.SpeedRapid, Rated: true}

	d := Evaluate(ch, p)
	require.False(t, d.Accept)
	require.Equal(t, domain.DeclineTimeControl, d.DeclineCode)

	p.Policy.EnableRapid = true
	d = Evaluate(ch, p)
	require.True(t, d.Accept)
	require.Empty(t, d.Reasons)
	require.NoError(t, d.Err())
}

func TestSpeedDefaults(t *testing.T) {
	p := &domain.BotProfile{Policy: domain.AcceptancePolicy{EnableCasual: true}}
	cases := map[domain.Speed]bool{
		domain.SpeedBlitz:       true,
		domain.SpeedBullet:      true,
		domain.SpeedRapid:       false,
		domain.SpeedClassical:   false,
		domain.SpeedUltraBullet: false,
	}
	for sp, want := range cases {
		d := Evaluate(domain.Challenge{VariantKey: "standard", Speed: sp}, p)
		require.Equal(t, want, d.Accept, "speed=%s", sp)
	}

	p.Policy.DisableBlitz = true
	p.Policy.DisableBullet = true
	require.False(t, Evaluate(domain.Challenge{VariantKey: "standard", Speed: domain.SpeedBlitz}, p).Accept)
	require.False(t, Evaluate(domain.Challenge{VariantKey: "standard", Speed: domain.SpeedBullet}, p).Accept)
}

func TestRatedAndCasual(t *testing.T) {
	p := &domain.BotProfile{Policy: domain.AcceptancePolicy{DisableRated: true}}

	d := Evaluate(domain.Challenge{VariantKey: "standard", Speed: domain.SpeedBlitz, Rated: true}, p)
	require.False(t, d.Accept)
	require.Equal(t, domain.DeclineRated, d.DeclineCode)

	d = Evaluate(domain.Challenge{VariantKey: "standard", Speed: domain.SpeedBlitz, Rated: false}, p)
	require.False(t, d.Accept)
	require.Equal(t, domain.DeclineCasual, d.DeclineCode)
}

func TestAllViolationsCollectedLastCodeWins(t *testing.T) {
	p := &domain.BotProfile{}
	d := Evaluate(domain.Challenge{VariantKey: "standard", Speed: domain.SpeedClassical, Rated: false}, p)
	require.False(t, d.Accept)
	require.Len(t, d.Reasons, 2)
	require.Equal(t, domain.DeclineCasual, d.DeclineCode)
	require.Contains(t, d.Err().Error(), "2 errors occurred")

	d = Evaluate(domain.Challenge{VariantKey: "atomic", Speed: domain.SpeedClassical, Rated: false}, p)
	require.Len(t, d.Reasons, 3)
	require.Equal(t, domain.DeclineVariant, d.DeclineCode)
}

func TestCasualBlitzAccepted(t *testing.T) {
	p := &domain.BotProfile{Policy: domain.AcceptancePolicy{EnableCasual: true}}
	d := Evaluate(domain.Challenge{VariantKey: "standard", Speed: domain.SpeedBlitz, Rated: false}, p)
	require.True(t, d.Accept)
}

func TestCustomRuleTable(t *testing.T) {
	deny := Rule{Name: "deny", Code: domain.DeclineGeneric, Check: func(domain.Challenge, *domain.BotProfile) (string, bool) {
		return "no", true
	}}
	e := NewEvaluator(append(DefaultRules(), deny)...)
	d := e.Evaluate(domain.Challenge{VariantKey: "standard", Speed: domain.SpeedBlitz, Rated: true}, permissive())
	require.False(t, d.Accept)
	require.Equal(t, domain.DeclineGeneric, d.DeclineCode)
}
