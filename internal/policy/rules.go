package policy

import (
	"fmt"

	"github.com/park285/cheese-lichess-bot/internal/domain"
)

// DefaultRules returns the acceptance rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "variant", Code: domain.DeclineVariant, Check: checkVariant, Dominant: true},
		{Name: "correspondence", Code: domain.DeclineTimeControl, Check: checkCorrespondence},
		{Name: "speed", Code: domain.DeclineTimeControl, Check: checkSpeed},
		{Name: "rated", Code: domain.DeclineRated, Check: checkRated},
		{Name: "casual", Code: domain.DeclineCasual, Check: checkCasual},
	}
}

func checkVariant(c domain.Challenge, _ *domain.BotProfile) (string, bool) {
	if c.VariantKey == domain.StandardVariant {
		return "", false
	}
	return fmt.Sprintf("wrong variant %q", c.VariantKey), true
}

// Correspondence has no override flag.
func checkCorrespondence(c domain.Challenge, _ *domain.BotProfile) (string, bool) {
	if c.Speed != domain.SpeedCorrespondence {
		return "", false
	}
	return "correspondence not supported", true
}

func checkSpeed(c domain.Challenge, p *domain.BotProfile) (string, bool) {
	pol := p.Policy
	var allowed bool
	switch c.Speed {
	case domain.SpeedCorrespondence:
		return "", false
	case domain.SpeedClassical:
		allowed = pol.EnableClassical
	case domain.SpeedRapid:
		allowed = pol.EnableRapid
	case domain.SpeedBlitz:
		allowed = !pol.DisableBlitz
	case domain.SpeedBullet:
		allowed = !pol.DisableBullet
	case domain.SpeedUltraBullet:
		allowed = pol.EnableUltraBullet
	default:
		return fmt.Sprintf("unknown speed %q", c.Speed), true
	}
	if allowed {
		return "", false
	}
	return fmt.Sprintf("%s not enabled", c.Speed), true
}

func checkRated(c domain.Challenge, p *domain.BotProfile) (string, bool) {
	if !c.Rated || !p.Policy.DisableRated {
		return "", false
	}
	return "rated games disabled", true
}

func checkCasual(c domain.Challenge, p *domain.BotProfile) (string, bool) {
	if c.Rated || p.Policy.EnableCasual {
		return "", false
	}
	return "casual games disabled", true
}
