package domain

import "strings"

// Speed is the time-control category reported with a challenge.
type Speed string

const (
	SpeedUltraBullet    Speed = "ultraBullet"
	SpeedBullet         Speed = "bullet"
	SpeedBlitz          Speed = "blitz"
	SpeedRapid          Speed = "rapid"
	SpeedClassical      Speed = "classical"
	SpeedCorrespondence Speed = "correspondence"
)

// ParseSpeed normalises the wire spelling ("ultraBullet", "ultrabullet", "Blitz").
func ParseSpeed(s string) Speed {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ultrabullet":
		return SpeedUltraBullet
	case "bullet":
		return SpeedBullet
	case "blitz":
		return SpeedBlitz
	case "rapid":
		return SpeedRapid
	case "classical":
		return SpeedClassical
	case "correspondence":
		return SpeedCorrespondence
	default:
		return Speed(strings.TrimSpace(s))
	}
}

const StandardVariant = "standard"

// Challenge is an incoming match invitation.
type Challenge struct {
	ID           string
	VariantKey   string
	Speed        Speed
	Rated        bool
	ChallengerID string
}

// DeclineCode is the single reason surfaced to the service when declining.
type DeclineCode string

const (
	DeclineGeneric     DeclineCode = "generic"
	DeclineVariant     DeclineCode = "variant"
	DeclineTimeControl DeclineCode = "timeControl"
	DeclineCasual      DeclineCode = "casual"
	DeclineRated       DeclineCode = "rated"
)

// ChallengeDecision is derived per challenge and never persisted.
type ChallengeDecision struct {
	Accept      bool
	Reasons     []string
	DeclineCode DeclineCode
}
