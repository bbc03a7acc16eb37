// Package policy decides whether an incoming challenge is accepted.
//
// The decision is a fold over an ordered rule table. Every rule runs; the
// decision collects each violated rule's reason and reports the code of the
// last violated rule, unless a dominant rule (the variant check) failed first.
package policy

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/park285/cheese-lichess-bot/internal/domain"
)

// Rule is one independent acceptance predicate.
type Rule struct {
	Name string
	Code domain.DeclineCode
	// Dominant rules pin the decline code; later violations still add reasons.
	Dominant bool
	// Check returns a human-readable reason when the challenge violates the rule.
	Check func(c domain.Challenge, p *domain.BotProfile) (string, bool)
}

// Violation is the error form of a failed rule.
type Violation struct {
	Rule   string
	Code   domain.DeclineCode
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Reason)
}

// Decision wraps the derived domain decision with its aggregated violations.
type Decision struct {
	domain.ChallengeDecision
	violations *multierror.Error
}

// Err returns every violation as one error, or nil when accepted.
func (d Decision) Err() error {
	return d.violations.ErrorOrNil()
}

// Evaluator folds a rule table into a decision.
type Evaluator struct {
	rules []Rule
}

func NewEvaluator(rules ...Rule) *Evaluator {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Evaluator{rules: append([]Rule(nil), rules...)}
}

// Evaluate is pure; it performs no network call.
func (e *Evaluator) Evaluate(c domain.Challenge, p *domain.BotProfile) Decision {
	if p == nil {
		p = &domain.BotProfile{}
	}
	d := Decision{ChallengeDecision: domain.ChallengeDecision{Accept: true}}
	pinned := false
	for _, r := range e.rules {
		reason, violated := r.Check(c, p)
		if !violated {
			continue
		}
		d.Accept = false
		d.Reasons = append(d.Reasons, reason)
		if !pinned {
			d.DeclineCode = r.Code
			pinned = r.Dominant
		}
		d.violations = multierror.Append(d.violations, &Violation{Rule: r.Name, Code: r.Code, Reason: reason})
	}
	return d
}

// Evaluate applies the default rule table.
func Evaluate(c domain.Challenge, p *domain.BotProfile) Decision {
	return defaultEvaluator.Evaluate(c, p)
}

var defaultEvaluator = NewEvaluator()
