package game

import "fmt"

// Rules carries the scoring parameters the book builder cares about. Scoring
// is area scoring with positional superko; the fields exist so books built
// under different komi or labels refuse to mix.
type Rules struct {
	Komi   float64 `yaml:"komi"`
	Label  string  `yaml:"rulesLabel"`
	KoRule string  `yaml:"koRule"`
}

const KoRulePositional = "POSITIONAL"

func DefaultRules() Rules {
	return Rules{
		Komi:   7.5,
		Label:  "area",
		KoRule: KoRulePositional,
	}
}

func (r Rules) Equals(other Rules) bool {
	return r.Komi == other.Komi && r.Label == other.Label && r.KoRule == other.KoRule
}

func (r Rules) String() string {
	return fmt.Sprintf("komi%.1f-%s-%s", r.Komi, r.Label, r.KoRule)
}
