package fraud

import "time"

func SetRuleClock(s *RuleScorer, now func() time.Time) {
	s.now = now
}
