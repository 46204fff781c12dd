package reimbursement

import "time"

func SetCodeSource(s *Service, next func() (string, error)) {
	s.newCode = next
}

func SetClock(s *Service, now func() time.Time) {
	s.now = now
}
