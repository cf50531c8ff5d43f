package session

import "time"

// SetRenewalBounds overrides the renewal lead and floor so timer tests run
// in milliseconds.
func SetRenewalBounds(m *Manager, lead, floor time.Duration) {
	m.lead = lead
	m.floor = floor
}
