package payment

import "time"

// TimerService schedules the per-payment expiry callback. Implementations
// fire at most once per armed id; re-arming replaces the pending timer.
type TimerService interface {
	Arm(id string, d time.Duration, fire func())
	Disarm(id string)
	Armed(id string) bool
}

// IDGenerator produces payment numbers handed to the gateway.
type IDGenerator interface {
	NewID() string
}
