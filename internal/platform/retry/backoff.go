package retry

import "time"

// Backoff yields doubling delays from Initial up to Max. Not safe for
// concurrent use; each reconnect loop owns its own.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	current time.Duration
}

func NewBackoff(initial, maxDelay time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	return &Backoff{Initial: initial, Max: maxDelay}
}

// Next returns the delay to wait now and advances the sequence.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
		return b.current
	}
	b.current *= 2
	if b.current > b.Max {
		b.current = b.Max
	}
	return b.current
}

// Reset starts the sequence over, typically after a successful connect.
func (b *Backoff) Reset() {
	b.current = 0
}
