package bridge

import "time"

// Backoff produces the reconnect delay sequence: exponential from Base,
// capped at Max, reset after a successful connect.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	attempt int
}

// Next returns the delay before the upcoming attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.Base
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if d >= b.Max {
			d = b.Max
			break
		}
	}
	b.attempt++
	if d > b.Max {
		d = b.Max
	}
	return d
}

// Reset returns the sequence to the base delay.
func (b *Backoff) Reset() {
	b.attempt = 0
}
