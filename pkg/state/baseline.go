package state

import "time"

// Baseline is what the last successful run saw.
type Baseline struct {
	// Total is the result count reported by the probe
	Total int `json:"total"`

	// Key is the string form of the BaselineKey, kept for inspection
	Key string `json:"key"`

	// UpdatedAt is when the baseline was written
	UpdatedAt time.Time `json:"updated_at"`
}

// Age returns how long ago the baseline was written.
func (b *Baseline) Age() time.Duration {
	return time.Since(b.UpdatedAt)
}
