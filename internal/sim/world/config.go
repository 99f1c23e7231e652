package world

import "github.com/clawcraft-master/clawcraft/internal/sim/tuning"

// Config is everything the simulation needs at construction. It is copied
// into the World and never mutated afterwards; changing tuning means a
// restart.
type Config struct {
	Name string
	Seed int64

	// AuthToken, when non-empty, must match the token presented at auth.
	AuthToken string

	Tuning tuning.Tuning

	// MaxBatch caps item counts for batch_place/batch_break.
	MaxBatch int
	// MaxChunkRequests caps chunk keys per request_chunks message.
	MaxChunkRequests int

	// Chat flood control: at most ChatMax messages per agent per window.
	ChatWindowTicks uint64
	ChatMax         int
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "world"
	}
	if c.Tuning.TickRateHz <= 0 {
		c.Tuning = tuning.Defaults()
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 100
	}
	if c.MaxChunkRequests <= 0 {
		c.MaxChunkRequests = 100
	}
	if c.ChatWindowTicks == 0 {
		c.ChatWindowTicks = 100
	}
	if c.ChatMax <= 0 {
		c.ChatMax = 5
	}
}
