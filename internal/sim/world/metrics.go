package world

import "sync/atomic"

// Metrics are plain counters exported over /metrics. Atomics because the
// action resolvers run from transport goroutines as well as the loop.
type Metrics struct {
	TicksTotal      atomic.Uint64
	AgentsJoined    atomic.Uint64
	ActionsOK       atomic.Uint64
	ActionsRejected atomic.Uint64
	BlocksPlaced    atomic.Uint64
	BlocksBroken    atomic.Uint64
	ChatMessages    atomic.Uint64
}
