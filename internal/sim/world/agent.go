package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/clawcraft-master/clawcraft/internal/protocol"
	"github.com/clawcraft-master/clawcraft/internal/sim/physics"
)

// Agent is simulation state owned by the world loop goroutine. SessionID and
// ResumeToken are transport-level and never enter digests.
type Agent struct {
	ID   string
	Name string

	SessionID   string
	ResumeToken string

	Body     physics.Body
	Yaw      float64
	Pitch    float64
	Grounded bool

	rl map[string]*rateWindow
}

type rateWindow struct {
	StartTick uint64
	Window    uint64
	Max       int
	Count     int
}

func newAgent(id, name string, spawn mgl64.Vec3) *Agent {
	return &Agent{
		ID:   id,
		Name: name,
		Body: physics.Body{Pos: spawn},
		rl:   map[string]*rateWindow{},
	}
}

// RateLimitAllow counts one attempt against a fixed tick window and reports
// whether it fits.
func (a *Agent) RateLimitAllow(kind string, nowTick uint64, window uint64, max int) bool {
	w, ok := a.rl[kind]
	if !ok {
		w = &rateWindow{StartTick: nowTick, Window: window, Max: max}
		a.rl[kind] = w
	}
	w.Window = window
	w.Max = max
	if w.Window == 0 || w.Max <= 0 {
		return true
	}
	if nowTick-w.StartTick >= w.Window {
		w.StartTick = nowTick
		w.Count = 0
	}
	w.Count++
	return w.Count <= w.Max
}

func (a *Agent) snapshot() protocol.AgentState {
	return protocol.AgentState{
		ID:       a.ID,
		Name:     a.Name,
		Pos:      [3]float64{a.Body.Pos.X(), a.Body.Pos.Y(), a.Body.Pos.Z()},
		Vel:      [3]float64{a.Body.Vel.X(), a.Body.Vel.Y(), a.Body.Vel.Z()},
		Yaw:      a.Yaw,
		Pitch:    a.Pitch,
		Grounded: a.Grounded,
	}
}
