// Package worldtest drives a world the way the transports do, through the
// exported join/action/step surface only. Stepping is explicit, so tests
// control time and stay deterministic.
package worldtest

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/clawcraft-master/clawcraft/internal/protocol"
	"github.com/clawcraft-master/clawcraft/internal/sim/catalogs"
	"github.com/clawcraft-master/clawcraft/internal/sim/world"
)

type Harness struct {
	T *testing.T
	W *world.World

	DefaultAgentID string

	sessions map[string]*session
	nextID   int
}

type session struct {
	agentID string
	out     chan []byte

	results  map[string]protocol.ActionResultMsg
	lastTick protocol.TickMsg
	chats    []protocol.ChatMsg
}

// New builds a world from cfg with the built-in block catalog and joins one
// default agent named "bot".
func New(t *testing.T, cfg world.Config) *Harness {
	t.Helper()
	w, err := world.New(cfg, catalogs.Default())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	h := &Harness{T: t, W: w, sessions: map[string]*session{}}
	h.DefaultAgentID = h.Join("bot")
	return h
}

// Join runs one tick carrying a join request and registers a client channel
// for the new agent.
func (h *Harness) Join(name string) string {
	h.T.Helper()
	out := make(chan []byte, 64)
	resp := make(chan world.JoinResponse, 1)
	h.W.StepOnce([]world.JoinRequest{{Name: name, Out: out, Resp: resp}}, nil, nil)
	jr := <-resp
	if !jr.OK {
		h.T.Fatalf("join %s: %s %s", name, jr.Code, jr.Message)
	}
	s := &session{
		agentID: jr.Auth.AgentID,
		out:     out,
		results: map[string]protocol.ActionResultMsg{},
	}
	h.sessions[s.agentID] = s
	h.drainAll()
	return s.agentID
}

// Act queues one action and steps a single tick, returning the result echoed
// for the action's correlation id.
func (h *Harness) Act(agentID string, act protocol.ActionMsg) protocol.ActionResultMsg {
	h.T.Helper()
	act.Type = protocol.TypeAction
	if act.ID == "" {
		h.nextID++
		act.ID = fmt.Sprintf("t%d", h.nextID)
	}
	h.W.StepOnce(nil, nil, []world.ActionEnvelope{{AgentID: agentID, Act: act}})
	h.drainAll()
	res, ok := h.session(agentID).results[act.ID]
	if !ok {
		h.T.Fatalf("no result for action %s (%s)", act.ID, act.Action)
	}
	return res
}

// StepN advances n empty ticks, draining client channels as it goes.
func (h *Harness) StepN(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.W.StepOnce(nil, nil, nil)
		h.drainAll()
	}
}

// Agent reads an agent's live state between ticks.
func (h *Harness) Agent(agentID string) protocol.AgentState {
	h.T.Helper()
	st, ok := h.W.AgentSnapshot(agentID)
	if !ok {
		h.T.Fatalf("unknown agent %q", agentID)
	}
	return st
}

func (h *Harness) LastTick(agentID string) protocol.TickMsg {
	h.T.Helper()
	return h.session(agentID).lastTick
}

func (h *Harness) Chats(agentID string) []protocol.ChatMsg {
	h.T.Helper()
	return h.session(agentID).chats
}

func (h *Harness) session(agentID string) *session {
	h.T.Helper()
	s := h.sessions[agentID]
	if s == nil {
		h.T.Fatalf("unknown agent id %q", agentID)
	}
	return s
}

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOne(s)
	}
}

func (h *Harness) drainOne(s *session) {
	h.T.Helper()
	for {
		var raw []byte
		select {
		case raw = <-s.out:
		default:
			return
		}
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			h.T.Fatalf("client %s got bad frame: %v", s.agentID, err)
		}
		switch base.Type {
		case protocol.TypeTick:
			if err := json.Unmarshal(raw, &s.lastTick); err != nil {
				h.T.Fatalf("unmarshal tick: %v", err)
			}
		case protocol.TypeActionResult:
			var res protocol.ActionResultMsg
			if err := json.Unmarshal(raw, &res); err != nil {
				h.T.Fatalf("unmarshal action_result: %v", err)
			}
			s.results[res.ID] = res
		case protocol.TypeChat:
			var c protocol.ChatMsg
			if err := json.Unmarshal(raw, &c); err != nil {
				h.T.Fatalf("unmarshal chat: %v", err)
			}
			s.chats = append(s.chats, c)
		}
	}
}
