package world

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/clawcraft-master/clawcraft/internal/protocol"
	"github.com/clawcraft-master/clawcraft/internal/sim/catalogs"
	"github.com/clawcraft-master/clawcraft/internal/sim/chunk"
	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
	"github.com/clawcraft-master/clawcraft/internal/sim/physics"
	"github.com/clawcraft-master/clawcraft/internal/sim/terrain"
)

type JoinRequest struct {
	Name        string
	Token       string
	ResumeToken string
	RLE         bool
	Out         chan []byte
	Resp        chan JoinResponse
}

type JoinResponse struct {
	OK      bool
	Code    string
	Message string
	Auth    protocol.AuthSuccessMsg
}

type ActionEnvelope struct {
	AgentID string
	Act     protocol.ActionMsg
}

type RecordedJoin struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

type RecordedAction struct {
	AgentID string             `json:"agent_id"`
	Act     protocol.ActionMsg `json:"act"`
}

type TickLogEntry struct {
	Tick    uint64           `json:"tick"`
	Joins   []RecordedJoin   `json:"joins,omitempty"`
	Leaves  []string         `json:"leaves,omitempty"`
	Actions []RecordedAction `json:"actions,omitempty"`
	Agents  int              `json:"agents"`
	Chunks  int              `json:"chunks"`
	Digest  string           `json:"digest"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"` // "place" | "break"
	Pos    [3]int `json:"pos"`
	From   string `json:"from"`
	To     string `json:"to"`
	Via    string `json:"via,omitempty"` // "ws" | "rpc"
}

// TickLogger and AuditLogger sinks must be safe for concurrent use; audits
// can arrive from transport goroutines.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type clientState struct {
	Out chan []byte
	RLE bool
}

// World is a single-threaded authoritative simulation. Agent state is
// accessed only from the loop goroutine; block state lives in the chunk
// store, which is safe to read and write from transports as well.
type World struct {
	cfg    Config
	blocks *catalogs.BlockCatalog
	gen    *terrain.Generator
	store  *chunk.Store

	tick atomic.Uint64

	agents  map[string]*Agent
	clients map[string]*clientState

	inbox chan ActionEnvelope
	join  chan JoinRequest
	leave chan string

	stop     chan struct{}
	stopOnce sync.Once

	nextAgentNum atomic.Uint64

	agentsOnline  atomic.Int64
	clientsOnline atomic.Int64
	lastDigest    atomic.Value // string

	// Optional loggers (may be nil). Implemented in internal/persistence.
	tickLogger  TickLogger
	auditLogger AuditLogger

	metrics *Metrics
}

func New(cfg Config, cats *catalogs.Catalogs) (*World, error) {
	cfg.applyDefaults()
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.Name, err)
	}
	gen, err := terrain.New(cfg.Seed, cfg.Tuning.Terrain, &cats.Blocks)
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.Name, err)
	}
	w := &World{
		cfg:     cfg,
		blocks:  &cats.Blocks,
		gen:     gen,
		store:   chunk.NewStore(gen, &cats.Blocks),
		agents:  map[string]*Agent{},
		clients: map[string]*clientState{},
		inbox:   make(chan ActionEnvelope, 1024),
		join:    make(chan JoinRequest, 64),
		leave:   make(chan string, 64),
		stop:    make(chan struct{}),
		metrics: &Metrics{},
	}
	w.lastDigest.Store("")
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

func (w *World) Inbox() chan<- ActionEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Leave() chan<- string         { return w.leave }

func (w *World) CurrentTick() uint64              { return w.tick.Load() }
func (w *World) Store() *chunk.Store              { return w.store }
func (w *World) Blocks() *catalogs.BlockCatalog   { return w.blocks }
func (w *World) Config() Config                   { return w.cfg }
func (w *World) Metrics() *Metrics                { return w.metrics }

// Status is a point-in-time operational summary, safe from any goroutine.
type Status struct {
	Name        string `json:"name"`
	Tick        uint64 `json:"tick"`
	Seed        int64  `json:"seed"`
	Agents      int64  `json:"agents"`
	Clients     int64  `json:"clients"`
	Chunks      int    `json:"chunks"`
	DirtyChunks int    `json:"dirty_chunks"`
	Digest      string `json:"digest"`
}

func (w *World) Status() Status {
	digest, _ := w.lastDigest.Load().(string)
	return Status{
		Name:        w.cfg.Name,
		Tick:        w.tick.Load(),
		Seed:        w.cfg.Seed,
		Agents:      w.agentsOnline.Load(),
		Clients:     w.clientsOnline.Load(),
		Chunks:      w.store.Count(),
		DirtyChunks: w.store.DirtyCount(),
		Digest:      digest,
	}
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingActions)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

func (w *World) step(joins []JoinRequest, leaves []string, actions []ActionEnvelope) {
	nowTick := w.tick.Load()

	// Leaves and joins apply at the tick boundary, in arrival order.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := w.clients[id]; ok {
			delete(w.clients, id)
			w.clientsOnline.Add(-1)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := w.joinAgent(req, nowTick)
		if req.Resp != nil {
			req.Resp <- resp
		}
		if resp.OK {
			recordedJoins = append(recordedJoins, RecordedJoin{AgentID: resp.Auth.AgentID, Name: req.Name})
		}
	}

	// Actions apply in server receive order.
	recorded := make([]RecordedAction, 0, len(actions))
	for _, env := range actions {
		a := w.agents[env.AgentID]
		if a == nil {
			continue
		}
		recorded = append(recorded, RecordedAction{AgentID: env.AgentID, Act: env.Act})
		w.applyAction(a, env.Act, nowTick)
	}

	w.systemMovement()
	w.broadcastTick(nowTick)

	digest := w.stateDigest(nowTick)
	w.lastDigest.Store(digest)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:    nowTick,
			Joins:   recordedJoins,
			Leaves:  recordedLeaves,
			Actions: recorded,
			Agents:  len(w.agents),
			Chunks:  w.store.Count(),
			Digest:  digest,
		})
	}

	w.metrics.TicksTotal.Add(1)
	w.tick.Add(1)
}

// StepOnce advances the world by one tick with the same ordering semantics
// as the server loop. Intended for deterministic replays and tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, actions []ActionEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step(joins, leaves, actions)
	d, _ := w.lastDigest.Load().(string)
	return tick, d
}

func (w *World) joinAgent(req JoinRequest, nowTick uint64) JoinResponse {
	if w.cfg.AuthToken != "" && req.Token != w.cfg.AuthToken {
		return JoinResponse{Code: protocol.ErrNoPermission, Message: "bad token"}
	}

	var a *Agent
	if token := strings.TrimSpace(req.ResumeToken); token != "" {
		a = w.agentByResumeToken(token)
		if a == nil {
			return JoinResponse{Code: protocol.ErrNoPermission, Message: "bad resume token"}
		}
	} else {
		name := req.Name
		if name == "" {
			name = "agent"
		}
		id := fmt.Sprintf("A%d", w.nextAgentNum.Add(1))
		a = newAgent(id, name, w.spawnPos())
		w.agents[id] = a
		w.agentsOnline.Add(1)
		w.metrics.AgentsJoined.Add(1)
	}

	// Rotate transport credentials on every successful join or resume.
	a.SessionID = uuid.NewString()
	a.ResumeToken = uuid.NewString()

	if req.Out != nil {
		if _, had := w.clients[a.ID]; !had {
			w.clientsOnline.Add(1)
		}
		w.clients[a.ID] = &clientState{Out: req.Out, RLE: req.RLE}
	}

	encoding := protocol.EncodingRaw
	if req.RLE {
		encoding = protocol.EncodingRLE
	}
	return JoinResponse{
		OK: true,
		Auth: protocol.AuthSuccessMsg{
			Type:            protocol.TypeAuthSuccess,
			ProtocolVersion: protocol.Version,
			AgentID:         a.ID,
			SessionID:       a.SessionID,
			ResumeToken:     a.ResumeToken,
			ChunkEncoding:   encoding,
			World:           w.Params(),
			Spawn:           [3]float64{a.Body.Pos.X(), a.Body.Pos.Y(), a.Body.Pos.Z()},
		},
	}
}

func (w *World) agentByResumeToken(token string) *Agent {
	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if a := w.agents[id]; a != nil && a.ResumeToken == token {
			return a
		}
	}
	return nil
}

// spawnPos puts new agents on the platform beside the beacon column.
func (w *World) spawnPos() mgl64.Vec3 {
	const sx, sz = 1, 1
	return mgl64.Vec3{sx + 0.5, float64(w.surfaceY(sx, sz)), sz + 0.5}
}

// surfaceY finds the first open cell above the topmost solid block.
func (w *World) surfaceY(x, z int) int {
	for y := coords.WorldHeight - 2; y >= 1; y-- {
		if w.store.Solid(x, y, z) {
			return y + 1
		}
	}
	return 1
}

func (w *World) systemMovement() {
	dt := 1.0 / float64(w.cfg.Tuning.TickRateHz)
	for _, a := range w.sortedAgents() {
		a.Grounded = physics.Step(w.store, &a.Body, dt, w.cfg.Tuning.Physics)
	}
}

func (w *World) broadcastTick(nowTick uint64) {
	if len(w.clients) == 0 {
		return
	}
	agents := w.sortedAgents()
	msg := protocol.TickMsg{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		Agents:          make([]protocol.AgentState, 0, len(agents)),
	}
	for _, a := range agents {
		msg.Agents = append(msg.Agents, a.snapshot())
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, cl := range w.clients {
		sendLatest(cl.Out, b)
	}
}

func (w *World) sendResult(agentID string, act protocol.ActionMsg, r OpResult, nowTick uint64) {
	cl := w.clients[agentID]
	if cl == nil {
		return
	}
	b, err := json.Marshal(protocol.ActionResultMsg{
		Type:            protocol.TypeActionResult,
		ProtocolVersion: protocol.Version,
		ID:              act.ID,
		Action:          act.Action,
		OK:              r.OK,
		Code:            r.Code,
		Message:         r.Message,
		Tick:            nowTick,
	})
	if err != nil {
		return
	}
	sendLatest(cl.Out, b)
}

func (w *World) broadcastChat(nowTick uint64, from *Agent, text string) {
	b, err := json.Marshal(protocol.ChatMsg{
		Type:            protocol.TypeChat,
		ProtocolVersion: protocol.Version,
		FromID:          from.ID,
		From:            from.Name,
		Text:            text,
		Tick:            nowTick,
	})
	if err != nil {
		return
	}
	for _, cl := range w.clients {
		sendLatest(cl.Out, b)
	}
}

func (w *World) sortedAgents() []*Agent {
	out := make([]*Agent, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// sendLatest delivers b without blocking; under backpressure it drops one
// queued message to make room.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func (w *World) auditSetBlock(tick uint64, actor string, x, y, z int, from, to byte, action, via string) {
	if w.auditLogger == nil {
		return
	}
	_ = w.auditLogger.WriteAudit(AuditEntry{
		Tick:   tick,
		Actor:  actor,
		Action: action,
		Pos:    [3]int{x, y, z},
		From:   w.blocks.Name(from),
		To:     w.blocks.Name(to),
		Via:    via,
	})
}

func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	put(nowTick)
	put(uint64(w.cfg.Seed))

	for _, pos := range w.store.Keys() {
		put(uint64(int64(pos.X)))
		put(uint64(int64(pos.Y)))
		put(uint64(int64(pos.Z)))
		ch, ok := w.store.Lookup(pos)
		if !ok {
			continue
		}
		d := ch.Digest()
		h.Write(d[:])
	}

	for _, a := range w.sortedAgents() {
		h.Write([]byte(a.ID))
		h.Write([]byte(a.Name))
		put(math.Float64bits(a.Body.Pos.X()))
		put(math.Float64bits(a.Body.Pos.Y()))
		put(math.Float64bits(a.Body.Pos.Z()))
		put(math.Float64bits(a.Body.Vel.X()))
		put(math.Float64bits(a.Body.Vel.Y()))
		put(math.Float64bits(a.Body.Vel.Z()))
		put(math.Float64bits(a.Yaw))
		put(math.Float64bits(a.Pitch))
		if a.Grounded {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AgentSnapshot reads one agent's live state. Test hook; callers must not
// race a running loop.
func (w *World) AgentSnapshot(id string) (protocol.AgentState, bool) {
	a := w.agents[id]
	if a == nil {
		return protocol.AgentState{}, false
	}
	return a.snapshot(), true
}

// DebugTeleport repositions an agent and clears its velocity. Test hook.
func (w *World) DebugTeleport(id string, x, y, z float64) bool {
	a := w.agents[id]
	if a == nil {
		return false
	}
	a.Body.Pos = mgl64.Vec3{x, y, z}
	a.Body.Vel = mgl64.Vec3{}
	a.Grounded = false
	return true
}
