// Package rpc is the discrete transport: stateless JSON-RPC 2.0 over HTTP
// POST for tool-driven agents that cannot hold a socket open. Sessions are
// keyed by a request header and live only in this process; block mutations go
// through the same world resolvers as the websocket path.
package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/clawcraft-master/clawcraft/internal/protocol"
	"github.com/clawcraft-master/clawcraft/internal/sim/catalogs"
	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
	"github.com/clawcraft-master/clawcraft/internal/sim/physics"
	"github.com/clawcraft-master/clawcraft/internal/sim/world"
)

const (
	headerAgent = "X-Clawcraft-Agent"
	headerToken = "X-Clawcraft-Token"

	maxBody         = 4 << 20
	maxRegionVolume = 32 * 32 * 32
)

var methodNames = []string{
	"describe",
	"move",
	"look",
	"target_block",
	"place",
	"break",
	"batch_place",
	"batch_break",
	"get_block",
	"query_region",
	"scan_region",
}

// session is one discrete agent's pose. Discrete agents are not simulated:
// no gravity, no tick broadcasts; move is a validated teleport.
type session struct {
	mu       sync.Mutex
	pos      mgl64.Vec3
	yaw      float64
	pitch    float64
	grounded bool
}

type Server struct {
	world     *world.World
	log       *log.Logger
	authToken string

	mu       sync.Mutex
	sessions map[string]*session

	calls    atomic.Uint64
	failures atomic.Uint64
}

func NewServer(w *world.World, authToken string, logger *log.Logger) *Server {
	return &Server{
		world:     w,
		log:       logger,
		authToken: strings.TrimSpace(authToken),
		sessions:  make(map[string]*session),
	}
}

// Calls is the number of dispatched JSON-RPC requests.
func (s *Server) Calls() uint64 { return s.calls.Load() }

// Failures counts protocol-level errors (bad params, unknown methods).
// Domain rejections are ok:false results, not failures.
func (s *Server) Failures() uint64 { return s.failures.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			_, _ = rw.Write([]byte("bad body"))
			return
		}
		_ = r.Body.Close()

		if s.authToken != "" && strings.TrimSpace(r.Header.Get(headerToken)) != s.authToken {
			rw.WriteHeader(http.StatusUnauthorized)
			_, _ = rw.Write([]byte("bad token"))
			return
		}

		key := strings.TrimSpace(r.Header.Get(headerAgent))
		if key == "" {
			key = "default"
		}

		req, err := parseRPCRequest(body)
		if err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			_, _ = rw.Write([]byte("bad jsonrpc request"))
			return
		}

		resp := s.dispatch(key, req)
		s.calls.Add(1)
		if resp.Error != nil {
			s.failures.Add(1)
		}
		rw.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) session(key string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		pos := s.world.SpawnPos()
		sess = &session{pos: pos, grounded: physics.Grounded(s.world.Store(), pos)}
		s.sessions[key] = sess
		s.log.Printf("rpc session %q spawned at (%.1f, %.1f, %.1f)", key, pos.X(), pos.Y(), pos.Z())
	}
	return sess
}

func (s *Server) actor(key string) string { return "rpc:" + key }

func (s *Server) dispatch(key string, req rpcRequest) rpcResponse {
	switch req.Method {
	case "describe":
		return s.describe(key, req)
	case "move":
		return s.move(key, req)
	case "look":
		return s.look(key, req)
	case "target_block":
		return s.targetBlock(key, req)
	case "place":
		return s.place(key, req)
	case "break":
		return s.breakBlock(key, req)
	case "batch_place":
		return s.batchPlace(key, req)
	case "batch_break":
		return s.batchBreak(key, req)
	case "get_block":
		return s.getBlock(req)
	case "query_region":
		return s.queryRegion(req)
	case "scan_region":
		return s.scanRegion(req)
	default:
		return rpcErr(req.ID, -32601, "method not found", map[string]any{"method": req.Method})
	}
}

// failResult carries a domain rejection as a normal result. JSON-RPC error
// codes stay reserved for protocol-level failures.
func failResult(id json.RawMessage, r world.OpResult) rpcResponse {
	return rpcOK(id, map[string]any{"ok": false, "code": r.Code, "message": r.Message})
}

func decodeParams(req rpcRequest, v any) *rpcResponse {
	if len(req.Params) == 0 {
		e := rpcErr(req.ID, -32602, "missing params", nil)
		return &e
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		e := rpcErr(req.ID, -32602, "bad params", err.Error())
		return &e
	}
	return nil
}

func (s *Server) describe(key string, req rpcRequest) rpcResponse {
	sess := s.session(key)
	sess.mu.Lock()
	agent := map[string]any{
		"key":      key,
		"pos":      [3]float64{sess.pos.X(), sess.pos.Y(), sess.pos.Z()},
		"yaw":      sess.yaw,
		"pitch":    sess.pitch,
		"grounded": sess.grounded,
	}
	sess.mu.Unlock()

	st := s.world.Status()
	return rpcOK(req.ID, map[string]any{
		"world":   s.world.Params(),
		"name":    st.Name,
		"tick":    st.Tick,
		"agent":   agent,
		"methods": methodNames,
	})
}

func (s *Server) move(key string, req rpcRequest) rpcResponse {
	var p struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	}
	if e := decodeParams(req, &p); e != nil {
		return *e
	}
	if badFloat(p.X) || badFloat(p.Y) || badFloat(p.Z) {
		return failResult(req.ID, world.OpResult{Code: protocol.ErrBadRequest, Message: "bad position"})
	}
	if p.Y < 0 || p.Y >= coords.WorldHeight {
		return failResult(req.ID, world.OpResult{Code: protocol.ErrInvalidTarget, Message: "out of bounds"})
	}
	pos := mgl64.Vec3{p.X, p.Y, p.Z}
	if physics.Collides(s.world.Store(), pos) {
		return failResult(req.ID, world.OpResult{Code: protocol.ErrBlocked, Message: "destination obstructed"})
	}

	sess := s.session(key)
	sess.mu.Lock()
	sess.pos = pos
	sess.grounded = physics.Grounded(s.world.Store(), pos)
	grounded := sess.grounded
	sess.mu.Unlock()

	return rpcOK(req.ID, map[string]any{
		"ok":       true,
		"pos":      [3]float64{p.X, p.Y, p.Z},
		"grounded": grounded,
	})
}

func (s *Server) look(key string, req rpcRequest) rpcResponse {
	var p struct {
		Yaw   float64 `json:"yaw"`
		Pitch float64 `json:"pitch"`
	}
	if e := decodeParams(req, &p); e != nil {
		return *e
	}
	if badFloat(p.Yaw) || badFloat(p.Pitch) {
		return failResult(req.ID, world.OpResult{Code: protocol.ErrBadRequest, Message: "bad rotation"})
	}
	yaw := math.Mod(p.Yaw, 360)
	if yaw < 0 {
		yaw += 360
	}
	pitch := p.Pitch
	if pitch > 90 {
		pitch = 90
	}
	if pitch < -90 {
		pitch = -90
	}

	sess := s.session(key)
	sess.mu.Lock()
	sess.yaw = yaw
	sess.pitch = pitch
	sess.mu.Unlock()

	return rpcOK(req.ID, map[string]any{"ok": true, "yaw": yaw, "pitch": pitch})
}

func (s *Server) targetBlock(key string, req rpcRequest) rpcResponse {
	sess := s.session(key)
	sess.mu.Lock()
	origin := sess.pos.Add(mgl64.Vec3{0, physics.EyeHeight, 0})
	dir := physics.LookDir(sess.yaw, sess.pitch)
	sess.mu.Unlock()

	phy := s.world.Config().Tuning.Physics
	hit, ok := physics.Raycast(s.world.Store(), origin, dir, phy.RaycastRange, phy.RaycastStep)
	if !ok {
		return rpcOK(req.ID, map[string]any{"hit": false})
	}
	id := s.world.Store().GetBlock(hit.Block.X, hit.Block.Y, hit.Block.Z)
	return rpcOK(req.ID, map[string]any{
		"hit":    true,
		"pos":    [3]int{hit.Block.X, hit.Block.Y, hit.Block.Z},
		"id":     id,
		"block":  s.world.Blocks().Name(id),
		"normal": hit.Normal,
	})
}

func (s *Server) place(key string, req rpcRequest) rpcResponse {
	var p struct {
		X     int    `json:"x"`
		Y     int    `json:"y"`
		Z     int    `json:"z"`
		Block string `json:"block"`
	}
	if e := decodeParams(req, &p); e != nil {
		return *e
	}
	r := s.world.PlaceBlock(s.actor(key), p.X, p.Y, p.Z, p.Block, "rpc")
	if !r.OK {
		return failResult(req.ID, r)
	}
	return rpcOK(req.ID, map[string]any{"ok": true})
}

func (s *Server) breakBlock(key string, req rpcRequest) rpcResponse {
	var p struct {
		X int `json:"x"`
		Y int `json:"y"`
		Z int `json:"z"`
	}
	if e := decodeParams(req, &p); e != nil {
		return *e
	}
	r := s.world.BreakBlock(s.actor(key), p.X, p.Y, p.Z, "rpc")
	if !r.OK {
		return failResult(req.ID, r)
	}
	return rpcOK(req.ID, map[string]any{"ok": true})
}

func itemResults(items []world.OpResult) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, r := range items {
		m := map[string]any{"ok": r.OK}
		if !r.OK {
			m["code"] = r.Code
			m["message"] = r.Message
		}
		out = append(out, m)
	}
	return out
}

func (s *Server) batchPlace(key string, req rpcRequest) rpcResponse {
	var p struct {
		Blocks []struct {
			X     int    `json:"x"`
			Y     int    `json:"y"`
			Z     int    `json:"z"`
			Block string `json:"block"`
		} `json:"blocks"`
	}
	if e := decodeParams(req, &p); e != nil {
		return *e
	}
	items := make([]world.BlockPlacement, 0, len(p.Blocks))
	for _, b := range p.Blocks {
		items = append(items, world.BlockPlacement{X: b.X, Y: b.Y, Z: b.Z, Block: b.Block})
	}
	outcome, res := s.world.BatchPlace(s.actor(key), items, "rpc")
	if !res.OK {
		return failResult(req.ID, res)
	}
	return rpcOK(req.ID, map[string]any{
		"ok":      true,
		"applied": outcome.Applied,
		"failed":  outcome.Failed,
		"results": itemResults(outcome.Items),
	})
}

func (s *Server) batchBreak(key string, req rpcRequest) rpcResponse {
	var p struct {
		Positions []struct {
			X int `json:"x"`
			Y int `json:"y"`
			Z int `json:"z"`
		} `json:"positions"`
	}
	if e := decodeParams(req, &p); e != nil {
		return *e
	}
	items := make([]world.BlockTarget, 0, len(p.Positions))
	for _, b := range p.Positions {
		items = append(items, world.BlockTarget{X: b.X, Y: b.Y, Z: b.Z})
	}
	outcome, res := s.world.BatchBreak(s.actor(key), items, "rpc")
	if !res.OK {
		return failResult(req.ID, res)
	}
	return rpcOK(req.ID, map[string]any{
		"ok":      true,
		"applied": outcome.Applied,
		"failed":  outcome.Failed,
		"results": itemResults(outcome.Items),
	})
}

func (s *Server) getBlock(req rpcRequest) rpcResponse {
	var p struct {
		X int `json:"x"`
		Y int `json:"y"`
		Z int `json:"z"`
	}
	if e := decodeParams(req, &p); e != nil {
		return *e
	}
	id := s.world.Store().GetBlock(p.X, p.Y, p.Z)
	return rpcOK(req.ID, map[string]any{
		"x":     p.X,
		"y":     p.Y,
		"z":     p.Z,
		"id":    id,
		"block": s.world.Blocks().Name(id),
		"solid": s.world.Blocks().Solid(id),
	})
}

type regionParams struct {
	Min  [3]int `json:"min"`
	Size [3]int `json:"size"`
}

func (p regionParams) validate() *world.OpResult {
	vol := 1
	for _, d := range p.Size {
		if d < 1 {
			return &world.OpResult{Code: protocol.ErrBadRequest, Message: "size must be positive"}
		}
		vol *= d
	}
	if vol > maxRegionVolume {
		return &world.OpResult{Code: protocol.ErrBadRequest, Message: fmt.Sprintf("region exceeds %d cells", maxRegionVolume)}
	}
	return nil
}

// queryRegion returns every cell as blocks[x][y][z], air included.
func (s *Server) queryRegion(req rpcRequest) rpcResponse {
	var p regionParams
	if e := decodeParams(req, &p); e != nil {
		return *e
	}
	if r := p.validate(); r != nil {
		return failResult(req.ID, *r)
	}

	store := s.world.Store()
	blocks := make([][][]int, p.Size[0])
	for i := range blocks {
		plane := make([][]int, p.Size[1])
		for j := range plane {
			row := make([]int, p.Size[2])
			for k := range row {
				row[k] = int(store.GetBlock(p.Min[0]+i, p.Min[1]+j, p.Min[2]+k))
			}
			plane[j] = row
		}
		blocks[i] = plane
	}
	return rpcOK(req.ID, map[string]any{
		"min":    p.Min,
		"size":   p.Size,
		"blocks": blocks,
	})
}

// scanRegion returns only the non-air cells, cheaper for sparse volumes.
func (s *Server) scanRegion(req rpcRequest) rpcResponse {
	var p regionParams
	if e := decodeParams(req, &p); e != nil {
		return *e
	}
	if r := p.validate(); r != nil {
		return failResult(req.ID, *r)
	}

	store := s.world.Store()
	blocks := s.world.Blocks()
	type cell struct {
		X     int    `json:"x"`
		Y     int    `json:"y"`
		Z     int    `json:"z"`
		ID    int    `json:"id"`
		Block string `json:"block"`
	}
	var found []cell
	for i := 0; i < p.Size[0]; i++ {
		for j := 0; j < p.Size[1]; j++ {
			for k := 0; k < p.Size[2]; k++ {
				x, y, z := p.Min[0]+i, p.Min[1]+j, p.Min[2]+k
				id := store.GetBlock(x, y, z)
				if id == catalogs.Air {
					continue
				}
				found = append(found, cell{X: x, Y: y, Z: z, ID: int(id), Block: blocks.Name(id)})
			}
		}
	}
	return rpcOK(req.ID, map[string]any{
		"min":    p.Min,
		"size":   p.Size,
		"count":  len(found),
		"blocks": found,
	})
}

func badFloat(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
