package world

import (
	"math"

	"github.com/clawcraft-master/clawcraft/internal/protocol"
	"github.com/clawcraft-master/clawcraft/internal/sim/catalogs"
	"github.com/clawcraft-master/clawcraft/internal/sim/chunk"
	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
)

// OpResult is the outcome of one block operation. Both transports share the
// resolvers, so a given request fails the same way over ws and rpc.
type OpResult struct {
	OK      bool
	Code    string
	Message string
}

func opOK() OpResult { return OpResult{OK: true} }

func opFail(code, message string) OpResult {
	if !protocol.IsKnownCode(code) {
		code = protocol.ErrInternal
		if message == "" {
			message = "unknown error code"
		}
	}
	return OpResult{Code: code, Message: message}
}

// PlaceBlock writes a named block into an unoccupied cell. Safe to call from
// any goroutine; the chunk store serializes per-chunk writes.
func (w *World) PlaceBlock(actor string, x, y, z int, blockName string, via string) OpResult {
	id, ok := w.blocks.Index[blockName]
	if !ok {
		return w.rejected(opFail(protocol.ErrBadRequest, "unknown block"))
	}
	if !w.blocks.Buildable(id) {
		return w.rejected(opFail(protocol.ErrInvalidTarget, "item not placeable"))
	}
	if y < 0 || y >= coords.WorldHeight {
		return w.rejected(opFail(protocol.ErrInvalidTarget, "out of bounds"))
	}
	cur := w.store.GetBlock(x, y, z)
	if w.blocks.Solid(cur) {
		return w.rejected(opFail(protocol.ErrBlocked, "space occupied"))
	}
	if err := w.store.SetBlock(x, y, z, id); err != nil {
		return w.rejected(opFail(protocol.ErrBlocked, err.Error()))
	}
	w.metrics.BlocksPlaced.Add(1)
	w.metrics.ActionsOK.Add(1)
	w.auditSetBlock(w.tick.Load(), actor, x, y, z, cur, id, "place", via)
	return opOK()
}

// BreakBlock clears a cell back to air. Bedrock never breaks.
func (w *World) BreakBlock(actor string, x, y, z int, via string) OpResult {
	if y < 0 || y >= coords.WorldHeight {
		return w.rejected(opFail(protocol.ErrInvalidTarget, "out of bounds"))
	}
	cur := w.store.GetBlock(x, y, z)
	if cur == catalogs.Air {
		return w.rejected(opFail(protocol.ErrInvalidTarget, "no block"))
	}
	if w.blocks.Indestructible(cur) {
		return w.rejected(opFail(protocol.ErrBlocked, "break denied"))
	}
	if err := w.store.SetBlock(x, y, z, catalogs.Air); err != nil {
		if err == chunk.ErrIndestructible {
			return w.rejected(opFail(protocol.ErrBlocked, "break denied"))
		}
		return w.rejected(opFail(protocol.ErrBlocked, err.Error()))
	}
	w.metrics.BlocksBroken.Add(1)
	w.metrics.ActionsOK.Add(1)
	w.auditSetBlock(w.tick.Load(), actor, x, y, z, cur, catalogs.Air, "break", via)
	return opOK()
}

func (w *World) rejected(r OpResult) OpResult {
	w.metrics.ActionsRejected.Add(1)
	return r
}

// BlockPlacement is one entry in a batch_place request.
type BlockPlacement struct {
	X, Y, Z int
	Block   string
}

// BlockTarget is one entry in a batch_break request.
type BlockTarget struct {
	X, Y, Z int
}

// BatchOutcome reports per-item results plus totals. Partial success is
// normal: applied items stay applied even when later items fail.
type BatchOutcome struct {
	Applied int
	Failed  int
	Items   []OpResult
}

// BatchPlace applies up to MaxBatch placements in order. Oversized batches
// are refused outright, before any item is applied.
func (w *World) BatchPlace(actor string, items []BlockPlacement, via string) (BatchOutcome, OpResult) {
	if len(items) > w.cfg.MaxBatch {
		return BatchOutcome{}, w.rejected(opFail(protocol.ErrBadRequest, "batch too large"))
	}
	out := BatchOutcome{Items: make([]OpResult, 0, len(items))}
	for _, it := range items {
		r := w.PlaceBlock(actor, it.X, it.Y, it.Z, it.Block, via)
		if r.OK {
			out.Applied++
		} else {
			out.Failed++
		}
		out.Items = append(out.Items, r)
	}
	return out, opOK()
}

// BatchBreak clears up to MaxBatch cells in order.
func (w *World) BatchBreak(actor string, items []BlockTarget, via string) (BatchOutcome, OpResult) {
	if len(items) > w.cfg.MaxBatch {
		return BatchOutcome{}, w.rejected(opFail(protocol.ErrBadRequest, "batch too large"))
	}
	out := BatchOutcome{Items: make([]OpResult, 0, len(items))}
	for _, it := range items {
		r := w.BreakBlock(actor, it.X, it.Y, it.Z, via)
		if r.OK {
			out.Applied++
		} else {
			out.Failed++
		}
		out.Items = append(out.Items, r)
	}
	return out, opOK()
}

// applyAction handles one queued continuous-mode action on the loop
// goroutine and sends the result to the agent's client.
func (w *World) applyAction(a *Agent, act protocol.ActionMsg, nowTick uint64) {
	var r OpResult
	switch act.Action {
	case protocol.ActionMove:
		r = w.actMove(a, act)
	case protocol.ActionJump:
		r = w.actJump(a)
	case protocol.ActionLook:
		r = w.actLook(a, act)
	case protocol.ActionPlaceBlock:
		r = w.PlaceBlock(a.ID, act.X, act.Y, act.Z, act.Block, "ws")
	case protocol.ActionBreakBlock:
		r = w.BreakBlock(a.ID, act.X, act.Y, act.Z, "ws")
	case protocol.ActionChat:
		r = w.actChat(a, act, nowTick)
	default:
		// The transport filters unknown kinds; this is the backstop.
		r = w.rejected(opFail(protocol.ErrProtoBadRequest, "unknown action"))
	}
	w.sendResult(a.ID, act, r, nowTick)
}

func (w *World) actMove(a *Agent, act protocol.ActionMsg) OpResult {
	dx, dz := act.DX, act.DZ
	if badFloat(dx) || badFloat(dz) {
		return w.rejected(opFail(protocol.ErrBadRequest, "bad direction"))
	}
	if l := math.Hypot(dx, dz); l > 1 {
		dx /= l
		dz /= l
	}
	speed := w.cfg.Tuning.Physics.WalkSpeed
	a.Body.Vel[0] = dx * speed
	a.Body.Vel[2] = dz * speed
	w.metrics.ActionsOK.Add(1)
	return opOK()
}

func (w *World) actJump(a *Agent) OpResult {
	if !a.Grounded {
		return w.rejected(opFail(protocol.ErrBlocked, "not grounded"))
	}
	a.Body.Vel[1] = w.cfg.Tuning.Physics.JumpSpeed
	w.metrics.ActionsOK.Add(1)
	return opOK()
}

func (w *World) actLook(a *Agent, act protocol.ActionMsg) OpResult {
	if badFloat(act.Yaw) || badFloat(act.Pitch) {
		return w.rejected(opFail(protocol.ErrBadRequest, "bad rotation"))
	}
	yaw := math.Mod(act.Yaw, 360)
	if yaw < 0 {
		yaw += 360
	}
	pitch := act.Pitch
	if pitch > 90 {
		pitch = 90
	}
	if pitch < -90 {
		pitch = -90
	}
	a.Yaw = yaw
	a.Pitch = pitch
	w.metrics.ActionsOK.Add(1)
	return opOK()
}

const maxChatLen = 256

func (w *World) actChat(a *Agent, act protocol.ActionMsg, nowTick uint64) OpResult {
	if act.Text == "" {
		return w.rejected(opFail(protocol.ErrBadRequest, "missing text"))
	}
	if len(act.Text) > maxChatLen {
		return w.rejected(opFail(protocol.ErrBadRequest, "text too long"))
	}
	if !a.RateLimitAllow("chat", nowTick, w.cfg.ChatWindowTicks, w.cfg.ChatMax) {
		return w.rejected(opFail(protocol.ErrRateLimit, "too many chat"))
	}
	w.broadcastChat(nowTick, a, act.Text)
	w.metrics.ChatMessages.Add(1)
	w.metrics.ActionsOK.Add(1)
	return opOK()
}

func badFloat(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
