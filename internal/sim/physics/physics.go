// Package physics moves axis-aligned agent bodies through block volumes.
// Collision is sample-based: the 8 box corners plus face midpoints. Slivers
// thinner than the sample spacing can slip through; cell-sized geometry
// cannot.
package physics

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
	"github.com/clawcraft-master/clawcraft/internal/sim/tuning"
)

// World answers solidity queries for collision and raycasts.
type World interface {
	Solid(wx, wy, wz int) bool
}

// Agent collision box, meters. Pos is the feet center.
const (
	Width     = 0.6
	Height    = 1.8
	EyeHeight = 1.6

	halfWidth   = Width / 2
	groundProbe = 0.1
)

type Body struct {
	Pos mgl64.Vec3
	Vel mgl64.Vec3
}

// sampleOffsets covers the corners and face midpoints of the collision box,
// relative to the feet center.
var sampleOffsets = buildSampleOffsets()

func buildSampleOffsets() []mgl64.Vec3 {
	var pts []mgl64.Vec3
	for _, y := range []float64{0, Height} {
		for _, x := range []float64{-halfWidth, halfWidth} {
			for _, z := range []float64{-halfWidth, halfWidth} {
				pts = append(pts, mgl64.Vec3{x, y, z})
			}
		}
		pts = append(pts, mgl64.Vec3{0, y, 0})
	}
	mid := Height / 2
	pts = append(pts,
		mgl64.Vec3{-halfWidth, mid, 0},
		mgl64.Vec3{halfWidth, mid, 0},
		mgl64.Vec3{0, mid, -halfWidth},
		mgl64.Vec3{0, mid, halfWidth},
	)
	return pts
}

func solidAt(w World, x, y, z float64) bool {
	return w.Solid(coords.Floor(x), coords.Floor(y), coords.Floor(z))
}

// Collides reports whether a body positioned at pos overlaps any solid cell.
func Collides(w World, pos mgl64.Vec3) bool {
	for _, off := range sampleOffsets {
		if solidAt(w, pos.X()+off.X(), pos.Y()+off.Y(), pos.Z()+off.Z()) {
			return true
		}
	}
	return false
}

// Step advances one body by dt. Axes integrate independently; a blocked axis
// zeroes its velocity component and leaves the other axes alone. Returns
// whether the body ended the step on the ground.
func Step(w World, b *Body, dt float64, cfg tuning.Physics) bool {
	vy := b.Vel.Y() - cfg.Gravity*dt
	if vy < -cfg.TerminalVelocity {
		vy = -cfg.TerminalVelocity
	}
	b.Vel[1] = vy

	// X
	if dx := b.Vel.X() * dt; dx != 0 {
		next := mgl64.Vec3{b.Pos.X() + dx, b.Pos.Y(), b.Pos.Z()}
		if Collides(w, next) {
			b.Vel[0] = 0
		} else {
			b.Pos = next
		}
	}

	// Y
	if dy := b.Vel.Y() * dt; dy != 0 {
		next := mgl64.Vec3{b.Pos.X(), b.Pos.Y() + dy, b.Pos.Z()}
		if Collides(w, next) {
			if dy < 0 {
				b.Pos = snapToFloor(w, b.Pos, next)
			}
			b.Vel[1] = 0
		} else {
			b.Pos = next
		}
	}

	// Z
	if dz := b.Vel.Z() * dt; dz != 0 {
		next := mgl64.Vec3{b.Pos.X(), b.Pos.Y(), b.Pos.Z() + dz}
		if Collides(w, next) {
			b.Vel[2] = 0
		} else {
			b.Pos = next
		}
	}

	b.Vel[0] *= cfg.Friction
	b.Vel[2] *= cfg.Friction

	return Grounded(w, b.Pos)
}

// snapToFloor lands a falling body on the boundary of the cell it hit. A
// fast fall can cross more than one cell, so the snap climbs until the body
// is clear.
func snapToFloor(w World, cur, next mgl64.Vec3) mgl64.Vec3 {
	y := float64(coords.Floor(next.Y()) + 1)
	for i := 0; i < 4 && y < cur.Y(); i++ {
		candidate := mgl64.Vec3{next.X(), y, next.Z()}
		if !Collides(w, candidate) {
			return candidate
		}
		y++
	}
	return cur
}

// Grounded probes just below the feet at the center and the four face
// midpoints. An agent standing on a cell edge still counts as grounded.
func Grounded(w World, pos mgl64.Vec3) bool {
	y := pos.Y() - groundProbe
	probes := [5][2]float64{
		{0, 0},
		{-halfWidth, 0},
		{halfWidth, 0},
		{0, -halfWidth},
		{0, halfWidth},
	}
	for _, p := range probes {
		if solidAt(w, pos.X()+p[0], y, pos.Z()+p[1]) {
			return true
		}
	}
	return false
}
