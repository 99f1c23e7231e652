package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/clawcraft-master/clawcraft/internal/sim/tuning"
)

// gridWorld is a sparse solid-cell map for collision tests.
type gridWorld map[Voxel]bool

func (g gridWorld) Solid(x, y, z int) bool { return g[Voxel{x, y, z}] }

func (g gridWorld) fill(x0, x1, y0, y1, z0, z1 int) gridWorld {
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			for z := z0; z <= z1; z++ {
				g[Voxel{x, y, z}] = true
			}
		}
	}
	return g
}

// floorWorld is a flat solid layer at cell y=64 under everything.
func floorWorld() gridWorld {
	return gridWorld{}.fill(-20, 20, 64, 64, -20, 20)
}

const dt = 0.05

func TestFallSnapsToSurface(t *testing.T) {
	w := floorWorld()
	cfg := tuning.Defaults().Physics
	b := &Body{Pos: mgl64.Vec3{0.5, 70, 0.5}}

	landed := -1
	for i := 0; i < 200; i++ {
		if Step(w, b, dt, cfg) {
			landed = i
			break
		}
	}
	if landed < 0 {
		t.Fatalf("body never landed, y=%v", b.Pos.Y())
	}
	if b.Pos.Y() != 65.0 {
		t.Fatalf("landed at y=%v, want exactly 65.0", b.Pos.Y())
	}
	if b.Vel.Y() != 0 {
		t.Fatalf("vertical velocity %v after landing, want 0", b.Vel.Y())
	}

	// Staying put: further steps leave the body grounded at the same height.
	for i := 0; i < 20; i++ {
		if !Step(w, b, dt, cfg) {
			t.Fatalf("body left the ground on idle step %d", i)
		}
	}
	if b.Pos.Y() != 65.0 {
		t.Fatalf("idle body drifted to y=%v", b.Pos.Y())
	}
}

func TestTerminalVelocityClamp(t *testing.T) {
	w := gridWorld{}
	cfg := tuning.Defaults().Physics
	b := &Body{Pos: mgl64.Vec3{0.5, 10000, 0.5}}
	for i := 0; i < 500; i++ {
		Step(w, b, dt, cfg)
	}
	if got := b.Vel.Y(); got != -cfg.TerminalVelocity {
		t.Fatalf("fall speed %v, want clamp at %v", got, -cfg.TerminalVelocity)
	}
}

func TestWallBlocksOneAxisOnly(t *testing.T) {
	w := floorWorld().fill(3, 3, 65, 66, -20, 20)
	cfg := tuning.Defaults().Physics
	b := &Body{Pos: mgl64.Vec3{1.5, 65, 0.5}}

	// Walk diagonally into the x wall; z keeps advancing after x stops.
	for i := 0; i < 40; i++ {
		b.Vel[0] = cfg.WalkSpeed
		b.Vel[2] = cfg.WalkSpeed
		Step(w, b, dt, cfg)
	}
	if max := 3.0 - halfWidth; b.Pos.X() > max+1e-9 {
		t.Fatalf("body penetrated wall: x=%v, limit %v", b.Pos.X(), max)
	}
	if b.Pos.Z() < 4 {
		t.Fatalf("z axis stalled at %v while x was blocked", b.Pos.Z())
	}
	if b.Pos.Y() != 65.0 {
		t.Fatalf("y drifted to %v during wall slide", b.Pos.Y())
	}
}

func TestSingleBlockStepIsNotClimbed(t *testing.T) {
	w := floorWorld().fill(5, 5, 65, 65, 0, 0)
	cfg := tuning.Defaults().Physics
	b := &Body{Pos: mgl64.Vec3{3.5, 65, 0.5}}
	for i := 0; i < 40; i++ {
		b.Vel[0] = cfg.WalkSpeed
		Step(w, b, dt, cfg)
	}
	if b.Pos.X() >= 5.0-halfWidth+1e-9 {
		t.Fatalf("body walked through a block step, x=%v", b.Pos.X())
	}
	if b.Pos.Y() != 65.0 {
		t.Fatalf("body climbed to y=%v", b.Pos.Y())
	}
}

func TestCeilingStopsJump(t *testing.T) {
	w := floorWorld().fill(-2, 2, 67, 67, -2, 2)
	cfg := tuning.Defaults().Physics
	b := &Body{Pos: mgl64.Vec3{0.5, 65, 0.5}}
	b.Vel[1] = cfg.JumpSpeed

	peak := b.Pos.Y()
	for i := 0; i < 40; i++ {
		Step(w, b, dt, cfg)
		if b.Pos.Y() > peak {
			peak = b.Pos.Y()
		}
	}
	// Head (1.8 above feet) must never enter the ceiling layer at y=67.
	if peak+Height >= 67.0+1e-9 {
		t.Fatalf("head reached %v, ceiling at 67", peak+Height)
	}
	if !Grounded(w, b.Pos) {
		t.Fatalf("body did not come back down, y=%v", b.Pos.Y())
	}
}

func TestFrictionDecaysHorizontalVelocity(t *testing.T) {
	w := floorWorld()
	cfg := tuning.Defaults().Physics
	b := &Body{Pos: mgl64.Vec3{0.5, 65, 0.5}, Vel: mgl64.Vec3{4, 0, 0}}

	Step(w, b, dt, cfg)
	want := 4 * cfg.Friction
	if math.Abs(b.Vel.X()-want) > 1e-12 {
		t.Fatalf("vx after one step %v, want %v", b.Vel.X(), want)
	}
	for i := 0; i < 400; i++ {
		Step(w, b, dt, cfg)
	}
	if math.Abs(b.Vel.X()) > 1e-6 {
		t.Fatalf("vx never decayed: %v", b.Vel.X())
	}
}

func TestGroundedProbes(t *testing.T) {
	w := floorWorld()
	if !Grounded(w, mgl64.Vec3{0.5, 65, 0.5}) {
		t.Fatalf("standing body not grounded")
	}
	if Grounded(w, mgl64.Vec3{0.5, 65.2, 0.5}) {
		t.Fatalf("hovering body reported grounded")
	}

	// Standing on a single cell edge: center probe misses, side probe hits.
	edge := gridWorld{}.fill(0, 0, 64, 64, 0, 0)
	if !Grounded(edge, mgl64.Vec3{1.2, 65, 0.5}) {
		t.Fatalf("edge overhang not grounded")
	}
	if Grounded(edge, mgl64.Vec3{2.5, 65, 0.5}) {
		t.Fatalf("body beside the cell reported grounded")
	}
}

func TestRaycastFaces(t *testing.T) {
	w := gridWorld{}.fill(5, 5, 64, 64, 5, 5)

	hit, ok := Raycast(w, mgl64.Vec3{5.5, 66.5, 5.5}, mgl64.Vec3{0, -1, 0}, 6, 0.05)
	if !ok {
		t.Fatalf("downward ray missed")
	}
	if hit.Block != (Voxel{5, 64, 5}) || hit.Normal != [3]int{0, 1, 0} {
		t.Fatalf("downward ray: block %v normal %v", hit.Block, hit.Normal)
	}

	hit, ok = Raycast(w, mgl64.Vec3{3.5, 64.5, 5.5}, mgl64.Vec3{1, 0, 0}, 6, 0.05)
	if !ok {
		t.Fatalf("sideways ray missed")
	}
	if hit.Block != (Voxel{5, 64, 5}) || hit.Normal != [3]int{-1, 0, 0} {
		t.Fatalf("sideways ray: block %v normal %v", hit.Block, hit.Normal)
	}

	hit, ok = Raycast(w, mgl64.Vec3{5.5, 64.5, 8.5}, mgl64.Vec3{0, 0, -1}, 6, 0.05)
	if !ok {
		t.Fatalf("z ray missed")
	}
	if hit.Normal != [3]int{0, 0, 1} {
		t.Fatalf("z ray normal %v", hit.Normal)
	}
}

func TestRaycastRangeAndDegenerateInput(t *testing.T) {
	w := gridWorld{}.fill(5, 5, 64, 64, 5, 5)

	if _, ok := Raycast(w, mgl64.Vec3{5.5, 80, 5.5}, mgl64.Vec3{0, 1, 0}, 6, 0.05); ok {
		t.Fatalf("upward ray into empty space hit something")
	}
	// Block is ~10 away, range is 6.
	if _, ok := Raycast(w, mgl64.Vec3{5.5, 75, 5.5}, mgl64.Vec3{0, -1, 0}, 6, 0.05); ok {
		t.Fatalf("ray hit beyond its range")
	}
	if _, ok := Raycast(w, mgl64.Vec3{5.5, 66, 5.5}, mgl64.Vec3{0, 0, 0}, 6, 0.05); ok {
		t.Fatalf("zero direction produced a hit")
	}

	// Origin inside a solid cell reports that cell with no face.
	hit, ok := Raycast(w, mgl64.Vec3{5.5, 64.5, 5.5}, mgl64.Vec3{0, -1, 0}, 6, 0.05)
	if !ok || hit.Block != (Voxel{5, 64, 5}) || hit.Normal != [3]int{0, 0, 0} {
		t.Fatalf("inside-solid ray: %v ok=%v", hit, ok)
	}
}

func TestLookDirAxes(t *testing.T) {
	cases := []struct {
		yaw, pitch float64
		want       mgl64.Vec3
	}{
		{0, 0, mgl64.Vec3{0, 0, 1}},
		{90, 0, mgl64.Vec3{1, 0, 0}},
		{0, 90, mgl64.Vec3{0, 1, 0}},
		{0, -90, mgl64.Vec3{0, -1, 0}},
	}
	for _, c := range cases {
		got := LookDir(c.yaw, c.pitch)
		if got.Sub(c.want).Len() > 1e-9 {
			t.Fatalf("LookDir(%v,%v) = %v, want %v", c.yaw, c.pitch, got, c.want)
		}
	}
}
