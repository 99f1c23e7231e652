package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
)

// Voxel is an integer cell address.
type Voxel struct {
	X, Y, Z int
}

// Hit describes the first solid cell a ray reached. Normal is the unit axis
// of the face the ray entered through, pointing back toward the ray origin;
// it is zero when the origin itself sits inside a solid cell.
type Hit struct {
	Block  Voxel
	Normal [3]int
}

// Raycast marches from origin along dir in fixed steps of stepSize until it
// enters a solid cell or exceeds maxDist. The normal comes from the last
// grid boundary crossed before the solid cell.
func Raycast(w World, origin, dir mgl64.Vec3, maxDist, stepSize float64) (Hit, bool) {
	if dir.Len() == 0 || maxDist <= 0 || stepSize <= 0 {
		return Hit{}, false
	}
	dir = dir.Normalize()

	prev := voxelAt(origin)
	if w.Solid(prev.X, prev.Y, prev.Z) {
		return Hit{Block: prev}, true
	}

	for t := stepSize; t <= maxDist; t += stepSize {
		p := origin.Add(dir.Mul(t))
		cur := voxelAt(p)
		if cur == prev {
			continue
		}
		if w.Solid(cur.X, cur.Y, cur.Z) {
			return Hit{Block: cur, Normal: entryNormal(prev, cur, dir)}, true
		}
		prev = cur
	}
	return Hit{}, false
}

func voxelAt(p mgl64.Vec3) Voxel {
	return Voxel{X: coords.Floor(p.X()), Y: coords.Floor(p.Y()), Z: coords.Floor(p.Z())}
}

// entryNormal picks the face crossed between two voxels. A single step can
// cross a corner and change more than one axis; the axis the ray points
// along most strongly wins.
func entryNormal(prev, cur Voxel, dir mgl64.Vec3) [3]int {
	dx, dy, dz := prev.X-cur.X, prev.Y-cur.Y, prev.Z-cur.Z
	changed := 0
	if dx != 0 {
		changed++
	}
	if dy != 0 {
		changed++
	}
	if dz != 0 {
		changed++
	}
	if changed <= 1 {
		return [3]int{clampUnit(dx), clampUnit(dy), clampUnit(dz)}
	}
	ax, ay, az := math.Abs(dir.X()), math.Abs(dir.Y()), math.Abs(dir.Z())
	switch {
	case dx != 0 && ax >= ay && ax >= az:
		return [3]int{clampUnit(dx), 0, 0}
	case dy != 0 && ay >= az:
		return [3]int{0, clampUnit(dy), 0}
	default:
		return [3]int{0, 0, clampUnit(dz)}
	}
}

func clampUnit(v int) int {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}

// LookDir converts yaw and pitch in degrees into a unit view vector.
// Yaw 0 looks along +Z, yaw 90 along +X; pitch 90 is straight up.
func LookDir(yawDeg, pitchDeg float64) mgl64.Vec3 {
	yaw := mgl64.DegToRad(yawDeg)
	pitch := mgl64.DegToRad(pitchDeg)
	cp := math.Cos(pitch)
	return mgl64.Vec3{math.Sin(yaw) * cp, math.Sin(pitch), math.Cos(yaw) * cp}
}
