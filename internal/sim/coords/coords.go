// Package coords is the coordinate model: conversions between world, chunk
// and local block coordinates, the canonical chunk key, and the flat chunk
// buffer index. No other package computes chunk indices directly.
package coords

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// ChunkSize is a wire contract constant; changing it is a breaking change.
	ChunkSize   = 16
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize

	// World vertical bounds. Chunks with cy outside [0, WorldChunksY) are not
	// representable: reads there are air, writes are rejected.
	WorldChunksY = 16
	WorldHeight  = WorldChunksY * ChunkSize
)

// ChunkPos identifies one 16^3 chunk.
type ChunkPos struct {
	X int
	Y int
	Z int
}

// Key returns the canonical "cx,cy,cz" form used for persistence lookup.
func (p ChunkPos) Key() string {
	return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z)
}

func (p ChunkPos) InWorld() bool {
	return p.Y >= 0 && p.Y < WorldChunksY
}

// ParseKey is the inverse of Key.
func ParseKey(key string) (ChunkPos, error) {
	parts := strings.Split(key, ",")
	if len(parts) != 3 {
		return ChunkPos{}, fmt.Errorf("chunk key %q: want 3 components", key)
	}
	var v [3]int
	for i, s := range parts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return ChunkPos{}, fmt.Errorf("chunk key %q: %w", key, err)
		}
		v[i] = n
	}
	return ChunkPos{X: v[0], Y: v[1], Z: v[2]}, nil
}

// WorldToChunk maps a world block coordinate to its owning chunk.
func WorldToChunk(x, y, z int) ChunkPos {
	return ChunkPos{
		X: FloorDiv(x, ChunkSize),
		Y: FloorDiv(y, ChunkSize),
		Z: FloorDiv(z, ChunkSize),
	}
}

// WorldToLocal maps a world block coordinate to its offset within the chunk,
// ((v % 16) + 16) % 16 per axis, correct for negative inputs.
func WorldToLocal(x, y, z int) (lx, ly, lz int) {
	return Mod(x, ChunkSize), Mod(y, ChunkSize), Mod(z, ChunkSize)
}

// Index addresses the flat 4096-byte chunk buffer: lx + ly*16 + lz*256.
// Valid only for 0 <= lx,ly,lz < 16.
func Index(lx, ly, lz int) int {
	return lx + ly*ChunkSize + lz*ChunkSize*ChunkSize
}

// Floor truncates a continuous coordinate to the integer block containing it.
func Floor(v float64) int {
	return int(math.Floor(v))
}

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
