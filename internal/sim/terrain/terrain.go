// Package terrain synthesizes chunk contents. Generation is a pure function
// of (seed, chunk position): no clock, no shared RNG state, no store access.
// Both consumption modes share this one implementation.
package terrain

import (
	"fmt"

	"github.com/aquilax/go-perlin"

	"github.com/clawcraft-master/clawcraft/internal/sim/catalogs"
	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
	"github.com/clawcraft-master/clawcraft/internal/sim/tuning"
)

// Per-concern noise seeds are derived from the world seed with fixed offsets
// so height, tree and vegetation fields are independent of each other.
const (
	treeSeedOffset       = 101
	vegetationSeedOffset = 202
)

// Fractal shape shared by all three sources: 4 octaves, lacunarity 2,
// persistence 0.5 (go-perlin's beta/alpha/n parameters).
const (
	noiseAlpha   = 2.0
	noiseBeta    = 2.0
	noiseOctaves = 4
)

type Generator struct {
	seed int64
	cfg  tuning.Terrain

	height     *perlin.Perlin
	trees      *perlin.Perlin
	vegetation *perlin.Perlin

	ids   blockIDs
	spawn []spawnCell
}

type blockIDs struct {
	air       byte
	bedrock   byte
	stone     byte
	dirt      byte
	grass     byte
	sand      byte
	water     byte
	wood      byte
	leaves    byte
	flower    byte
	tallGrass byte
	beacon    byte
}

type spawnCell struct {
	x, y, z int
	id      byte
}

// New builds a generator for one world. The catalog must carry every block
// name the depth rule and decorations emit; a gap is a startup error.
func New(seed int64, cfg tuning.Terrain, blocks *catalogs.BlockCatalog) (*Generator, error) {
	g := &Generator{
		seed:       seed,
		cfg:        cfg,
		height:     perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctaves, seed),
		trees:      perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctaves, seed+treeSeedOffset),
		vegetation: perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctaves, seed+vegetationSeedOffset),
	}
	required := []struct {
		name string
		dst  *byte
	}{
		{"AIR", &g.ids.air},
		{"BEDROCK", &g.ids.bedrock},
		{"STONE", &g.ids.stone},
		{"DIRT", &g.ids.dirt},
		{"GRASS", &g.ids.grass},
		{"SAND", &g.ids.sand},
		{"WATER", &g.ids.water},
		{"WOOD", &g.ids.wood},
		{"LEAVES", &g.ids.leaves},
		{"FLOWER", &g.ids.flower},
		{"TALL_GRASS", &g.ids.tallGrass},
		{"BEACON", &g.ids.beacon},
	}
	for _, r := range required {
		id, ok := blocks.Index[r.name]
		if !ok {
			return nil, fmt.Errorf("terrain: catalog missing block %q", r.name)
		}
		*r.dst = id
	}
	g.spawn = g.buildSpawnCells()
	return g, nil
}

func (g *Generator) Seed() int64 { return g.seed }

// HeightAt returns the terrain surface height for a column.
func (g *Generator) HeightAt(wx, wz int) int {
	v := g.height.Noise2D(float64(wx)*g.cfg.HeightScale, float64(wz)*g.cfg.HeightScale)
	h := g.cfg.BaseHeight + int(roundHalfAway(v*g.cfg.HeightAmplitude))
	if h < 1 {
		h = 1
	}
	if h > coords.WorldHeight-2 {
		h = coords.WorldHeight - 2
	}
	return h
}

// Generate produces the 4096-byte buffer for one chunk. It never fails;
// chunks outside the vertical world range come back all air.
func (g *Generator) Generate(pos coords.ChunkPos) []byte {
	buf := make([]byte, coords.ChunkVolume)
	if !pos.InWorld() {
		return buf
	}

	baseX := pos.X * coords.ChunkSize
	baseY := pos.Y * coords.ChunkSize
	baseZ := pos.Z * coords.ChunkSize

	var heights [coords.ChunkSize][coords.ChunkSize]int
	for lz := 0; lz < coords.ChunkSize; lz++ {
		for lx := 0; lx < coords.ChunkSize; lx++ {
			h := g.HeightAt(baseX+lx, baseZ+lz)
			heights[lz][lx] = h
			for ly := 0; ly < coords.ChunkSize; ly++ {
				buf[coords.Index(lx, ly, lz)] = g.columnBlock(baseY+ly, h)
			}
		}
	}

	g.applySpawnPlatform(buf, pos)
	g.applyTrees(buf, pos)
	g.applyVegetation(buf, pos, &heights)
	return buf
}

// columnBlock implements the depth rule for one world Y in a column of
// height h.
func (g *Generator) columnBlock(wy, h int) byte {
	switch {
	case wy == 0:
		return g.ids.bedrock
	case wy < h-4:
		return g.ids.stone
	case wy < h:
		return g.ids.dirt
	case wy == h:
		if h < g.cfg.SeaLevel-2 {
			return g.ids.sand
		}
		return g.ids.grass
	case wy <= g.cfg.SeaLevel && h < g.cfg.SeaLevel:
		return g.ids.water
	default:
		return g.ids.air
	}
}

// spawnHeadroom is how many cleared blocks sit above the platform surface.
const spawnHeadroom = 4

func (g *Generator) buildSpawnCells() []spawnCell {
	r := g.cfg.SpawnRadius
	base := g.cfg.BaseHeight
	var cells []spawnCell

	// Checkerboard disc plus cleared headroom. These writes are forced, so
	// order matters: furniture goes in after the clearing.
	for dz := -r; dz <= r; dz++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dz*dz > r*r {
				continue
			}
			id := g.ids.stone
			if (dx+dz)&1 != 0 {
				id = g.ids.dirt
			}
			cells = append(cells, spawnCell{dx, base, dz, id})
			for dy := 1; dy <= spawnHeadroom; dy++ {
				cells = append(cells, spawnCell{dx, base + dy, dz, g.ids.air})
			}
		}
	}

	// Corner pillars capped with leaves.
	p := r - 2
	for _, sx := range []int{-p, p} {
		for _, sz := range []int{-p, p} {
			for dy := 1; dy <= 3; dy++ {
				cells = append(cells, spawnCell{sx, base + dy, sz, g.ids.wood})
			}
			cells = append(cells, spawnCell{sx, base + 4, sz, g.ids.leaves})
		}
	}

	// Central beacon column.
	for dy := 1; dy <= 3; dy++ {
		cells = append(cells, spawnCell{0, base + dy, 0, g.ids.beacon})
	}
	return cells
}

func (g *Generator) applySpawnPlatform(buf []byte, pos coords.ChunkPos) {
	r := g.cfg.SpawnRadius
	minX, maxX := pos.X*coords.ChunkSize, pos.X*coords.ChunkSize+coords.ChunkSize-1
	minY, maxY := pos.Y*coords.ChunkSize, pos.Y*coords.ChunkSize+coords.ChunkSize-1
	minZ, maxZ := pos.Z*coords.ChunkSize, pos.Z*coords.ChunkSize+coords.ChunkSize-1
	if maxX < -r || minX > r || maxZ < -r || minZ > r {
		return
	}
	if maxY < g.cfg.BaseHeight || minY > g.cfg.BaseHeight+spawnHeadroom {
		return
	}
	for _, c := range g.spawn {
		if c.x < minX || c.x > maxX || c.y < minY || c.y > maxY || c.z < minZ || c.z > maxZ {
			continue
		}
		lx, ly, lz := coords.WorldToLocal(c.x, c.y, c.z)
		buf[coords.Index(lx, ly, lz)] = c.id
	}
}

// Trees sit on a 5-block candidate grid. Candidates from neighboring chunks
// are considered too, so a canopy crossing a chunk border comes out the same
// no matter which side generates first.
const (
	treeGrid     = 5
	canopyReach  = 3
	trunkMin     = 4
	maxTreeReach = trunkMin + 1 + canopyReach
)

func (g *Generator) applyTrees(buf []byte, pos coords.ChunkPos) {
	minX := pos.X*coords.ChunkSize - canopyReach
	maxX := pos.X*coords.ChunkSize + coords.ChunkSize - 1 + canopyReach
	minZ := pos.Z*coords.ChunkSize - canopyReach
	maxZ := pos.Z*coords.ChunkSize + coords.ChunkSize - 1 + canopyReach
	minY := pos.Y * coords.ChunkSize
	maxY := minY + coords.ChunkSize - 1

	for wz := alignDown(minZ, treeGrid); wz <= maxZ; wz += treeGrid {
		for wx := alignDown(minX, treeGrid); wx <= maxX; wx += treeGrid {
			// Keep the spawn platform clear of trunks.
			if coords.AbsInt(wx) <= g.cfg.SpawnRadius && coords.AbsInt(wz) <= g.cfg.SpawnRadius {
				continue
			}
			h := g.HeightAt(wx, wz)
			if h < g.cfg.SeaLevel {
				continue
			}
			// Skip chunk layers the tree cannot touch.
			if h+1 > maxY || h+maxTreeReach < minY {
				continue
			}
			tn := normalize(g.trees.Noise2D(float64(wx)*g.cfg.TreeScale, float64(wz)*g.cfg.TreeScale))
			if tn <= g.cfg.TreeThreshold {
				continue
			}
			trunk := trunkMin + int(coords.Hash2(g.seed, wx, wz)%2)
			g.writeTree(buf, pos, wx, wz, h, trunk)
		}
	}
}

func (g *Generator) writeTree(buf []byte, pos coords.ChunkPos, wx, wz, h, trunk int) {
	for dy := 1; dy <= trunk; dy++ {
		g.placeIfAir(buf, pos, wx, h+dy, wz, g.ids.wood)
	}
	// Rounded canopy around the trunk top; trunk column cells at or below the
	// center stay wood.
	topY := h + trunk
	for dy := -canopyReach; dy <= canopyReach; dy++ {
		for dz := -canopyReach; dz <= canopyReach; dz++ {
			for dx := -canopyReach; dx <= canopyReach; dx++ {
				dist := coords.AbsInt(dx) + coords.AbsInt(dy) + coords.AbsInt(dz)
				if dist > canopyReach {
					continue
				}
				if dx == 0 && dz == 0 && dy <= 0 {
					continue
				}
				// Ragged edge: the outermost shell drops a quarter of its
				// cells, keyed on the world cell so chunk borders agree.
				if dist == canopyReach && coords.Hash3(g.seed, wx+dx, topY+dy, wz+dz)%4 == 0 {
					continue
				}
				g.placeIfAir(buf, pos, wx+dx, topY+dy, wz+dz, g.ids.leaves)
			}
		}
	}
}

func (g *Generator) applyVegetation(buf []byte, pos coords.ChunkPos, heights *[coords.ChunkSize][coords.ChunkSize]int) {
	baseX := pos.X * coords.ChunkSize
	baseY := pos.Y * coords.ChunkSize
	baseZ := pos.Z * coords.ChunkSize
	for lz := 0; lz < coords.ChunkSize; lz++ {
		for lx := 0; lx < coords.ChunkSize; lx++ {
			wx, wz := baseX+lx, baseZ+lz
			if coords.AbsInt(wx) <= g.cfg.SpawnRadius && coords.AbsInt(wz) <= g.cfg.SpawnRadius {
				continue
			}
			h := heights[lz][lx]
			if h < g.cfg.SeaLevel {
				continue
			}
			wy := h + 1
			if wy < baseY || wy >= baseY+coords.ChunkSize {
				continue
			}
			v := normalize(g.vegetation.Noise2D(float64(wx)*g.cfg.VegetationScale, float64(wz)*g.cfg.VegetationScale))
			var id byte
			switch {
			case v >= g.cfg.FlowerBand[0] && v < g.cfg.FlowerBand[1]:
				id = g.ids.flower
			case v >= g.cfg.TallGrassBand[0] && v < g.cfg.TallGrassBand[1]:
				id = g.ids.tallGrass
			default:
				continue
			}
			g.placeIfAir(buf, pos, wx, wy, wz, id)
		}
	}
}

// placeIfAir writes a decoration block if the target cell falls inside this
// chunk and currently holds air. Decorations never overwrite terrain.
func (g *Generator) placeIfAir(buf []byte, pos coords.ChunkPos, wx, wy, wz int, id byte) {
	if coords.WorldToChunk(wx, wy, wz) != pos {
		return
	}
	lx, ly, lz := coords.WorldToLocal(wx, wy, wz)
	i := coords.Index(lx, ly, lz)
	if buf[i] != g.ids.air {
		return
	}
	buf[i] = id
}

func alignDown(a, step int) int {
	return coords.FloorDiv(a, step) * step
}

// normalize maps a noise sample from [-1,1] into [0,1], clamped.
func normalize(v float64) float64 {
	v = (v + 1) / 2
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundHalfAway(v float64) float64 {
	if v >= 0 {
		return float64(int(v + 0.5))
	}
	return float64(int(v - 0.5))
}
