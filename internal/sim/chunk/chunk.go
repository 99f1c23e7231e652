package chunk

import (
	"crypto/sha256"
	"sync"

	"github.com/clawcraft-master/clawcraft/internal/sim/catalogs"
	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
)

// Chunk is a 16x16x16 block volume. All access goes through the methods; the
// per-chunk mutex means writers to different chunks never contend.
type Chunk struct {
	Pos coords.ChunkPos

	mu        sync.Mutex
	blocks    [coords.ChunkVolume]byte
	hash      [32]byte
	hashValid bool
}

func (c *Chunk) Get(lx, ly, lz int) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[coords.Index(lx, ly, lz)]
}

// set writes one cell. It refuses to replace an indestructible block with
// anything else; writing the same id back is a no-op and reports unchanged.
func (c *Chunk) set(lx, ly, lz int, id byte, blocks *catalogs.BlockCatalog) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := coords.Index(lx, ly, lz)
	cur := c.blocks[i]
	if cur == id {
		return false, nil
	}
	if blocks.Indestructible(cur) {
		return false, ErrIndestructible
	}
	c.blocks[i] = id
	c.hashValid = false
	return true, nil
}

// Snapshot copies the full 4096-byte buffer.
func (c *Chunk) Snapshot() []byte {
	out := make([]byte, coords.ChunkVolume)
	c.mu.Lock()
	copy(out, c.blocks[:])
	c.mu.Unlock()
	return out
}

// Digest is the sha256 of the block buffer, cached until the next write.
func (c *Chunk) Digest() [32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hashValid {
		c.hash = sha256.Sum256(c.blocks[:])
		c.hashValid = true
	}
	return c.hash
}

func (c *Chunk) adopt(data []byte) {
	c.mu.Lock()
	copy(c.blocks[:], data)
	c.hashValid = false
	c.mu.Unlock()
}
