// Package chunk holds the in-memory world: generated-on-demand 16^3 block
// volumes plus the dirty bookkeeping the persistence layer drains. Memory is
// authoritative; the database only ever catches up.
package chunk

import (
	"errors"
	"sort"
	"sync"

	"github.com/clawcraft-master/clawcraft/internal/sim/catalogs"
	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
	"github.com/clawcraft-master/clawcraft/internal/sim/terrain"
)

var (
	ErrOutOfWorld     = errors.New("position outside the world")
	ErrIndestructible = errors.New("block is indestructible")
	ErrBadChunkSize   = errors.New("chunk data must be 4096 bytes")
)

type Store struct {
	gen    *terrain.Generator
	blocks *catalogs.BlockCatalog

	mu     sync.RWMutex
	chunks map[coords.ChunkPos]*Chunk

	dirtyMu sync.Mutex
	dirty   map[coords.ChunkPos]struct{}
}

func NewStore(gen *terrain.Generator, blocks *catalogs.BlockCatalog) *Store {
	return &Store{
		gen:    gen,
		blocks: blocks,
		chunks: make(map[coords.ChunkPos]*Chunk),
		dirty:  make(map[coords.ChunkPos]struct{}),
	}
}

func (s *Store) Blocks() *catalogs.BlockCatalog { return s.blocks }

// GetOrCreate returns the chunk at pos, generating it if absent. Freshly
// generated chunks are not dirty. Concurrent callers may both generate; the
// loser discards its buffer, so every caller sees the same chunk.
func (s *Store) GetOrCreate(pos coords.ChunkPos) *Chunk {
	s.mu.RLock()
	ch, ok := s.chunks[pos]
	s.mu.RUnlock()
	if ok {
		return ch
	}

	buf := s.gen.Generate(pos)
	s.mu.Lock()
	if existing, ok := s.chunks[pos]; ok {
		s.mu.Unlock()
		return existing
	}
	ch = &Chunk{Pos: pos}
	copy(ch.blocks[:], buf)
	s.chunks[pos] = ch
	s.mu.Unlock()
	return ch
}

// Lookup returns an already-loaded chunk without triggering generation.
func (s *Store) Lookup(pos coords.ChunkPos) (*Chunk, bool) {
	s.mu.RLock()
	ch, ok := s.chunks[pos]
	s.mu.RUnlock()
	return ch, ok
}

// GetBlock reads one world cell. Positions outside the vertical range are
// air; anything else loads or generates the owning chunk.
func (s *Store) GetBlock(wx, wy, wz int) byte {
	if wy < 0 || wy >= coords.WorldHeight {
		return catalogs.Air
	}
	ch := s.GetOrCreate(coords.WorldToChunk(wx, wy, wz))
	lx, ly, lz := coords.WorldToLocal(wx, wy, wz)
	return ch.Get(lx, ly, lz)
}

// SetBlock writes one world cell and marks the owning chunk dirty. Writes
// outside the world fail, as does replacing an indestructible block. Writing
// the value already present succeeds without dirtying anything.
func (s *Store) SetBlock(wx, wy, wz int, id byte) error {
	if wy < 0 || wy >= coords.WorldHeight {
		return ErrOutOfWorld
	}
	pos := coords.WorldToChunk(wx, wy, wz)
	ch := s.GetOrCreate(pos)
	lx, ly, lz := coords.WorldToLocal(wx, wy, wz)
	changed, err := ch.set(lx, ly, lz, id, s.blocks)
	if err != nil {
		return err
	}
	if changed {
		s.dirtyMu.Lock()
		s.dirty[pos] = struct{}{}
		s.dirtyMu.Unlock()
	}
	return nil
}

// Solid reports whether the block at a world cell blocks movement. Unknown
// ids count as solid.
func (s *Store) Solid(wx, wy, wz int) bool {
	return s.blocks.Solid(s.GetBlock(wx, wy, wz))
}

// DirtySnapshot is one modified chunk captured for persistence.
type DirtySnapshot struct {
	Pos  coords.ChunkPos
	Key  string
	Data []byte
}

// DrainDirty returns a snapshot of every chunk modified since the previous
// drain and clears the set, so each mutation is handed over exactly once.
// A chunk modified again after a drain shows up in the next one.
func (s *Store) DrainDirty() []DirtySnapshot {
	s.dirtyMu.Lock()
	pending := s.dirty
	s.dirty = make(map[coords.ChunkPos]struct{})
	s.dirtyMu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	out := make([]DirtySnapshot, 0, len(pending))
	for pos := range pending {
		ch, ok := s.Lookup(pos)
		if !ok {
			continue
		}
		out = append(out, DirtySnapshot{Pos: pos, Key: pos.Key(), Data: ch.Snapshot()})
	}
	sort.Slice(out, func(i, j int) bool { return lessPos(out[i].Pos, out[j].Pos) })
	return out
}

// Adopt installs persisted chunk data without marking it dirty. Used when
// hydrating the store from the database at startup.
func (s *Store) Adopt(pos coords.ChunkPos, data []byte) error {
	if !pos.InWorld() {
		return ErrOutOfWorld
	}
	if len(data) != coords.ChunkVolume {
		return ErrBadChunkSize
	}
	s.mu.Lock()
	ch, ok := s.chunks[pos]
	if !ok {
		ch = &Chunk{Pos: pos}
		s.chunks[pos] = ch
	}
	s.mu.Unlock()
	ch.adopt(data)
	return nil
}

// Keys lists loaded chunk positions in deterministic order.
func (s *Store) Keys() []coords.ChunkPos {
	s.mu.RLock()
	keys := make([]coords.ChunkPos, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return lessPos(keys[i], keys[j]) })
	return keys
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *Store) DirtyCount() int {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	return len(s.dirty)
}

func lessPos(a, b coords.ChunkPos) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
