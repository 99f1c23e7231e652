// Package chunkdb persists mutated chunks. The engine treats memory as
// authoritative and hands dirty chunks over in batches; a backend only has to
// store 4096-byte buffers by chunk key and give them all back at startup.
// Payloads are zstd-compressed at rest.
package chunkdb

import (
	"errors"
	"fmt"

	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
)

var ErrNotFound = errors.New("chunk not found")

// Record is one persisted chunk: the canonical key, its parsed position, and
// the uncompressed 4096-byte block buffer.
type Record struct {
	Key  string
	Pos  coords.ChunkPos
	Data []byte
}

// Backend is a key-value chunk store. SaveBatch is atomic where the medium
// allows it; a failed batch may be retried as a whole (saves are idempotent
// overwrites, so at-least-once delivery is safe).
type Backend interface {
	SaveBatch(recs []Record) error
	Load(key string) ([]byte, error)
	ForEach(fn func(rec Record) error) error
	Close() error
}

// Open selects a backend by name. The set is closed; cmd/server exposes it as
// a flag.
func Open(backend, path string) (Backend, error) {
	switch backend {
	case "sqlite":
		return OpenSQLite(path)
	case "badger":
		return OpenBadger(path)
	default:
		return nil, fmt.Errorf("chunkdb: unknown backend %q (want sqlite or badger)", backend)
	}
}
