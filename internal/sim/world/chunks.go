package world

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/clawcraft-master/clawcraft/internal/protocol"
	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
	simenc "github.com/clawcraft-master/clawcraft/internal/sim/encoding"
)

// ChunkData builds one chunk_data message for a canonical chunk key. Reads go
// straight to the store, so transports may call this off the loop goroutine.
func (w *World) ChunkData(key string, rle bool) (protocol.ChunkDataMsg, OpResult) {
	pos, err := coords.ParseKey(key)
	if err != nil {
		return protocol.ChunkDataMsg{}, w.rejected(opFail(protocol.ErrBadRequest, "bad chunk key"))
	}
	if !pos.InWorld() {
		return protocol.ChunkDataMsg{}, w.rejected(opFail(protocol.ErrInvalidTarget, "chunk outside world"))
	}

	ch := w.store.GetOrCreate(pos)
	buf := ch.Snapshot()
	digest := ch.Digest()

	encoding := protocol.EncodingRaw
	data := base64.StdEncoding.EncodeToString(buf)
	if rle {
		encoding = protocol.EncodingRLE
		data = simenc.EncodeRLE(buf)
	}
	return protocol.ChunkDataMsg{
		Type:            protocol.TypeChunkData,
		ProtocolVersion: protocol.Version,
		ChunkKey:        pos.Key(),
		CX:              pos.X,
		CY:              pos.Y,
		CZ:              pos.Z,
		Encoding:        encoding,
		Data:            data,
		Digest:          hex.EncodeToString(digest[:]),
	}, opOK()
}

// SpawnPos is where a fresh agent stands: on the platform beside the beacon.
func (w *World) SpawnPos() mgl64.Vec3 { return w.spawnPos() }

// Params describes the fixed shape of this world. Sent in auth_success and
// by the discrete transport's describe method.
func (w *World) Params() protocol.WorldParams {
	return protocol.WorldParams{
		TickRateHz:  w.cfg.Tuning.TickRateHz,
		ChunkSize:   [3]int{coords.ChunkSize, coords.ChunkSize, coords.ChunkSize},
		WorldHeight: coords.WorldHeight,
		SeaLevel:    w.cfg.Tuning.Terrain.SeaLevel,
		Seed:        w.cfg.Seed,
		BlockPalette: protocol.DigestRef{
			Digest: w.blocks.PaletteDigest,
			Count:  len(w.blocks.Palette),
		},
	}
}
