// Package encoding holds the optional run-length wire codec for chunk
// payloads. The default chunk_data encoding is the raw 4096-byte buffer;
// clients opt into RLE at auth time.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeRLE encodes a block buffer into base64(varint pairs).
// The pairs are (block_id, run_len) repeated.
func EncodeRLE(ids []byte) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(b))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. maxLen bounds the decoded size so a
// malicious payload cannot balloon memory; pass 0 for no bound.
func DecodeRLE(b64 string, maxLen int) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []byte
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > 0xFF {
			return nil, fmt.Errorf("block id too large: %d", b)
		}
		if maxLen > 0 && len(out)+int(run) > maxLen {
			return nil, fmt.Errorf("decoded length exceeds %d", maxLen)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, byte(b))
		}
	}
	return out, nil
}
