package chunkdb

import "github.com/klauspost/compress/zstd"

// Stateless zstd codecs shared by the backends. EncodeAll/DecodeAll with a nil
// writer/reader is the documented concurrent-safe mode.
var (
	zstdEnc, _ = zstd.NewWriter(nil)
	zstdDec, _ = zstd.NewReader(nil)
)

func compress(raw []byte) []byte {
	return zstdEnc.EncodeAll(raw, make([]byte, 0, len(raw)/4))
}

func decompress(blob []byte, want int) ([]byte, error) {
	raw, err := zstdDec.DecodeAll(blob, make([]byte, 0, want))
	if err != nil {
		return nil, err
	}
	return raw, nil
}
