package chunkdb

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
)

func openTestBackend(t *testing.T, name string) Backend {
	t.Helper()
	var path string
	switch name {
	case "sqlite":
		path = filepath.Join(t.TempDir(), "chunks.db")
	case "badger":
		path = filepath.Join(t.TempDir(), "chunks.badger")
	default:
		t.Fatalf("unknown test backend %q", name)
	}
	be, err := Open(name, path)
	if err != nil {
		t.Fatalf("Open(%s): %v", name, err)
	}
	t.Cleanup(func() { _ = be.Close() })
	return be
}

func testRecord(x, y, z int, fill byte) Record {
	pos := coords.ChunkPos{X: x, Y: y, Z: z}
	data := make([]byte, coords.ChunkVolume)
	for i := range data {
		data[i] = byte(i) ^ fill
	}
	return Record{Key: pos.Key(), Pos: pos, Data: data}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("bolt", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Fatalf("Open accepted an unknown backend")
	}
}

func TestOpenEmptyPath(t *testing.T) {
	for _, name := range []string{"sqlite", "badger"} {
		if _, err := Open(name, ""); err == nil {
			t.Fatalf("Open(%s, \"\") succeeded", name)
		}
	}
}

func TestBackendSaveLoad(t *testing.T) {
	for _, name := range []string{"sqlite", "badger"} {
		t.Run(name, func(t *testing.T) {
			be := openTestBackend(t, name)

			recs := []Record{
				testRecord(0, 4, 0, 0x11),
				testRecord(-1, 0, -2, 0x22),
				testRecord(7, 15, 7, 0x33),
			}
			if err := be.SaveBatch(recs); err != nil {
				t.Fatalf("SaveBatch: %v", err)
			}
			for _, want := range recs {
				got, err := be.Load(want.Key)
				if err != nil {
					t.Fatalf("Load(%s): %v", want.Key, err)
				}
				if !bytes.Equal(got, want.Data) {
					t.Fatalf("Load(%s) returned different data", want.Key)
				}
			}

			if _, err := be.Load("9,9,9"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Load missing: err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestBackendOverwriteKeepsNewest(t *testing.T) {
	for _, name := range []string{"sqlite", "badger"} {
		t.Run(name, func(t *testing.T) {
			be := openTestBackend(t, name)

			first := testRecord(2, 3, 2, 0x01)
			if err := be.SaveBatch([]Record{first}); err != nil {
				t.Fatalf("SaveBatch: %v", err)
			}
			second := testRecord(2, 3, 2, 0xFE)
			if err := be.SaveBatch([]Record{second}); err != nil {
				t.Fatalf("SaveBatch overwrite: %v", err)
			}

			got, err := be.Load(second.Key)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !bytes.Equal(got, second.Data) {
				t.Fatalf("overwrite did not stick")
			}
		})
	}
}

func TestBackendForEach(t *testing.T) {
	for _, name := range []string{"sqlite", "badger"} {
		t.Run(name, func(t *testing.T) {
			be := openTestBackend(t, name)

			recs := []Record{
				testRecord(1, 2, 3, 0x0A),
				testRecord(0, 4, 0, 0x0B),
				testRecord(-1, 0, 0, 0x0C),
			}
			if err := be.SaveBatch(recs); err != nil {
				t.Fatalf("SaveBatch: %v", err)
			}

			byKey := map[string]Record{}
			for _, r := range recs {
				byKey[r.Key] = r
			}

			var keys []string
			err := be.ForEach(func(rec Record) error {
				want, ok := byKey[rec.Key]
				if !ok {
					t.Fatalf("ForEach yielded unexpected key %q", rec.Key)
				}
				if rec.Pos != want.Pos {
					t.Fatalf("key %q parsed to %v, want %v", rec.Key, rec.Pos, want.Pos)
				}
				if !bytes.Equal(rec.Data, want.Data) {
					t.Fatalf("ForEach data mismatch for %q", rec.Key)
				}
				keys = append(keys, rec.Key)
				return nil
			})
			if err != nil {
				t.Fatalf("ForEach: %v", err)
			}
			if len(keys) != len(recs) {
				t.Fatalf("ForEach visited %d records, want %d", len(keys), len(recs))
			}
			// Both backends walk keys in byte order.
			for i := 1; i < len(keys); i++ {
				if keys[i-1] >= keys[i] {
					t.Fatalf("ForEach out of order: %q before %q", keys[i-1], keys[i])
				}
			}

			sentinel := errors.New("stop")
			if err := be.ForEach(func(Record) error { return sentinel }); !errors.Is(err, sentinel) {
				t.Fatalf("ForEach swallowed callback error: %v", err)
			}
		})
	}
}

func TestBackendSurvivesReopen(t *testing.T) {
	for _, name := range []string{"sqlite", "badger"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "chunks")

			be, err := Open(name, path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			rec := testRecord(5, 5, 5, 0x42)
			if err := be.SaveBatch([]Record{rec}); err != nil {
				t.Fatalf("SaveBatch: %v", err)
			}
			if err := be.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			be2, err := Open(name, path)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer be2.Close()
			got, err := be2.Load(rec.Key)
			if err != nil {
				t.Fatalf("Load after reopen: %v", err)
			}
			if !bytes.Equal(got, rec.Data) {
				t.Fatalf("data lost across reopen")
			}
		})
	}
}

func TestCompressRoundTrip(t *testing.T) {
	rec := testRecord(0, 0, 0, 0x5C)
	got, err := decompress(compress(rec.Data), coords.ChunkVolume)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, rec.Data) {
		t.Fatalf("round trip altered data")
	}
	if _, err := decompress([]byte("not zstd"), coords.ChunkVolume); err == nil {
		t.Fatalf("decompress accepted garbage")
	}
}
