package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]byte, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 10, 10, 10)

	enc := EncodeRLE(in)
	out, err := DecodeRLE(enc, 0)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_ChunkSizedBuffer(t *testing.T) {
	in := make([]byte, 4096)
	for i := range in {
		switch {
		case i < 256:
			in[i] = 1
		case i < 2048:
			in[i] = 2
		}
	}
	out, err := DecodeRLE(EncodeRLE(in), 4096)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != 4096 {
		t.Fatalf("len=%d want 4096", len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d", i)
		}
	}
}

func TestRLE_DecodeBounds(t *testing.T) {
	in := make([]byte, 200)
	enc := EncodeRLE(in)
	if _, err := DecodeRLE(enc, 100); err == nil {
		t.Fatalf("want length-bound error")
	}
	if _, err := DecodeRLE("not-base64!!", 0); err == nil {
		t.Fatalf("want base64 error")
	}
}
