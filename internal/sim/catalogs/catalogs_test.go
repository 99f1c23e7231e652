package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRegistry(t *testing.T) {
	c := Default()
	b := &c.Blocks

	if b.Palette[0] != "AIR" || b.Index["AIR"] != 0 {
		t.Fatalf("AIR must be palette id 0, got palette[0]=%q index=%d", b.Palette[0], b.Index["AIR"])
	}
	if Air != 0 {
		t.Fatalf("Air constant drifted: %d", Air)
	}
	if b.Solid(Air) {
		t.Fatalf("AIR must not be solid")
	}
	if name := b.Name(b.Bedrock); name != "BEDROCK" {
		t.Fatalf("bedrock id %d resolves to %q", b.Bedrock, name)
	}
	if !b.Indestructible(b.Bedrock) || !b.Solid(b.Bedrock) {
		t.Fatalf("bedrock flags wrong")
	}
	if b.Buildable(b.Bedrock) {
		t.Fatalf("bedrock must not be buildable")
	}

	// Exactly one indestructible id.
	count := 0
	for _, name := range b.Palette {
		if b.Defs[name].Indestructible {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("want 1 indestructible block, got %d", count)
	}

	if b.PaletteDigest == "" || b.DefsDigest == "" {
		t.Fatalf("missing digests")
	}
}

func TestDefaultMatchesShippedFile(t *testing.T) {
	path := filepath.Join("..", "..", "..", "data", "blocks.json")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("data/blocks.json not present: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if len(loaded.Blocks.Palette) != len(def.Blocks.Palette) {
		t.Fatalf("palette size drifted: file=%d builtin=%d", len(loaded.Blocks.Palette), len(def.Blocks.Palette))
	}
	for i, name := range def.Blocks.Palette {
		if loaded.Blocks.Palette[i] != name {
			t.Fatalf("palette[%d] drifted: file=%q builtin=%q", i, loaded.Blocks.Palette[i], name)
		}
		if loaded.Blocks.Defs[name] != def.Blocks.Defs[name] {
			t.Fatalf("def %q drifted: file=%+v builtin=%+v", name, loaded.Blocks.Defs[name], def.Blocks.Defs[name])
		}
	}
}

func TestLoadRejectsBrokenCatalogs(t *testing.T) {
	cases := map[string]string{
		"no_air":         `[{"id":"STONE","solid":true,"buildable":true},{"id":"BEDROCK","solid":true,"indestructible":true}]`,
		"solid_air":      `[{"id":"AIR","solid":true},{"id":"BEDROCK","solid":true,"indestructible":true}]`,
		"no_bedrock":     `[{"id":"AIR"},{"id":"STONE","solid":true,"buildable":true}]`,
		"two_bedrocks":   `[{"id":"AIR"},{"id":"A","solid":true,"indestructible":true},{"id":"B","solid":true,"indestructible":true}]`,
		"soft_bedrock":   `[{"id":"AIR"},{"id":"BEDROCK","solid":false,"indestructible":true}]`,
		"duplicate_id":   `[{"id":"AIR"},{"id":"X","solid":true},{"id":"X","solid":true},{"id":"BEDROCK","solid":true,"indestructible":true}]`,
		"empty_id":       `[{"id":"AIR"},{"id":"","solid":true},{"id":"BEDROCK","solid":true,"indestructible":true}]`,
		"not_json_array": `{"id":"AIR"}`,
	}
	dir := t.TempDir()
	for name, body := range cases {
		path := filepath.Join(dir, name+".json")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("case %q: Load succeeded, want error", name)
		}
	}
}

func TestUnknownIDIsSolidNotBuildable(t *testing.T) {
	b := &Default().Blocks
	id := byte(len(b.Palette)) // first unused id
	if !b.Solid(id) {
		t.Fatalf("unknown id must collide")
	}
	if b.Buildable(id) || b.Indestructible(id) {
		t.Fatalf("unknown id must not be buildable or indestructible")
	}
	if b.Name(id) != "" {
		t.Fatalf("unknown id has a name")
	}
}
