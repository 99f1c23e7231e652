// Package catalogs loads the static block registry. The registry is built
// once at startup and treated as immutable; every component that needs block
// flags receives it explicitly.
package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

type Catalogs struct {
	Blocks BlockCatalog
}

type BlockCatalog struct {
	// Palette maps byte id -> block name. AIR is always id 0.
	Palette []string
	Index   map[string]byte
	Defs    map[string]BlockDef

	// Bedrock is the single indestructible id.
	Bedrock byte

	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID             string `json:"id"`
	Solid          bool   `json:"solid"`
	Transparent    bool   `json:"transparent"`
	Buildable      bool   `json:"buildable"`
	Indestructible bool   `json:"indestructible,omitempty"`
}

// Load reads a block catalog from a JSON file (an array of BlockDef).
func Load(path string) (*Catalogs, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("blocks catalog: %w", err)
	}
	var c Catalogs
	if err := buildBlocks(defs, raw, &c.Blocks); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the built-in registry, identical in content to
// data/blocks.json. Tests and the missing-file fallback use it.
func Default() *Catalogs {
	defs := defaultBlockDefs()
	raw, _ := json.Marshal(defs)
	var c Catalogs
	if err := buildBlocks(defs, raw, &c.Blocks); err != nil {
		// The built-in set is validated by tests; a failure here is a bug.
		panic(err)
	}
	return &c
}

func buildBlocks(defs []BlockDef, raw []byte, out *BlockCatalog) error {
	if len(defs) == 0 {
		return fmt.Errorf("blocks catalog: empty")
	}
	if len(defs) > 256 {
		return fmt.Errorf("blocks catalog: %d blocks, max 256", len(defs))
	}
	out.DefsDigest = sha256Hex(raw)
	out.Defs = make(map[string]BlockDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks catalog: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("blocks catalog: duplicate id %q", d.ID)
		}
		out.Defs[d.ID] = d
	}

	air, ok := out.Defs["AIR"]
	if !ok {
		return fmt.Errorf("blocks catalog: missing AIR")
	}
	if air.Solid || air.Buildable || air.Indestructible {
		return fmt.Errorf("blocks catalog: AIR must be non-solid, non-buildable, destructible")
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		if id != "AIR" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	// AIR is forced to palette id 0.
	out.Palette = append([]string{"AIR"}, ids...)
	out.Index = make(map[string]byte, len(out.Palette))
	for i, id := range out.Palette {
		out.Index[id] = byte(i)
	}

	bedrockCount := 0
	for _, name := range out.Palette {
		d := out.Defs[name]
		if d.Indestructible {
			bedrockCount++
			out.Bedrock = out.Index[name]
			if !d.Solid {
				return fmt.Errorf("blocks catalog: indestructible block %q must be solid", name)
			}
		}
	}
	if bedrockCount != 1 {
		return fmt.Errorf("blocks catalog: want exactly one indestructible block, got %d", bedrockCount)
	}

	palJSON, _ := json.Marshal(out.Palette)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

// Air is the reserved empty id.
const Air byte = 0

func (b *BlockCatalog) known(id byte) (BlockDef, bool) {
	if int(id) >= len(b.Palette) {
		return BlockDef{}, false
	}
	return b.Defs[b.Palette[id]], true
}

// Name returns the block name for an id, or "" for an unknown id.
func (b *BlockCatalog) Name(id byte) string {
	if int(id) >= len(b.Palette) {
		return ""
	}
	return b.Palette[id]
}

// Solid reports whether the id participates in collision. Unknown ids are
// treated as solid so a corrupt buffer cannot drop agents through the world.
func (b *BlockCatalog) Solid(id byte) bool {
	d, ok := b.known(id)
	if !ok {
		return true
	}
	return d.Solid
}

func (b *BlockCatalog) Transparent(id byte) bool {
	d, ok := b.known(id)
	if !ok {
		return false
	}
	return d.Transparent
}

func (b *BlockCatalog) Buildable(id byte) bool {
	d, ok := b.known(id)
	if !ok {
		return false
	}
	return d.Buildable
}

func (b *BlockCatalog) Indestructible(id byte) bool {
	d, ok := b.known(id)
	if !ok {
		return false
	}
	return d.Indestructible
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func defaultBlockDefs() []BlockDef {
	return []BlockDef{
		{ID: "AIR", Solid: false, Transparent: true, Buildable: false},
		{ID: "BEDROCK", Solid: true, Transparent: false, Buildable: false, Indestructible: true},
		{ID: "STONE", Solid: true, Transparent: false, Buildable: true},
		{ID: "DIRT", Solid: true, Transparent: false, Buildable: true},
		{ID: "GRASS", Solid: true, Transparent: false, Buildable: true},
		{ID: "SAND", Solid: true, Transparent: false, Buildable: true},
		{ID: "WATER", Solid: false, Transparent: true, Buildable: false},
		{ID: "WOOD", Solid: true, Transparent: false, Buildable: true},
		{ID: "LEAVES", Solid: true, Transparent: true, Buildable: true},
		{ID: "GLASS", Solid: true, Transparent: true, Buildable: true},
		{ID: "FLOWER", Solid: false, Transparent: true, Buildable: false},
		{ID: "TALL_GRASS", Solid: false, Transparent: true, Buildable: false},
		{ID: "BEACON", Solid: true, Transparent: false, Buildable: false},
	}
}
