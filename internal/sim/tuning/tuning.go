// Package tuning holds the physics and terrain knobs loaded once at startup.
// A Tuning value is validated before the world is built and never mutated
// afterwards; bad values are a startup error, not a per-request one.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz"`

	Physics Physics `yaml:"physics"`
	Terrain Terrain `yaml:"terrain"`
}

type Physics struct {
	// Gravity in blocks/s^2, applied downward.
	Gravity float64 `yaml:"gravity"`
	// TerminalVelocity caps downward speed in blocks/s.
	TerminalVelocity float64 `yaml:"terminal_velocity"`
	// Friction multiplies horizontal velocity once per step, 0 < f < 1.
	Friction  float64 `yaml:"friction"`
	WalkSpeed float64 `yaml:"walk_speed"`
	JumpSpeed float64 `yaml:"jump_speed"`
	// RaycastStep is the fixed march step for block targeting, in blocks.
	RaycastStep  float64 `yaml:"raycast_step"`
	RaycastRange float64 `yaml:"raycast_range"`
}

type Terrain struct {
	SeaLevel   int `yaml:"sea_level"`
	BaseHeight int `yaml:"base_height"`

	// HeightScale is the fixed horizontal noise scale; HeightAmplitude the
	// half-range of terrain height around BaseHeight.
	HeightScale     float64 `yaml:"height_scale"`
	HeightAmplitude float64 `yaml:"height_amplitude"`

	TreeScale     float64 `yaml:"tree_scale"`
	TreeThreshold float64 `yaml:"tree_threshold"`

	VegetationScale float64 `yaml:"vegetation_scale"`
	// Disjoint [lo,hi) bands of the normalized vegetation sample.
	FlowerBand    [2]float64 `yaml:"flower_band"`
	TallGrassBand [2]float64 `yaml:"tall_grass_band"`

	SpawnRadius int `yaml:"spawn_radius"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz: 20,
		Physics: Physics{
			Gravity:          25.0,
			TerminalVelocity: 50.0,
			Friction:         0.85,
			WalkSpeed:        4.5,
			JumpSpeed:        8.0,
			RaycastStep:      0.05,
			RaycastRange:     6.0,
		},
		Terrain: Terrain{
			SeaLevel:        64,
			BaseHeight:      64,
			HeightScale:     0.008,
			HeightAmplitude: 12.0,
			TreeScale:       0.05,
			TreeThreshold:   0.62,
			VegetationScale: 0.11,
			FlowerBand:      [2]float64{0.78, 0.84},
			TallGrassBand:   [2]float64{0.84, 0.92},
			SpawnRadius:     8,
		},
	}
}

// Load reads tuning from a YAML file. Fields absent from the file keep their
// defaults; the result is validated by the caller via Validate.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tuning: tick_rate_hz %d out of range", t.TickRateHz)
	}
	p := t.Physics
	if p.Gravity <= 0 {
		return fmt.Errorf("tuning: gravity must be positive")
	}
	if p.TerminalVelocity <= 0 {
		return fmt.Errorf("tuning: terminal_velocity must be positive")
	}
	if p.Friction <= 0 || p.Friction >= 1 {
		return fmt.Errorf("tuning: friction %v must be in (0,1)", p.Friction)
	}
	if p.WalkSpeed <= 0 || p.JumpSpeed <= 0 {
		return fmt.Errorf("tuning: walk_speed and jump_speed must be positive")
	}
	if p.RaycastStep <= 0 || p.RaycastStep > 1 {
		return fmt.Errorf("tuning: raycast_step %v out of range", p.RaycastStep)
	}
	if p.RaycastRange <= 0 {
		return fmt.Errorf("tuning: raycast_range must be positive")
	}
	tr := t.Terrain
	if tr.SeaLevel < 1 || tr.SeaLevel > 254 {
		return fmt.Errorf("tuning: sea_level %d out of range", tr.SeaLevel)
	}
	if tr.BaseHeight < 1 || tr.BaseHeight > 254 {
		return fmt.Errorf("tuning: base_height %d out of range", tr.BaseHeight)
	}
	if tr.HeightScale <= 0 || tr.TreeScale <= 0 || tr.VegetationScale <= 0 {
		return fmt.Errorf("tuning: noise scales must be positive")
	}
	if tr.HeightAmplitude < 0 || int(tr.HeightAmplitude) >= tr.BaseHeight {
		return fmt.Errorf("tuning: height_amplitude %v out of range for base_height %d", tr.HeightAmplitude, tr.BaseHeight)
	}
	if tr.TreeThreshold < 0 || tr.TreeThreshold > 1 {
		return fmt.Errorf("tuning: tree_threshold %v out of range", tr.TreeThreshold)
	}
	for _, band := range [][2]float64{tr.FlowerBand, tr.TallGrassBand} {
		if band[0] < 0 || band[1] > 1 || band[0] >= band[1] {
			return fmt.Errorf("tuning: vegetation band %v invalid", band)
		}
	}
	if overlaps(tr.FlowerBand, tr.TallGrassBand) {
		return fmt.Errorf("tuning: flower_band and tall_grass_band overlap")
	}
	if tr.SpawnRadius < 2 || tr.SpawnRadius > 15 {
		return fmt.Errorf("tuning: spawn_radius %d out of range", tr.SpawnRadius)
	}
	return nil
}

func overlaps(a, b [2]float64) bool {
	return a[0] < b[1] && b[0] < a[1]
}
