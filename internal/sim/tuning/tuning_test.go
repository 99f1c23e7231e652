package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadOverridesAndKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "tick_rate_hz: 20\nphysics:\n  gravity: 30\nterrain:\n  sea_level: 48\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tn, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tn.Physics.Gravity != 30 {
		t.Fatalf("gravity override lost: %v", tn.Physics.Gravity)
	}
	if tn.Terrain.SeaLevel != 48 {
		t.Fatalf("sea_level override lost: %d", tn.Terrain.SeaLevel)
	}
	// Untouched fields keep defaults.
	if tn.Physics.Friction != Defaults().Physics.Friction {
		t.Fatalf("friction default lost: %v", tn.Physics.Friction)
	}
	if err := tn.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	mutate := []func(*Tuning){
		func(t *Tuning) { t.TickRateHz = 0 },
		func(t *Tuning) { t.Physics.Gravity = -1 },
		func(t *Tuning) { t.Physics.Friction = 1.0 },
		func(t *Tuning) { t.Physics.Friction = 0 },
		func(t *Tuning) { t.Physics.RaycastStep = 0 },
		func(t *Tuning) { t.Terrain.SeaLevel = -3 },
		func(t *Tuning) { t.Terrain.SeaLevel = 400 },
		func(t *Tuning) { t.Terrain.HeightScale = 0 },
		func(t *Tuning) { t.Terrain.TreeThreshold = 1.5 },
		func(t *Tuning) { t.Terrain.FlowerBand = [2]float64{0.9, 0.2} },
		func(t *Tuning) { t.Terrain.FlowerBand = t.Terrain.TallGrassBand },
		func(t *Tuning) { t.Terrain.SpawnRadius = 0 },
		func(t *Tuning) { t.Terrain.HeightAmplitude = 70 },
	}
	for i, m := range mutate {
		tn := Defaults()
		m(&tn)
		if err := tn.Validate(); err == nil {
			t.Fatalf("case %d: Validate passed, want error", i)
		}
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	tn, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("want os error for missing file")
	}
	if !os.IsNotExist(err) {
		t.Fatalf("want not-exist error, got %v", err)
	}
	// The returned value is still the usable default set.
	if err := tn.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
