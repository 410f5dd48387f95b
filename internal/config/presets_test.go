package config

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nvandessel/orgsim/internal/engine"
	"github.com/nvandessel/orgsim/internal/models"
	"github.com/nvandessel/orgsim/internal/noise"
	"github.com/nvandessel/orgsim/internal/shock"
)

func TestPresetNames(t *testing.T) {
	want := []string{PresetClassic, PresetLogistic, PresetStochastic}
	if diff := cmp.Diff(want, PresetNames()); diff != "" {
		t.Errorf("PresetNames mismatch (-want +got):\n%s", diff)
	}
	if len(Presets()) != 3 {
		t.Errorf("Presets() returned %d variants, want 3", len(Presets()))
	}
}

func TestLookupPreset_Unknown(t *testing.T) {
	if _, err := LookupPreset("nope"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestLookupPreset_ReturnsCopies(t *testing.T) {
	a, _ := LookupPreset(PresetStochastic)
	a.Shocks.Probabilistic.BaseProbability = 0.99
	a.Coefficients.Alpha0 = 42

	b, _ := LookupPreset(PresetStochastic)
	if b.Shocks.Probabilistic.BaseProbability == 0.99 || b.Coefficients.Alpha0 == 42 {
		t.Error("mutating a preset leaked into the next lookup")
	}
}

func TestClassicPreset(t *testing.T) {
	v, err := LookupPreset(PresetClassic)
	if err != nil {
		t.Fatalf("LookupPreset: %v", err)
	}

	p, err := v.Shocks.Policy()
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	sched, ok := p.(*shock.Scheduled)
	if !ok {
		t.Fatalf("policy = %T, want *shock.Scheduled", p)
	}
	if diff := cmp.Diff([]int{25, 32, 45, 60, 80}, sched.Ticks()); diff != "" {
		t.Errorf("schedule ticks mismatch (-want +got):\n%s", diff)
	}

	in := models.ControlInputs{Modularity: 1}
	if got := v.Coefficients.AdaptationRate(in); math.Abs(got-1.485) > 1e-12 {
		t.Errorf("AdaptationRate = %v, want 1.485", got)
	}
	if got := v.Coefficients.DesiredOrganization(5, in); math.Abs(got-3.635) > 1e-12 {
		t.Errorf("DesiredOrganization = %v, want 3.635", got)
	}

	m, err := v.Model()
	if err != nil {
		t.Fatalf("Model: %v", err)
	}
	// O - E = -1 at zero slack: 1.6 - 0.1*1.
	got := m.Performance(models.State{Environment: 5, Organization: 4}, models.ControlInputs{}, noise.New(1))
	if math.Abs(got-1.5) > 1e-12 {
		t.Errorf("initial performance = %v, want 1.5", got)
	}
}

func TestStochasticPreset(t *testing.T) {
	v, _ := LookupPreset(PresetStochastic)
	if !v.Diversification {
		t.Error("stochastic preset should enable diversification")
	}
	p, err := v.Shocks.Policy()
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if p.Name() != "probabilistic" {
		t.Errorf("policy = %s, want probabilistic", p.Name())
	}
	if v.Performance.NoiseStd <= 0 {
		t.Errorf("stochastic preset noise_std = %v, want > 0", v.Performance.NoiseStd)
	}
}

func TestLogisticPreset(t *testing.T) {
	v, _ := LookupPreset(PresetLogistic)
	m, err := v.Model()
	if err != nil {
		t.Fatalf("Model: %v", err)
	}
	if m.Name() != engine.ModelLogistic {
		t.Errorf("model = %s, want logistic", m.Name())
	}
	if got := m.Performance(models.State{Environment: 6, Organization: 6}, models.ControlInputs{}, noise.New(1)); got != 1.0 {
		t.Errorf("O == E performance = %v, want 1.0", got)
	}
}

func TestShockConfig_NoneWhenEmpty(t *testing.T) {
	p, err := ShockConfig{}.Policy()
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if p.Name() != "none" {
		t.Errorf("policy = %s, want none", p.Name())
	}
}
