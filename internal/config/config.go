// Package config loads the bench-operator calibration override file: the PI
// controller's constants and the ADC-to-volts scale factor, normally left at
// their defaults but overridable without a rebuild.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Calibration holds the PI controller's default constants and the
// ADC-to-volts scale factor. Zero value is meaningless; use Defaults().
type Calibration struct {
	KP             float64 `yaml:"k_p"`
	KI             float64 `yaml:"k_i"`
	KPPhase        float64 `yaml:"k_p_phase"`
	KIPhase        float64 `yaml:"k_i_phase"`
	EpsAmplitude   float64 `yaml:"eps_amp"`
	EpsPhase       float64 `yaml:"eps_phase"`
	TargetAmpV     float64 `yaml:"target_amp_v"`
	TargetPhaseDeg float64 `yaml:"target_phase_deg"`
	IntToVolt      float64 `yaml:"int_to_volt"`
}

// Defaults returns the PI controller's factory-tuned constants.
func Defaults() Calibration {
	return Calibration{
		KP:             0.2,
		KI:             0.8,
		KPPhase:        0.05,
		KIPhase:        0.95,
		EpsAmplitude:   0.001,
		EpsPhase:       0.3,
		TargetAmpV:     0.5,
		TargetPhaseDeg: 0,
		IntToVolt:      0.5 / 200222.109375,
	}
}

// Load reads a YAML file overriding any subset of Defaults()'s fields. An
// empty path returns Defaults() unchanged.
func Load(path string) (Calibration, error) {
	cal := Defaults()
	if path == "" {
		return cal, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, err
	}
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return Calibration{}, err
	}
	return cal, nil
}
