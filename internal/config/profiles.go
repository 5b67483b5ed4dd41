package config

import (
	"fmt"
	"sort"

	"github.com/spf13/viper"
)

// profiles are shooting conditions expressed as overrides on top of the defaults
var profiles = map[string]map[string]any{
	"daylight": {},
	"night": {
		"scoring.low_light":       20,
		"scoring.weight_exposure": 0.3,
	},
	"event_indoor": {
		"scoring.sharpness_threshold": 80.0,
	},
	"outdoor_portrait": {
		"scoring.weight_exposure": 2.0,
	},
}

// Profiles lists the known profile names
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func applyProfile(v *viper.Viper, name string) error {
	overrides, ok := profiles[name]
	if !ok {
		return fmt.Errorf("%w: unknown profile %q (known: %v)", ErrConfiguration, name, Profiles())
	}
	// Profile values replace defaults but stay below file and env.
	for key, value := range overrides {
		v.SetDefault(key, value)
	}
	return nil
}
