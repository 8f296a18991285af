package main

import (
	"fmt"
	"os"

	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"gopkg.in/yaml.v3"
)

// targetsFile is the on-disk shape of the device inventory.
type targetsFile struct {
	Targets []model.TargetConfig `yaml:"targets"`
}

// loadTargets reads and validates the device inventory. Validation
// errors are fatal at startup: a bad inventory never half-runs.
func loadTargets(path string) ([]model.TargetConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f targetsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(f.Targets) == 0 {
		return nil, fmt.Errorf("%s: no targets defined", path)
	}

	for i := range f.Targets {
		if err := f.Targets[i].Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return f.Targets, nil
}
