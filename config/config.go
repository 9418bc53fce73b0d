// Package config loads and validates the simulator's JSON configuration
// file: cache geometries, topology parameters, and policy selection.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds every tunable for one simulation run, keyed exactly as
// spec.md §6 names them.
type Config struct {
	NumHosts int `json:"Num hosts"`

	HostLineSize int `json:"Host line size"`
	HostNumLines int `json:"Host num lines"`
	HostAssoc    int `json:"Host assoc"`

	DeviceLineSize int `json:"Device line size"`
	DeviceNumLines int `json:"Device num lines"`
	DeviceAssoc    int `json:"Device assoc"`

	NumSwitches    int `json:"Num switches"`
	SwitchLineSize int `json:"Switch line size"`
	SwitchNumLines int `json:"Switch num lines"`
	SwitchAssoc    int `json:"Switch assoc"`

	IntermediateSwitch int   `json:"Intermediate switch"`
	IntermediatePath   []int `json:"Intermediate path"`

	PlacementPolicy string `json:"Placement policy"`
	MigrationPolicy string `json:"Migration policy"`

	OutputJSON string `json:"Output json"`
}

// Default returns a Config with the same small topology the original
// cxl-net experiment scripts default to: 2 hosts with 4-line 4-way caches,
// a 64-line 8-way device directory, and two switches.
func Default() *Config {
	return &Config{
		NumHosts: 2,

		HostLineSize: 64,
		HostNumLines: 4,
		HostAssoc:    4,

		DeviceLineSize: 64,
		DeviceNumLines: 64,
		DeviceAssoc:    8,

		NumSwitches:    2,
		SwitchLineSize: 64,
		SwitchNumLines: 32,
		SwitchAssoc:    8,

		IntermediateSwitch: 3,
		IntermediatePath:   []int{3, 4},

		PlacementPolicy: "default",
		MigrationPolicy: "none",

		OutputJSON: "out.json",
	}
}

// LoadConfig reads and parses a Config from a JSON file, starting from
// Default() so any keys the file omits keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return c, nil
}

// SaveConfig writes c to path as indented JSON.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that every geometry is well-formed and every named
// policy is recognized, returning the first problem found.
func (c *Config) Validate() error {
	if c.NumHosts <= 0 {
		return fmt.Errorf("Num hosts must be > 0")
	}
	if err := validateGeometry("Host", c.HostLineSize, c.HostNumLines, c.HostAssoc); err != nil {
		return err
	}
	if err := validateGeometry("Device", c.DeviceLineSize, c.DeviceNumLines, c.DeviceAssoc); err != nil {
		return err
	}
	if c.NumSwitches < 0 {
		return fmt.Errorf("Num switches must be >= 0")
	}
	if c.NumSwitches > 0 {
		if err := validateGeometry("Switch", c.SwitchLineSize, c.SwitchNumLines, c.SwitchAssoc); err != nil {
			return err
		}
	}
	switch c.PlacementPolicy {
	case "", "default", "modulo":
	default:
		return fmt.Errorf("unknown Placement policy: %q", c.PlacementPolicy)
	}
	switch c.MigrationPolicy {
	case "", "none", "lazy":
	default:
		return fmt.Errorf("unknown Migration policy: %q", c.MigrationPolicy)
	}
	return nil
}

func validateGeometry(label string, lineSize, numLines, assoc int) error {
	if lineSize <= 0 {
		return fmt.Errorf("%s line size must be > 0", label)
	}
	if numLines <= 0 {
		return fmt.Errorf("%s num lines must be > 0", label)
	}
	if assoc <= 0 {
		return fmt.Errorf("%s assoc must be > 0", label)
	}
	if numLines%assoc != 0 {
		return fmt.Errorf("%s num lines (%d) must be a multiple of %s assoc (%d)", label, numLines, label, assoc)
	}
	return nil
}

// Describe renders a human-readable multi-line summary of c, mirroring the
// original Python Config.print() used when a run starts.
func (c *Config) Describe() string {
	return fmt.Sprintf(
		"Num hosts: %d\n"+
			"Host cache: line=%d lines=%d assoc=%d\n"+
			"Device directory: line=%d lines=%d assoc=%d\n"+
			"Num switches: %d\n"+
			"Switch directory: line=%d lines=%d assoc=%d\n"+
			"Intermediate switch: %d\n"+
			"Intermediate path: %v\n"+
			"Placement policy: %s\n"+
			"Migration policy: %s\n",
		c.NumHosts,
		c.HostLineSize, c.HostNumLines, c.HostAssoc,
		c.DeviceLineSize, c.DeviceNumLines, c.DeviceAssoc,
		c.NumSwitches,
		c.SwitchLineSize, c.SwitchNumLines, c.SwitchAssoc,
		c.IntermediateSwitch,
		c.IntermediatePath,
		c.PlacementPolicy,
		c.MigrationPolicy,
	)
}
