// Package config loads optional build defaults from a YAML file.
// CLI flags override config values; config values override defaults.
package config

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = ".ptxforge.yml"

// Config is the top-level ptxforge configuration.
type Config struct {
	Profile   string   `yaml:"profile"`    // debug | release
	CrateType string   `yaml:"crate_type"` // bin | lib | auto
	Target    string   `yaml:"target"`     // target triple override
	Toolchain string   `yaml:"toolchain"`  // cargo channel, e.g. "nightly"
	CargoArgs []string `yaml:"cargo_args"` // extra nested compiler args
	Colors    string   `yaml:"colors"`     // auto | always | never
	Freshness bool     `yaml:"freshness"`  // skip unchanged builds
	Emit      string   `yaml:"emit"`       // auto | cargo | report

	// ArtifactEnv is the environment variable name exported to the host
	// crate (cargo:rustc-env) carrying the artifact path.
	ArtifactEnv string `yaml:"artifact_env"`
}

// Load reads configuration from a YAML file.
// If path is empty, it tries the default file.
// Returns sensible defaults if the file doesn't exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Profile:     "release",
		CrateType:   "auto",
		Colors:      "auto",
		Emit:        "auto",
		ArtifactEnv: "KERNEL_PTX_PATH",
	}
}
