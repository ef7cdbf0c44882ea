package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds defaults for the streamtail command.
// Loaded from streamtail.yaml if present; flags override.
type Config struct {
	// StreamARN is the change stream to tail.
	StreamARN string `yaml:"streamArn"`

	// Region is the AWS region. Empty falls back to the SDK's default chain.
	Region string `yaml:"region"`

	// CheckpointDir is where BadgerDB stores resume tokens.
	CheckpointDir string `yaml:"checkpointDir"`
}

// LoadConfig searches for streamtail.yaml starting from the current directory
// and walking up to the filesystem root. Returns empty config if not found.
func LoadConfig() Config {
	var cfg Config

	configPath := findConfigFile()
	if configPath == "" {
		return cfg
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)
	return cfg
}

func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, "streamtail.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
