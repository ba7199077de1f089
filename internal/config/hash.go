package config

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Fingerprint computes a stable BLAKE3 hash of the effective configuration.
// The hash is taken over the canonical YAML re-serialization so it reflects
// what the process actually runs with, including defaults and env overrides.
// Surfaced in /status and system.status for drift detection.
func Fingerprint(cfg *Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to serialize config for hashing: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}
