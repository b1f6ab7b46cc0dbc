// Package config loads tool configuration and named shaping profiles.
package config

import (
	"errors"
	"evraw/pkg/loss"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves them unset.
const (
	DefaultBandwidthMbps = 25.0
	DefaultChunkMs       = 50.0
)

// Profile is a named shaping preset.
type Profile struct {
	Policy        string  `yaml:"policy"`
	BandwidthMbps float64 `yaml:"bandwidthMbps"`
	ChunkMs       float64 `yaml:"chunkMs"`
}

// Config returns the shaping configuration of the profile.
func (p Profile) Config() loss.Config {
	return loss.Config{
		Policy:        loss.Policy(p.Policy),
		BandwidthMbps: p.BandwidthMbps,
		ChunkMs:       p.ChunkMs,
	}
}

// Env stores tool configuration.
type Env struct {
	HistoryDB            string             `yaml:"historyDB"`
	DefaultBandwidthMbps float64            `yaml:"defaultBandwidthMbps"`
	DefaultChunkMs       float64            `yaml:"defaultChunkMs"`
	Profiles             map[string]Profile `yaml:"profiles"`

	ConfigDir string
}

// ErrPathNotAbsolute path is not absolute.
var ErrPathNotAbsolute = errors.New("path is not absolute")

// ErrProfileNotFound requested profile does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// NewEnv returns a new environment configuration.
// Profiles are validated at load time rather than at use time.
func NewEnv(envPath string, envYAML []byte) (*Env, error) {
	var env Env

	if err := yaml.Unmarshal(envYAML, &env); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	env.ConfigDir = filepath.Dir(envPath)

	if env.DefaultBandwidthMbps == 0 {
		env.DefaultBandwidthMbps = DefaultBandwidthMbps
	}
	if env.DefaultChunkMs == 0 {
		env.DefaultChunkMs = DefaultChunkMs
	}
	if env.HistoryDB == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("user cache dir: %w", err)
		}
		env.HistoryDB = filepath.Join(cacheDir, "evraw", "history.db")
	}

	if !filepath.IsAbs(env.HistoryDB) {
		return nil, fmt.Errorf("historyDB '%v': %w", env.HistoryDB, ErrPathNotAbsolute)
	}
	if env.DefaultBandwidthMbps < 0 {
		return nil, fmt.Errorf("defaultBandwidthMbps '%v': negative bandwidth", env.DefaultBandwidthMbps)
	}
	if env.DefaultChunkMs < 0 {
		return nil, fmt.Errorf("defaultChunkMs '%v': negative chunk duration", env.DefaultChunkMs)
	}

	for name, profile := range env.Profiles {
		if err := profile.Config().Validate(); err != nil {
			return nil, fmt.Errorf("profile '%v': %w", name, err)
		}
	}

	return &env, nil
}

// Profile returns the named shaping profile.
func (env *Env) Profile(name string) (Profile, error) {
	profile, exists := env.Profiles[name]
	if !exists {
		return Profile{}, fmt.Errorf("%w: %v", ErrProfileNotFound, name)
	}
	return profile, nil
}
