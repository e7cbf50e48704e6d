// Package config holds the policy knobs the planner, balancer, admission
// handler and reconciler consult. All fields have defaults and may be
// overridden; callers merge partial overrides onto Default() the way the
// teacher's operator packages merge operator-supplied settings.
package config

import (
	"time"

	"github.com/imdario/mergo"
)

// Config is the engine's policy configuration (spec.md §6).
type Config struct {
	RefreshInterval                  time.Duration
	MinimumClusterCount              int
	MaximumClusterCount              int
	MaximumUsersPerCluster           int
	MaxClusterUptime                 time.Duration
	UserCapacityHighPercentThreshold float64
	UserCapacityLowPercentThreshold  float64
}

// Default returns the spec'd defaults (spec.md §6).
func Default() Config {
	return Config{
		RefreshInterval:                  1 * time.Second,
		MinimumClusterCount:              10,
		MaximumClusterCount:              100,
		MaximumUsersPerCluster:           10,
		MaxClusterUptime:                 2 * time.Hour,
		UserCapacityHighPercentThreshold:  0.75,
		UserCapacityLowPercentThreshold:   0.25,
	}
}

// Merge overlays the non-zero fields of override onto Default() and returns
// the result. Zero-valued fields in override are treated as "unset" and keep
// the default, mirroring mergo's WithOverride semantics used elsewhere in the
// teacher's settings layers.
func Merge(override Config) (Config, error) {
	out := Default()
	if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
		return Config{}, err
	}
	return out, nil
}

// JoinExpiryGuard is the "5 minutes" margin from spec.md §4.5 step 4 below
// which a cluster is considered too close to expiry to admit new users.
const JoinExpiryGuard = 5 * time.Minute
