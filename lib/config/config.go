// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects how capture-layer changes reach the trusted tree.
// The three modes are mutually exclusive configuration states: a
// single environment is gated, timed, or unsafe, never a combination.
// This is what prevents the gated pipeline and the mirror service from
// racing each other onto the same trusted tree.
type Mode string

const (
	// ModeGated routes all promotion through the validation pipeline
	// and the preview/promote controller. This is the default.
	ModeGated Mode = "gated"

	// ModeTimed enables the mirror service: an unconditional mirrored
	// copy of the capture layer onto the trusted tree on a fixed
	// interval, with no validation and no preview. Weaker by design;
	// the operator trades protection for near-real-time reflection.
	ModeTimed Mode = "timed"

	// ModeUnsafe mounts the source tree read-write with no containment
	// at all. Never a silent fallback: it must be spelled out in the
	// profile, and the mount manager refuses overlay operations in
	// this mode.
	ModeUnsafe Mode = "unsafe"
)

// Config is the profile for one airlock environment. It is loaded
// from a single YAML file named by the AIRLOCK_CONFIG environment
// variable or a --config flag; there is no search path and no hidden
// override mechanism.
type Config struct {
	// Environment is the environment name. Used in log lines, lock
	// files, and the reset confirmation prompt.
	Environment string `yaml:"environment"`

	// Mode is the promotion mode: gated, timed, or unsafe.
	Mode Mode `yaml:"mode"`

	// Host describes the execution host's ssh endpoint.
	Host HostConfig `yaml:"host"`

	// Paths configures the directory layout on both sides.
	Paths PathsConfig `yaml:"paths"`

	// Validation configures the gated pipeline's checks.
	Validation ValidationConfig `yaml:"validation"`

	// Mirror configures the timed auto-promotion service. Only
	// meaningful when Mode is timed.
	Mirror MirrorConfig `yaml:"mirror"`
}

// HostConfig describes the remote shell/copy channel to the execution
// host.
type HostConfig struct {
	// Address is the host name or IP of the execution host.
	Address string `yaml:"address"`

	// Port is the ssh port. Default: 22.
	Port int `yaml:"port"`

	// User is the ssh user. Default: airlock.
	User string `yaml:"user"`

	// IdentityFile is the path to the ssh private key.
	IdentityFile string `yaml:"identity_file"`

	// KnownHostsFile is the path to a known_hosts file used to verify
	// the execution host's key. Empty means ~/.ssh/known_hosts.
	KnownHostsFile string `yaml:"known_hosts_file"`

	// RemoteConfig is the profile path on the execution host, used when
	// invoking host-side operations (reset) over ssh. Default:
	// /etc/airlock/config.yaml.
	RemoteConfig string `yaml:"remote_config"`
}

// PathsConfig configures directory locations. Capture, Work, and
// MountPoint are paths on the execution host; the rest are local.
type PathsConfig struct {
	// Source is the host directory tree the agent may observe. It is
	// the origin of the overlay's read-only lower layer and, via the
	// binding record, the destination of promotions.
	Source string `yaml:"source"`

	// Capture is the overlay upper directory on the execution host.
	// Every agent write lands here and nowhere else.
	Capture string `yaml:"capture"`

	// Work is the overlay work directory on the execution host.
	Work string `yaml:"work"`

	// MountPoint is where the merged view is mounted on the execution
	// host.
	MountPoint string `yaml:"mount_point"`

	// StagingDir is the local parent directory for staging snapshots
	// created by the gated pipeline. Empty means the system temp
	// directory. Never the overlay work directory: that belongs to
	// fuse-overlayfs on the execution host and is emptied on reset.
	StagingDir string `yaml:"staging_dir"`

	// BindingFile is the local path of the persisted
	// source-to-destination binding written at establish time and read
	// back by promote.
	BindingFile string `yaml:"binding_file"`

	// AuditLog is the audit log path on the execution host.
	AuditLog string `yaml:"audit_log"`

	// HistoryDB is the local SQLite database recording promotion runs.
	HistoryDB string `yaml:"history_db"`
}

// ValidationConfig configures the gated pipeline.
type ValidationConfig struct {
	// PolicyFile is the path of the JSONC validation policy. Empty
	// means the built-in default policy.
	PolicyFile string `yaml:"policy_file"`

	// Scanner is the secret scanner binary. Default: gitleaks.
	Scanner string `yaml:"scanner"`
}

// MirrorConfig configures the timed auto-promotion service.
type MirrorConfig struct {
	// Interval between mirrored copies. Default: 30s.
	Interval time.Duration `yaml:"interval"`

	// InitialDelay before the first copy, letting the environment
	// settle after startup. Default: 60s.
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// Default returns a Config with development defaults. The environment
// name, host address, and paths must still be filled in.
func Default() *Config {
	return &Config{
		Mode: ModeGated,
		Host: HostConfig{
			Port:         22,
			User:         "airlock",
			RemoteConfig: "/etc/airlock/config.yaml",
		},
		Validation: ValidationConfig{
			Scanner: "gitleaks",
		},
		Mirror: MirrorConfig{
			Interval:     30 * time.Second,
			InitialDelay: 60 * time.Second,
		},
	}
}

// Load reads the config file named by the AIRLOCK_CONFIG environment
// variable. Returns an error if the variable is unset: there is no
// fallback discovery.
func Load() (*Config, error) {
	path := os.Getenv("AIRLOCK_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("AIRLOCK_CONFIG is not set (or pass --config)")
	}
	return LoadFile(path)
}

// LoadFile reads and validates a config file. Defaults are applied
// before the file's values, and ${VAR} references in path fields are
// expanded from the process environment after loading.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// variablePattern matches ${VAR} and ${VAR:-default} references.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandVariable expands ${VAR} and ${VAR:-default} in a single value.
func expandVariable(value string) string {
	return variablePattern.ReplaceAllStringFunc(value, func(match string) string {
		groups := variablePattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(groups[1]); ok {
			return v
		}
		return groups[2]
	})
}

// expandPaths applies variable expansion to every path-valued field.
func (c *Config) expandPaths() {
	fields := []*string{
		&c.Host.IdentityFile,
		&c.Host.KnownHostsFile,
		&c.Host.RemoteConfig,
		&c.Paths.Source,
		&c.Paths.Capture,
		&c.Paths.Work,
		&c.Paths.MountPoint,
		&c.Paths.StagingDir,
		&c.Paths.BindingFile,
		&c.Paths.AuditLog,
		&c.Paths.HistoryDB,
		&c.Validation.PolicyFile,
	}
	for _, field := range fields {
		*field = expandVariable(*field)
	}
}

// Validate checks the profile for internal coherence. It does not
// touch the filesystem; path existence is the concern of the
// components that use each path.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment name is required")
	}

	switch c.Mode {
	case ModeGated, ModeTimed, ModeUnsafe:
	case "":
		return fmt.Errorf("mode is required (gated, timed, or unsafe)")
	default:
		return fmt.Errorf("unknown mode %q (want gated, timed, or unsafe)", c.Mode)
	}

	if c.Paths.Source == "" {
		return fmt.Errorf("paths.source is required")
	}
	if c.Mode != ModeUnsafe {
		if c.Paths.Capture == "" {
			return fmt.Errorf("paths.capture is required in %s mode", c.Mode)
		}
		if c.Paths.MountPoint == "" {
			return fmt.Errorf("paths.mount_point is required in %s mode", c.Mode)
		}
	}

	if c.Mode == ModeTimed {
		if c.Mirror.Interval <= 0 {
			return fmt.Errorf("mirror.interval must be positive in timed mode, got %s", c.Mirror.Interval)
		}
		if c.Mirror.InitialDelay < 0 {
			return fmt.Errorf("mirror.initial_delay must not be negative, got %s", c.Mirror.InitialDelay)
		}
	}

	if c.Host.Port < 0 || c.Host.Port > 65535 {
		return fmt.Errorf("host.port %d out of range", c.Host.Port)
	}

	return nil
}
