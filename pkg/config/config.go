// Package config loads the orchestrator configuration from YAML with
// environment variable expansion and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root orchestrator configuration.
type Config struct {
	// RoutesDir is the directory route and suite paths resolve against.
	RoutesDir string `yaml:"routes_dir"`

	Admin   *AdminConfig   `yaml:"admin"`
	Harness *HarnessConfig `yaml:"harness"`
}

// AdminConfig configures the admin control channel and its pool.
type AdminConfig struct {
	Address     string   `yaml:"address"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	PoolSize    int      `yaml:"pool_size"`
	DialTimeout Duration `yaml:"dial_timeout"`
}

// HarnessConfig carries the orchestration tunables. Route harnesses
// override the timeouts per test; everything else is process-wide.
type HarnessConfig struct {
	// AccountPassword is the fixed password for provisioned test accounts.
	AccountPassword string `yaml:"account_password"`

	// StartStagger is the minimum delay between bot starts. Concurrent
	// logins trip auth-server throttling; keep this at 500ms or above.
	StartStagger Duration `yaml:"start_stagger"`

	// TickInterval is the executor tick cadence.
	TickInterval Duration `yaml:"tick_interval"`

	// PollInterval is the coordinator's completion poll cadence.
	PollInterval Duration `yaml:"poll_interval"`

	// StatusInterval is the minimum spacing of status-changed events
	// during the completion poll.
	StatusInterval Duration `yaml:"status_interval"`

	// LoginPollInterval is the cadence of the wait-for-login loop.
	LoginPollInterval Duration `yaml:"login_poll_interval"`

	// SetupGrace is the settle time after applying harness setup.
	SetupGrace Duration `yaml:"setup_grace"`

	// LogoutGrace is the settle time after logging bots out before a
	// snapshot save or restore touches the database.
	LogoutGrace Duration `yaml:"logout_grace"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		RoutesDir: "./routes",
		Admin: &AdminConfig{
			Address:     "127.0.0.1:3443",
			Username:    "ADMINISTRATOR",
			PoolSize:    4,
			DialTimeout: Duration(10 * time.Second),
		},
		Harness: DefaultHarnessConfig(),
	}
}

// DefaultHarnessConfig returns the built-in harness tunables.
func DefaultHarnessConfig() *HarnessConfig {
	return &HarnessConfig{
		AccountPassword:   "password",
		StartStagger:      Duration(500 * time.Millisecond),
		TickInterval:      Duration(100 * time.Millisecond),
		PollInterval:      Duration(time.Second),
		StatusInterval:    Duration(2 * time.Second),
		LoginPollInterval: Duration(250 * time.Millisecond),
		SetupGrace:        Duration(2 * time.Second),
		LogoutGrace:       Duration(2 * time.Second),
	}
}

// validate checks the merged configuration.
func validate(cfg *Config) error {
	var errs []error
	if cfg.RoutesDir == "" {
		errs = append(errs, errors.New("routes_dir is required"))
	}
	if cfg.Admin != nil {
		if cfg.Admin.Address == "" {
			errs = append(errs, errors.New("admin.address is required"))
		}
		if cfg.Admin.PoolSize < 1 {
			errs = append(errs, fmt.Errorf("admin.pool_size must be at least 1, got %d", cfg.Admin.PoolSize))
		}
	}
	if h := cfg.Harness; h != nil {
		if h.StartStagger.Std() < 500*time.Millisecond {
			errs = append(errs, fmt.Errorf("harness.start_stagger must be at least 500ms, got %s", h.StartStagger))
		}
		if h.TickInterval <= 0 {
			errs = append(errs, errors.New("harness.tick_interval must be positive"))
		}
		if h.PollInterval <= 0 {
			errs = append(errs, errors.New("harness.poll_interval must be positive"))
		}
	}
	return errors.Join(errs...)
}
