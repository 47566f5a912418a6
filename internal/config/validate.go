package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Validate checks structural invariants and prunes disabled services,
// matching the shape of the teacher's manager/config.go Validate /
// CheckServiceDisable pair.
func (c *Config) Validate() error {
	c.pruneDisabled()

	if len(c.Services) == 0 {
		return fmt.Errorf("config declares no services")
	}

	for name, svc := range c.Services {
		if strings.TrimSpace(svc.Command) == "" {
			return fmt.Errorf("service %q: command must not be empty", name)
		}
		if svc.MaxRestarts != nil && *svc.MaxRestarts < 0 {
			return fmt.Errorf("service %q: max_restarts must not be negative", name)
		}
		if svc.Backoff != "" {
			if _, err := time.ParseDuration(svc.Backoff); err != nil {
				return fmt.Errorf("service %q: invalid backoff %q: %w", name, svc.Backoff, err)
			}
		}
		switch svc.EffectiveRestartPolicy() {
		case "always", "on_failure", "never":
		default:
			return fmt.Errorf("service %q: invalid restart_policy %q", name, svc.RestartPolicy)
		}
		if svc.IsCron() {
			if strings.TrimSpace(svc.Cron.Expression) == "" {
				return fmt.Errorf("service %q: cron.expression must not be empty", name)
			}
		}
		for _, dep := range svc.DependsOn {
			if _, ok := c.Services[dep]; !ok {
				return fmt.Errorf("service %q: unknown dependency %q", name, dep)
			}
		}
	}
	return nil
}

// pruneDisabled removes services whose name is matched by a
// DISABLE_<NAME> (or disable_<name>) environment variable set to a
// truthy value, matching manager/config.go's CheckServiceDisable.
func (c *Config) pruneDisabled() {
	for name := range c.Services {
		upper := "DISABLE_" + strings.ToUpper(name)
		lower := "disable_" + strings.ToLower(name)
		if isTruthy(os.Getenv(upper)) || isTruthy(os.Getenv(lower)) {
			delete(c.Services, name)
		}
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
