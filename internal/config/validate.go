package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks configuration correctness. It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if _, err := cfg.Serial.PortOptions.Normalize(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}

	if cfg.Listen != "" {
		if err := validateAddr(cfg.Listen); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}
	if cfg.DebugListen != "" {
		if err := validateAddr(cfg.DebugListen); err != nil {
			return fmt.Errorf("debug_listen: %w", err)
		}
		if cfg.DebugListen == cfg.Listen {
			return fmt.Errorf("debug_listen %q must differ from listen", cfg.DebugListen)
		}
	}

	if strings.TrimSpace(cfg.Database) != cfg.Database {
		return fmt.Errorf("database %q has surrounding whitespace", cfg.Database)
	}

	return nil
}

func validateAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if port == "" {
		return fmt.Errorf("address %q has no port", addr)
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return err
	}
	return nil
}
