// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
)

// Config is the gateway's fully-resolved runtime configuration: CLI flags
// overlaid with their environment-variable fallback, defaults applied,
// hz clamped, then validated.
type Config struct {
	Serial    string  `validate:"required"`
	Baud      int     `validate:"min=1"`
	Host      string  `validate:"required"`
	Port      int     `validate:"min=1,max=65535"`
	Hz        float64 `validate:"min=0.5,max=5"`
	AuditPath string  `validate:"required"`
	Verbose   bool
}

type flagSpec struct {
	name   string
	envVar string
}

var flagSpecs = []flagSpec{
	{"serial", "SERIAL_DEV"},
	{"baud", "BAUD"},
	{"host", "WS_HOST"},
	{"port", "WS_PORT"},
	{"hz", "POLL_HZ"},
	{"audit", "AUDIT_PATH"},
}

func bindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("serial", "/dev/ttyUSB0", "Serial device path (env SERIAL_DEV)")
	flags.Int("baud", 115200, "Serial baud rate (env BAUD)")
	flags.String("host", "127.0.0.1", "WebSocket listen host (env WS_HOST)")
	flags.Int("port", 8787, "WebSocket listen port (env WS_PORT)")
	flags.Float64("hz", 2.0, "Status poll frequency, clamped to [0.5, 5.0] (env POLL_HZ)")
	flags.String("audit", "/var/lib/lydia-device/audit.jsonl", "Audit log path (env AUDIT_PATH)")
	flags.Bool("verbose", false, "Enable debug logging")
}

// overlayEnv applies each flag's environment fallback when the user did
// not pass the flag explicitly on the command line.
func overlayEnv(cmd *cobra.Command) error {
	flags := cmd.Flags()
	for _, spec := range flagSpecs {
		if flags.Changed(spec.name) {
			continue
		}
		val, ok := os.LookupEnv(spec.envVar)
		if !ok || val == "" {
			continue
		}
		if err := flags.Set(spec.name, val); err != nil {
			return fmt.Errorf("config: env %s=%q invalid for --%s: %w", spec.envVar, val, spec.name, err)
		}
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (Config, error) {
	if err := overlayEnv(cmd); err != nil {
		return Config{}, err
	}

	flags := cmd.Flags()
	var cfg Config
	var err error
	if cfg.Serial, err = flags.GetString("serial"); err != nil {
		return Config{}, err
	}
	if cfg.Baud, err = flags.GetInt("baud"); err != nil {
		return Config{}, err
	}
	if cfg.Host, err = flags.GetString("host"); err != nil {
		return Config{}, err
	}
	if cfg.Port, err = flags.GetInt("port"); err != nil {
		return Config{}, err
	}
	if cfg.Hz, err = flags.GetFloat64("hz"); err != nil {
		return Config{}, err
	}
	if cfg.AuditPath, err = flags.GetString("audit"); err != nil {
		return Config{}, err
	}
	if cfg.Verbose, err = flags.GetBool("verbose"); err != nil {
		return Config{}, err
	}

	cfg.Hz = math.Max(0.5, math.Min(cfg.Hz, 5.0))

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// addr formats host:port for net/http.Server.
func (c Config) addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
