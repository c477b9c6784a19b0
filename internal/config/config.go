// Package config parses the driver's flag/environment configuration,
// following the precedence rule used throughout this codebase: an
// explicitly-set flag always wins over its environment variable, which in
// turn wins over the built-in default.
//
// Grounded on the gateway command's parseFlags/applyEnvOverrides/flag.Visit
// pattern.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the driver-level configuration accepted by the CLI tools.
type Config struct {
	SerialDev       string
	Baud            int
	Bytesize        int
	Parity          string // none|odd|even
	Stopbits        int
	CANable         bool
	BitrateIndex    int
	BitrateProfile  string // path to an INI profile file (see Profile)
	QueueCapacity   int
	ResponseTimeout time.Duration
	LogFormat       string
	LogLevel        string
	MetricsAddr     string
}

// ParseFlags parses args with fs into a Config, applying SLCAN_* environment
// overrides to any flag not set explicitly in args.
func ParseFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	serialDev := fs.String("serial", "/dev/ttyUSB0", "Serial device path")
	baud := fs.Int("baud", 57600, "Serial line baud rate")
	bytesize := fs.Int("bytesize", 8, "Serial byte size (5-8)")
	parity := fs.String("parity", "none", "Serial parity: none|odd|even")
	stopbits := fs.Int("stopbits", 1, "Serial stop bits (1-2)")
	canable := fs.Bool("canable", false, "Use the silent CANable command dialect instead of Lawicel")
	bitrateIndex := fs.Int("bitrate-index", -4, "CiA bit-rate index (0=1M .. -8=10K)")
	bitrateProfile := fs.String("bitrate-profile", "", "Path to an INI bit-rate profile file; overrides bitrate-index")
	queueCap := fs.Int("queue-capacity", 65536, "Received-frame queue capacity")
	responseTimeout := fs.Duration("response-timeout", 100*time.Millisecond, "Command response timeout")
	logFormat := fs.String("log-format", "text", "Log format: text|json")
	logLevel := fs.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := fs.String("metrics-addr", "", "Metrics HTTP listen address; empty disables")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = struct{}{} })

	cfg.SerialDev = *serialDev
	cfg.Baud = *baud
	cfg.Bytesize = *bytesize
	cfg.Parity = *parity
	cfg.Stopbits = *stopbits
	cfg.CANable = *canable
	cfg.BitrateIndex = *bitrateIndex
	cfg.BitrateProfile = *bitrateProfile
	cfg.QueueCapacity = *queueCap
	cfg.ResponseTimeout = *responseTimeout
	cfg.LogFormat = *logFormat
	cfg.LogLevel = *logLevel
	cfg.MetricsAddr = *metricsAddr

	if err := applyEnvOverrides(cfg, set); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Parity {
	case "none", "odd", "even":
	default:
		return fmt.Errorf("invalid parity: %s", c.Parity)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.LogLevel)
	}
	if c.Baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.Baud)
	}
	if c.Bytesize < 5 || c.Bytesize > 8 {
		return fmt.Errorf("bytesize must be 5..8 (got %d)", c.Bytesize)
	}
	if c.Stopbits < 1 || c.Stopbits > 2 {
		return fmt.Errorf("stopbits must be 1..2 (got %d)", c.Stopbits)
	}
	if c.BitrateIndex < -8 || c.BitrateIndex > 0 {
		return fmt.Errorf("bitrate-index must be 0..-8 (got %d)", c.BitrateIndex)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue-capacity must be > 0 (got %d)", c.QueueCapacity)
	}
	if c.ResponseTimeout <= 0 {
		return fmt.Errorf("response-timeout must be > 0")
	}
	return nil
}

// applyEnvOverrides maps SLCAN_* environment variables onto cfg for any
// field whose flag was not explicitly set.
func applyEnvOverrides(c *Config, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["serial"]; !ok {
		if v, ok := get("SLCAN_SERIAL"); ok && v != "" {
			c.SerialDev = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("SLCAN_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.Baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid SLCAN_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["parity"]; !ok {
		if v, ok := get("SLCAN_PARITY"); ok && v != "" {
			c.Parity = v
		}
	}
	if _, ok := set["canable"]; !ok {
		if v, ok := get("SLCAN_CANABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.CANable = true
			case "0", "false", "no", "off":
				c.CANable = false
			}
		}
	}
	if _, ok := set["bitrate-index"]; !ok {
		if v, ok := get("SLCAN_BITRATE_INDEX"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.BitrateIndex = n
			} else {
				firstErr = firstErrOr(firstErr, fmt.Errorf("invalid SLCAN_BITRATE_INDEX: %w", err))
			}
		}
	}
	if _, ok := set["bitrate-profile"]; !ok {
		if v, ok := get("SLCAN_BITRATE_PROFILE"); ok && v != "" {
			c.BitrateProfile = v
		}
	}
	if _, ok := set["queue-capacity"]; !ok {
		if v, ok := get("SLCAN_QUEUE_CAPACITY"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.QueueCapacity = n
			} else {
				firstErr = firstErrOr(firstErr, fmt.Errorf("invalid SLCAN_QUEUE_CAPACITY: %w", err))
			}
		}
	}
	if _, ok := set["response-timeout"]; !ok {
		if v, ok := get("SLCAN_RESPONSE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.ResponseTimeout = d
			} else {
				firstErr = firstErrOr(firstErr, fmt.Errorf("invalid SLCAN_RESPONSE_TIMEOUT: %w", err))
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("SLCAN_LOG_FORMAT"); ok && v != "" {
			c.LogFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("SLCAN_LOG_LEVEL"); ok && v != "" {
			c.LogLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("SLCAN_METRICS_ADDR"); ok {
			c.MetricsAddr = v
		}
	}
	return firstErr
}

func firstErrOr(first, next error) error {
	if first != nil {
		return first
	}
	return next
}
