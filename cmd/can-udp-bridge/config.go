package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kstaniek/can-udp-bridge/internal/bridge"
	"github.com/kstaniek/can-udp-bridge/internal/logging"
)

type appConfig struct {
	configPath      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	pollInterval    time.Duration
	logMetricsEvery time.Duration
	maxPorts        int
	maxChannels     int
	mdnsEnable      bool
	mdnsName        string
}

const defaultConfigPath = "config/minimal_config.json"

func parseFlags(args []string) (*appConfig, bool, error) {
	cfg := &appConfig{}
	fs := pflag.NewFlagSet("can-udp-bridge", pflag.ContinueOnError)
	fs.StringVarP(&cfg.configPath, "config", "c", defaultConfigPath, "Bridge configuration file (JSON)")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	fs.DurationVar(&cfg.pollInterval, "poll-interval", bridge.DefaultPollInterval, "Upper bound on event loop wait (shutdown latency)")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	fs.IntVar(&cfg.maxPorts, "max-ports", bridge.DefaultMaxPorts, "Maximum number of UDP ports")
	fs.IntVar(&cfg.maxChannels, "max-channels", bridge.DefaultMaxChannels, "Maximum number of CAN channels")
	fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Enable mDNS/Avahi advertisement of the first listen port")
	fs.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default can-udp-bridge-<hostname>)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if *showVersion {
		return cfg, true, nil
	}
	// A single positional argument is accepted as the config path.
	if rest := fs.Args(); len(rest) > 0 {
		if len(rest) > 1 || fs.Changed("config") {
			return nil, false, fmt.Errorf("unexpected argument: %s", rest[len(rest)-1])
		}
		if err := fs.Set("config", rest[0]); err != nil {
			return nil, false, err
		}
	}

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	fs.Visit(func(f *pflag.Flag) { setFlags[f.Name] = struct{}{} })

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		return nil, false, fmt.Errorf("environment override error: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, false, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, false, nil
}

// validate checks values and ranges only; nothing is opened.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.configPath == "" {
		return errors.New("config path must not be empty")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	if _, err := logging.ParseLevel(c.logLevel); err != nil {
		return fmt.Errorf("invalid log-level: %w", err)
	}
	if c.pollInterval < time.Millisecond {
		return fmt.Errorf("poll-interval must be >= 1ms (got %v)", c.pollInterval)
	}
	if c.logMetricsEvery < 0 {
		return fmt.Errorf("log-metrics-interval must be >= 0")
	}
	if c.maxPorts <= 0 {
		return fmt.Errorf("max-ports must be > 0 (got %d)", c.maxPorts)
	}
	if c.maxChannels <= 0 {
		return fmt.Errorf("max-channels must be > 0 (got %d)", c.maxChannels)
	}
	return nil
}

// applyEnvOverrides maps CAN_BRIDGE_* environment variables to config fields
// unless a corresponding flag was explicitly set. Empty values are ignored.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	str := func(flag, env string, dst *string) {
		if _, ok := set[flag]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			*dst = v
		}
	}
	dur := func(flag, env string, dst *time.Duration) {
		if _, ok := set[flag]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				*dst = d
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %q", env, v)
			}
		}
	}
	num := func(flag, env string, dst *int) {
		if _, ok := set[flag]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %q", env, v)
			}
		}
	}

	str("config", "CAN_BRIDGE_CONFIG", &c.configPath)
	str("log-format", "CAN_BRIDGE_LOG_FORMAT", &c.logFormat)
	str("log-level", "CAN_BRIDGE_LOG_LEVEL", &c.logLevel)
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("CAN_BRIDGE_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	dur("poll-interval", "CAN_BRIDGE_POLL_INTERVAL", &c.pollInterval)
	dur("log-metrics-interval", "CAN_BRIDGE_LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	num("max-ports", "CAN_BRIDGE_MAX_PORTS", &c.maxPorts)
	num("max-channels", "CAN_BRIDGE_MAX_CHANNELS", &c.maxChannels)
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("CAN_BRIDGE_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			default:
				if firstErr == nil {
					firstErr = fmt.Errorf("invalid CAN_BRIDGE_MDNS_ENABLE: %q", v)
				}
			}
		}
	}
	str("mdns-name", "CAN_BRIDGE_MDNS_NAME", &c.mdnsName)
	return firstErr
}
