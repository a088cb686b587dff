package main

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func validAppConfig() *appConfig {
	return &appConfig{
		configPath:   "config/minimal_config.json",
		logFormat:    "text",
		logLevel:     "info",
		pollInterval: time.Second,
		maxPorts:     8,
		maxChannels:  32,
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validAppConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"emptyPath", func(c *appConfig) { c.configPath = "" }},
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badPoll", func(c *appConfig) { c.pollInterval = 0 }},
		{"subMsPoll", func(c *appConfig) { c.pollInterval = time.Microsecond }},
		{"badMetricsEvery", func(c *appConfig) { c.logMetricsEvery = -time.Second }},
		{"badMaxPorts", func(c *appConfig) { c.maxPorts = 0 }},
		{"badMaxChannels", func(c *appConfig) { c.maxChannels = -1 }},
	}
	for _, tc := range tests {
		base := validAppConfig()
		tc.mod(base)
		if err := base.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
	var nilCfg *appConfig
	if err := nilCfg.validate(); err == nil {
		t.Fatalf("nil config: expected error")
	}
}

func TestConfigValidate_AcceptsEveryParsedLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "warning", "error"} {
		c := validAppConfig()
		c.logLevel = lvl
		if err := c.validate(); err != nil {
			t.Fatalf("%s: validate rejected a level setupLogger accepts: %v", lvl, err)
		}
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	cfg, showVersion, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if showVersion {
		t.Fatalf("version not requested")
	}
	if cfg.configPath != defaultConfigPath || cfg.pollInterval != time.Second || cfg.maxPorts != 8 || cfg.maxChannels != 32 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseFlags_Values(t *testing.T) {
	cfg, _, err := parseFlags([]string{
		"--config", "/etc/bridge.json",
		"--log-format", "json",
		"--log-level", "debug",
		"--poll-interval", "250ms",
		"--max-ports", "2",
		"--max-channels", "4",
		"--mdns-enable",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.configPath != "/etc/bridge.json" || cfg.logFormat != "json" || cfg.logLevel != "debug" {
		t.Fatalf("unexpected strings: %+v", cfg)
	}
	if cfg.pollInterval != 250*time.Millisecond || cfg.maxPorts != 2 || cfg.maxChannels != 4 || !cfg.mdnsEnable {
		t.Fatalf("unexpected values: %+v", cfg)
	}
}

func TestParseFlags_PositionalConfig(t *testing.T) {
	cfg, _, err := parseFlags([]string{"my.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.configPath != "my.json" {
		t.Fatalf("expected positional path, got %q", cfg.configPath)
	}
	if _, _, err := parseFlags([]string{"--config", "a.json", "b.json"}); err == nil {
		t.Fatalf("expected error for path given twice")
	}
}

func TestParseFlags_VersionAndHelp(t *testing.T) {
	if _, showVersion, err := parseFlags([]string{"--version"}); err != nil || !showVersion {
		t.Fatalf("expected version request, got %v %v", showVersion, err)
	}
	if _, _, err := parseFlags([]string{"--help"}); !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
	if _, _, err := parseFlags([]string{"--log-level", "loud"}); err == nil {
		t.Fatalf("expected validation error")
	}
}
