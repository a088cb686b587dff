package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/kstaniek/can-udp-bridge/internal/config"
)

const mdnsServiceType = "_can-udp-bridge._udp"

// mdnsInstance returns the configured instance name or can-udp-bridge-<hostname>.
func mdnsInstance(cfg *appConfig) string {
	if cfg.mdnsName != "" {
		return cfg.mdnsName
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("can-udp-bridge-%s", host)
}

// mdnsMeta builds the TXT records advertised next to the first listen port.
func mdnsMeta(bc *config.Config) []string {
	meta := []string{
		"version=" + version,
		"commit=" + commit,
		"ports=" + strconv.Itoa(len(bc.Ports)),
		"channels=" + strconv.Itoa(bc.ChannelCount()),
	}
	if len(bc.Ports) > 0 {
		meta = append(meta, "send_port="+strconv.Itoa(int(bc.Ports[0].SendPort)))
	}
	return meta
}

// startMDNS registers the service via mDNS and returns a cleanup function.
// It is a no-op when disabled.
func startMDNS(ctx context.Context, cfg *appConfig, bc *config.Config) (func(), error) {
	if !cfg.mdnsEnable || len(bc.Ports) == 0 {
		return func() {}, nil
	}
	port := int(bc.Ports[0].ListenPort)
	svc, err := zeroconf.Register(mdnsInstance(cfg), mdnsServiceType, "local.", port, mdnsMeta(bc), nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
