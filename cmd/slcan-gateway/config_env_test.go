package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := baseConfig()
	os.Setenv("SLCAN_GATEWAY_BAUD", "230400")
	os.Setenv("SLCAN_GATEWAY_MDNS_ENABLE", "true")
	os.Setenv("SLCAN_GATEWAY_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("SLCAN_GATEWAY_BAUD")
		os.Unsetenv("SLCAN_GATEWAY_MDNS_ENABLE")
		os.Unsetenv("SLCAN_GATEWAY_LOG_METRICS_INTERVAL")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.baud != 230400 {
		t.Fatalf("expected baud override, got %d", base.baud)
	}
	if !base.mdnsEnable {
		t.Fatalf("expected mdnsEnable true")
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{baud: 115200}
	os.Setenv("SLCAN_GATEWAY_BAUD", "230400")
	t.Cleanup(func() { os.Unsetenv("SLCAN_GATEWAY_BAUD") })
	if err := applyEnvOverrides(base, map[string]struct{}{"baud": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.baud != 115200 {
		t.Fatalf("expected baud unchanged 115200 got %d", base.baud)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := &appConfig{hubBuffer: 512}
	os.Setenv("SLCAN_GATEWAY_HUB_BUFFER", "notint")
	t.Cleanup(func() { os.Unsetenv("SLCAN_GATEWAY_HUB_BUFFER") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}
