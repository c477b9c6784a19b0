package main

import (
	"testing"
	"time"
)

func baseConfig() *appConfig {
	return &appConfig{
		serialDev: "/dev/null", baud: 115200, bytesize: 8, parity: "none", stopbits: 1,
		bitrateIndex: -4, listenAddr: ":20000", logFormat: "text", logLevel: "info",
		hubBuffer: 8, hubPolicy: "drop", backend: "slcan", canIf: "can0",
		maxClients: 0, handshakeTO: time.Second, clientReadTO: time.Second,
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := baseConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badBackend", func(c *appConfig) { c.backend = "x" }},
		{"badPolicy", func(c *appConfig) { c.hubPolicy = "x" }},
		{"badHubBuf", func(c *appConfig) { c.hubBuffer = 0 }},
		{"badBaud", func(c *appConfig) { c.baud = 0 }},
		{"badBitrateIndexLow", func(c *appConfig) { c.bitrateIndex = -9 }},
		{"badBitrateIndexHigh", func(c *appConfig) { c.bitrateIndex = 1 }},
		{"badHandshakeTO", func(c *appConfig) { c.handshakeTO = 0 }},
		{"badClientReadTO", func(c *appConfig) { c.clientReadTO = 0 }},
		{"badMaxClients", func(c *appConfig) { c.maxClients = -1 }},
	}
	for _, tc := range tests {
		base := baseConfig()
		tc.mod(base)
		if err := base.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
