package serialport

import "context"

// NewConnected wires port directly to an already-live transport and starts
// its reader loop immediately, skipping Connect/openFunc. It exists for
// engine-level tests that need a responsive fake transport without opening
// a real TTY; production code always goes through New+Connect.
func NewConnected(raw rawPort, onByte OnByte) *Port {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Port{onByte: onByte, raw: raw, connected: true, cancel: cancel}
	p.wg.Add(1)
	go p.readLoop(ctx, raw)
	return p
}
