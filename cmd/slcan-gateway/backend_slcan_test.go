package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	canlib "github.com/canline/slcan"
	"github.com/canline/slcan/internal/hub"
	"github.com/canline/slcan/internal/metrics"
	"github.com/canline/slcan/internal/wireframe"
)

type fakeSLCANChannel struct {
	mu      sync.Mutex
	started int
	written []canlib.Frame
	toRead  []canlib.Frame
	killed  bool
	closed  bool
}

func (c *fakeSLCANChannel) StartIndex(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
	return nil
}

func (c *fakeSLCANChannel) Write(fr canlib.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, fr)
	return nil
}

func (c *fakeSLCANChannel) Read(timeout time.Duration) (canlib.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toRead) > 0 {
		fr := c.toRead[0]
		c.toRead = c.toRead[1:]
		return fr, nil
	}
	time.Sleep(5 * time.Millisecond)
	return canlib.Frame{}, canlib.ErrRxEmpty
}

func (c *fakeSLCANChannel) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killed = true
	return nil
}

func (c *fakeSLCANChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestInitSLCANBackendBroadcastsAndCounts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := &fakeSLCANChannel{toRead: []canlib.Frame{{ID: 0x123, DLC: 2, Data: [8]byte{1, 2}}}}
	openSLCANChannel = func(canlib.OpenParams) (slcanChannel, error) { return fake, nil }
	defer func() { openSLCANChannel = func(p canlib.OpenParams) (slcanChannel, error) { return canlib.Open(p) } }()

	h := hub.New()
	c := &hub.Client{Out: make(chan wireframe.Frame, 1), Closed: make(chan struct{})}
	h.Add(c)

	cfg := &appConfig{backend: "slcan", serialDev: "/dev/ttyFAKE", baud: 115200, bitrateIndex: canlib.Index1M}
	var wg sync.WaitGroup
	send, cleanup, err := initSLCANBackend(ctx, cfg, h, testLogger(), &wg)
	if err != nil {
		t.Fatalf("initSLCANBackend: %v", err)
	}
	defer cleanup()

	fake.mu.Lock()
	started := fake.started
	fake.mu.Unlock()
	if started != 1 {
		t.Fatalf("expected StartIndex called once, got %d", started)
	}

	select {
	case fr := <-c.Out:
		if fr.CANID != 0x123 {
			t.Fatalf("unexpected broadcast frame: %+v", fr)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast frame")
	}

	outFrame := wireframe.Frame{CANID: 0x456, Len: 1}
	outFrame.Data[0] = 0xAA
	if err := send(outFrame); err != nil {
		t.Fatalf("send: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	fake.mu.Lock()
	n := len(fake.written)
	fake.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected one frame written through the backend, got %d", n)
	}

	snap := metrics.Snap()
	if snap.SLCANRx == 0 {
		t.Fatal("expected SLCANRx > 0")
	}
	if snap.SLCANTx == 0 {
		t.Fatal("expected SLCANTx > 0")
	}
}

func TestInitSLCANBackendOpenFailureWraps(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("no such device")
	openSLCANChannel = func(canlib.OpenParams) (slcanChannel, error) { return nil, cause }
	defer func() { openSLCANChannel = func(p canlib.OpenParams) (slcanChannel, error) { return canlib.Open(p) } }()

	cfg := &appConfig{backend: "slcan", serialDev: "/dev/ttyFAKE"}
	var wg sync.WaitGroup
	_, _, err := initSLCANBackend(ctx, cfg, hub.New(), testLogger(), &wg)
	if err == nil {
		t.Fatal("expected an error when opening the channel fails")
	}
}

func TestInitSLCANBackendCleanupKillsAndCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &fakeSLCANChannel{}
	openSLCANChannel = func(canlib.OpenParams) (slcanChannel, error) { return fake, nil }
	defer func() { openSLCANChannel = func(p canlib.OpenParams) (slcanChannel, error) { return canlib.Open(p) } }()

	cfg := &appConfig{backend: "slcan", serialDev: "/dev/ttyFAKE"}
	var wg sync.WaitGroup
	_, cleanup, err := initSLCANBackend(ctx, cfg, hub.New(), testLogger(), &wg)
	if err != nil {
		t.Fatalf("initSLCANBackend: %v", err)
	}
	cancel()
	cleanup()
	wg.Wait()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if !fake.killed || !fake.closed {
		t.Fatalf("expected cleanup to kill and close the channel: killed=%v closed=%v", fake.killed, fake.closed)
	}
}
