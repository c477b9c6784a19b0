package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	canlib "github.com/canline/slcan"
	"github.com/canline/slcan/internal/hub"
	"github.com/canline/slcan/internal/metrics"
	"github.com/canline/slcan/internal/transport"
	"github.com/canline/slcan/internal/wireframe"
)

const readPollTimeout = 100 * time.Millisecond

// slcanChannel is the subset of *canlib.Channel this backend drives; tests
// substitute a fake behind openSLCANChannel.
type slcanChannel interface {
	StartIndex(index int) error
	Write(fr canlib.Frame) error
	Read(timeout time.Duration) (canlib.Frame, error)
	Kill() error
	Close() error
}

// openSLCANChannel is a hook for tests (overridden in unit tests).
var openSLCANChannel = func(p canlib.OpenParams) (slcanChannel, error) { return canlib.Open(p) }

// initSLCANBackend opens the SLCAN channel, starts the controller at the
// configured bit-rate, and launches the RX loop broadcasting decoded frames
// to the hub. The returned SendFunc queues frames through an AsyncTx so a
// slow or wedged adapter never blocks a TCP client's writer goroutine.
func initSLCANBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (func(wireframe.Frame) error, func(), error) {
	parity := canlib.ParityNone
	switch cfg.parity {
	case "odd":
		parity = canlib.ParityOdd
	case "even":
		parity = canlib.ParityEven
	}

	ch, err := openSLCANChannel(canlib.OpenParams{
		DeviceName: cfg.serialDev,
		Baudrate:   cfg.baud,
		Bytesize:   cfg.bytesize,
		Parity:     parity,
		Stopbits:   cfg.stopbits,
		CANable:    cfg.canable,
	})
	if err != nil {
		return nil, func() {}, fmt.Errorf("open slcan channel: %w", err)
	}
	if err := ch.StartIndex(cfg.bitrateIndex); err != nil {
		_ = ch.Close()
		return nil, func() {}, fmt.Errorf("start slcan channel: %w", err)
	}
	l.Info("slcan_open", "device", cfg.serialDev, "baud", cfg.baud, "bitrate_index", cfg.bitrateIndex)

	send := func(fr wireframe.Frame) error {
		if err := ch.Write(wireframe.ToCANFrame(fr)); err != nil {
			return err
		}
		metrics.IncSLCANTx()
		return nil
	}
	tx := transport.NewAsyncTx(ctx, txQueueSize, send, transport.Hooks{
		OnError: func(err error) { metrics.IncError(metrics.ErrSLCANWrite) },
		OnDrop:  func() error { metrics.IncError(metrics.ErrSLCANOverflow); return transport.ErrTxOverflow },
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("slcan_rx_end")
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			fr, err := ch.Read(readPollTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// empty-queue polls are expected; anything else is logged.
				if !errors.Is(err, canlib.ErrRxEmpty) {
					metrics.IncError(metrics.ErrSLCANRead)
					l.Warn("slcan_read_error", "error", err)
				}
				continue
			}
			metrics.IncSLCANRx()
			h.Broadcast(wireframe.FromCANFrame(fr))
		}
	}()

	return tx.SendFrame, func() { tx.Close(); _ = ch.Kill(); _ = ch.Close() }, nil
}
